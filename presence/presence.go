// Package presence tracks which chat users are online.
package presence

// Entry is the online status of one user.
type Entry struct {
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// Set maps usernames to their online status. Until the first snapshot is
// applied the set is unknown, which front-ends show differently from an
// empty roster. Set is not safe for concurrent use.
type Set struct {
	known  bool
	online map[string]bool
	order  []string
}

// New returns an unknown, empty set.
func New() *Set {
	return &Set{online: map[string]bool{}}
}

// ApplySnapshot replaces the whole set. A username listed twice keeps its
// first position and its last status.
func (s *Set) ApplySnapshot(users []Entry) {
	s.known = true
	s.online = make(map[string]bool, len(users))
	s.order = s.order[:0]
	for _, u := range users {
		if _, seen := s.online[u.Username]; !seen {
			s.order = append(s.order, u.Username)
		}
		s.online[u.Username] = u.Online
	}
}

// ApplyDelta sets the online flag of an existing user. Unknown usernames are
// not added; the return value reports whether a user matched.
func (s *Set) ApplyDelta(username string, online bool) bool {
	if _, ok := s.online[username]; !ok {
		return false
	}
	s.online[username] = online
	return true
}

// Get returns the status of username.
func (s *Set) Get(username string) (online, ok bool) {
	online, ok = s.online[username]
	return online, ok
}

// Known reports whether a snapshot has been applied.
func (s *Set) Known() bool { return s.known }

// Len returns the number of users.
func (s *Set) Len() int { return len(s.online) }

// List returns the users in snapshot order.
func (s *Set) List() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, Entry{Username: name, Online: s.online[name]})
	}
	return out
}
