package session

import (
	"github.com/gosuda/chat-session/chatlog"
	"github.com/gosuda/chat-session/presence"
)

// Notice is the latest condition a front-end should surface to the user.
type Notice int

const (
	NoticeNone Notice = iota
	// NoticeAuthRejected: the server refused the credentials; sign in again.
	NoticeAuthRejected
	// NoticeReconnecting: the channel dropped and a reopen is scheduled.
	NoticeReconnecting
	// NoticeGaveUp: reconnect attempts ran out; sign in again.
	NoticeGaveUp
)

func (n Notice) String() string {
	switch n {
	case NoticeNone:
		return "none"
	case NoticeAuthRejected:
		return "authRejected"
	case NoticeReconnecting:
		return "reconnecting"
	case NoticeGaveUp:
		return "gaveUp"
	default:
		return "unknown"
	}
}

func (n Notice) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// View is a point-in-time copy of the session, safe to keep and render.
type View struct {
	State         State            `json:"state"`
	Username      string           `json:"username,omitempty"`
	Log           []chatlog.Entry  `json:"log"`
	Presence      []presence.Entry `json:"presence"`
	PresenceKnown bool             `json:"presenceKnown"`
	Notice        Notice           `json:"notice"`
	// Attempt is the number of reconnect attempts made since the last
	// successful sign-in.
	Attempt int `json:"attempt,omitempty"`
}

// IsSelf reports whether username is the signed-in user.
func (v View) IsSelf(username string) bool {
	return v.Username != "" && v.Username == username
}

// View returns a snapshot of the session.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		State:         c.state,
		Username:      c.username,
		Log:           c.log.Entries(),
		Presence:      c.presence.List(),
		PresenceKnown: c.presence.Known(),
		Notice:        c.notice,
		Attempt:       c.attempts,
	}
}
