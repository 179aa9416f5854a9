// Package chatlog keeps the ordered chat log of a session: confirmed entries
// stamped with a server sequence number, interleaved with locally sent
// messages still waiting for their acknowledgment.
package chatlog

import "strconv"

// Entry is one element of the log. The concrete types are Message, Presence
// and PendingSend; entries are values and never change once logged.
type Entry interface {
	// Key identifies the entry for front-ends: sn_<seqN> for sequenced
	// entries, csi_<clientSideId> for pending ones.
	Key() string
	isEntry()
}

// Sequenced is an entry that carries a server-assigned seqN.
type Sequenced interface {
	Entry
	Seq() int64
}

// Message is a confirmed chat line. ClientSideID is set only on a line this
// session sent itself, once its acknowledgment resolved the pending entry.
type Message struct {
	SeqN         int64  `json:"seqN"`
	Username     string `json:"username"`
	Timestamp    string `json:"timestamp"`
	Text         string `json:"text"`
	ClientSideID string `json:"clientSideId,omitempty"`
}

// Presence records a user joining or leaving.
type Presence struct {
	SeqN      int64  `json:"seqN"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
	Joined    bool   `json:"joined"`
}

// PendingSend is a locally sent line not yet acknowledged by the server.
type PendingSend struct {
	ClientSideID string `json:"clientSideId"`
	Text         string `json:"text"`
}

func (m Message) Key() string     { return seqKey(m.SeqN) }
func (p Presence) Key() string    { return seqKey(p.SeqN) }
func (p PendingSend) Key() string { return "csi_" + p.ClientSideID }

func (m Message) Seq() int64  { return m.SeqN }
func (p Presence) Seq() int64 { return p.SeqN }

func (Message) isEntry()     {}
func (Presence) isEntry()    {}
func (PendingSend) isEntry() {}

func seqKey(n int64) string {
	return "sn_" + strconv.FormatInt(n, 10)
}

// SeqOf reports the seqN of e, if it has one.
func SeqOf(e Entry) (int64, bool) {
	if s, ok := e.(Sequenced); ok {
		return s.Seq(), true
	}
	return 0, false
}
