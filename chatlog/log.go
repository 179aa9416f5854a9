package chatlog

import (
	"errors"
	"slices"
)

// ErrDuplicatePending is returned by AppendPending when a pending entry with
// the same client side id is already in the log.
var ErrDuplicatePending = errors.New("chatlog: duplicate pending client side id")

// Log is an ordered sequence of entries. Sequenced entries are kept in
// non-decreasing seqN order relative to each other; pending entries keep the
// order in which they were appended. Log is not safe for concurrent use.
type Log struct {
	entries []Entry
}

// New returns a log holding entries in the given order.
func New(entries ...Entry) *Log {
	return &Log{entries: slices.Clone(entries)}
}

// Len returns the number of entries.
func (l *Log) Len() int { return len(l.entries) }

// Entries returns a copy of the log in display order.
func (l *Log) Entries() []Entry {
	return slices.Clone(l.entries)
}

// Replace swaps the whole log for a snapshot. The snapshot is trusted to be
// ordered already.
func (l *Log) Replace(entries []Entry) {
	l.entries = slices.Clone(entries)
}

// InsertBySeqN places e right after the closest preceding sequenced entry
// with a strictly smaller seqN, scanning from the tail. Pending entries are
// skipped during the scan but never moved. When no smaller seqN exists the
// entry goes to the head of the log. It returns the insertion index.
func (l *Log) InsertBySeqN(e Sequenced) int {
	at := 0
	for i := len(l.entries) - 1; i >= 0; i-- {
		n, ok := SeqOf(l.entries[i])
		if !ok {
			continue
		}
		if n < e.Seq() {
			at = i + 1
			break
		}
	}
	l.entries = slices.Insert(l.entries, at, Entry(e))
	return at
}

// AppendPending adds an optimistic send at the tail.
func (l *Log) AppendPending(p PendingSend) error {
	if l.pendingIndex(p.ClientSideID) >= 0 {
		return ErrDuplicatePending
	}
	l.entries = append(l.entries, p)
	return nil
}

// ResolvePending replaces the pending entry for clientSideID with a confirmed
// Message carrying its text and id, inserted by seqN. When no such pending entry
// exists the log is left untouched and ok is false.
func (l *Log) ResolvePending(clientSideID string, seqN int64, username, timestamp string) (msg Message, ok bool) {
	i := l.pendingIndex(clientSideID)
	if i < 0 {
		return Message{}, false
	}
	p := l.entries[i].(PendingSend)
	l.entries = slices.Delete(l.entries, i, i+1)
	msg = Message{SeqN: seqN, Username: username, Timestamp: timestamp, Text: p.Text, ClientSideID: clientSideID}
	l.InsertBySeqN(msg)
	return msg, true
}

// Pending returns the unacknowledged sends in append order.
func (l *Log) Pending() []PendingSend {
	var out []PendingSend
	for _, e := range l.entries {
		if p, ok := e.(PendingSend); ok {
			out = append(out, p)
		}
	}
	return out
}

func (l *Log) pendingIndex(clientSideID string) int {
	return slices.IndexFunc(l.entries, func(e Entry) bool {
		p, ok := e.(PendingSend)
		return ok && p.ClientSideID == clientSideID
	})
}
