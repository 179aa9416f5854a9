package main

import (
	"fmt"
	"io"
	"time"

	"github.com/gosuda/chat-session/chatlog"
	"github.com/gosuda/chat-session/sanitize"
	"github.com/gosuda/chat-session/session"
)

const pendingGlyph = "🕓"

// renderer prints a session as an append-only transcript. Each log entry is
// printed once, the first time its key shows up in a view.
type renderer struct {
	w io.Writer

	seen map[string]bool

	state   session.State
	notice  session.Notice
	attempt int
	started bool
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{
		w:    w,
		seen: map[string]bool{},
	}
}

func (r *renderer) render(v session.View) {
	r.renderStatus(v)

	for _, e := range v.Log {
		key := e.Key()
		if r.seen[key] {
			continue
		}
		r.seen[key] = true
		switch e := e.(type) {
		case chatlog.PendingSend:
			fmt.Fprintf(r.w, "%s %s: %s\n", pendingGlyph, v.Username, sanitize.Text(e.Text))
		case chatlog.Message:
			// An acknowledged send was already printed as pending.
			if e.ClientSideID != "" && r.seen[chatlog.PendingSend{ClientSideID: e.ClientSideID}.Key()] {
				continue
			}
			fmt.Fprintf(r.w, "[%s] %s: %s\n", clock(e.Timestamp), e.Username, sanitize.Text(e.Text))
		case chatlog.Presence:
			verb := "left"
			if e.Joined {
				verb = "joined"
			}
			fmt.Fprintf(r.w, "[%s] * %s %s\n", clock(e.Timestamp), e.Username, verb)
		}
	}
}

func (r *renderer) renderStatus(v session.View) {
	if r.started && v.State == r.state && v.Notice == r.notice && v.Attempt == r.attempt {
		return
	}
	r.started = true
	r.state, r.notice, r.attempt = v.State, v.Notice, v.Attempt

	switch v.Notice {
	case session.NoticeAuthRejected:
		fmt.Fprintln(r.w, "* sign-in rejected")
		return
	case session.NoticeGaveUp:
		fmt.Fprintln(r.w, "* connection lost; type /retry to sign in again")
		return
	case session.NoticeReconnecting:
		if v.State == session.Connecting {
			fmt.Fprintf(r.w, "* connection lost; reconnecting (attempt %d)\n", v.Attempt)
			return
		}
	}
	switch v.State {
	case session.Connecting:
		fmt.Fprintln(r.w, "* connecting")
	case session.AuthPending:
		fmt.Fprintln(r.w, "* authenticating")
	case session.Authenticated:
		fmt.Fprintf(r.w, "* signed in as %s\n", v.Username)
	case session.Disconnected:
		fmt.Fprintln(r.w, "* disconnected")
	}
}

// printUsers lists the roster with the signed-in user marked.
func printUsers(w io.Writer, v session.View) {
	if !v.PresenceKnown {
		fmt.Fprintln(w, "* no roster yet")
		return
	}
	fmt.Fprintf(w, "* %d users\n", len(v.Presence))
	for _, u := range v.Presence {
		status := "offline"
		if u.Online {
			status = "online"
		}
		self := ""
		if v.IsSelf(u.Username) {
			self = " (you)"
		}
		fmt.Fprintf(w, "  %s%s: %s\n", u.Username, self, status)
	}
}

// clock renders an RFC 3339 timestamp as local HH:MM, or verbatim when it
// does not parse.
func clock(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("15:04")
}
