package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gosuda/chat-session/chatlog"
	"github.com/gosuda/chat-session/presence"
	"github.com/gosuda/chat-session/session"
)

const ts = "2026-10-17T09:30:00Z"

func authed(log ...chatlog.Entry) session.View {
	return session.View{State: session.Authenticated, Username: "alice", Log: log}
}

func TestRendererPrintsEachEntryOnce(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	join := chatlog.Presence{SeqN: 1, Username: "bob", Timestamp: ts, Joined: true}
	msg := chatlog.Message{SeqN: 2, Username: "bob", Timestamp: ts, Text: "<b>hi</b>"}
	r.render(authed(join))
	r.render(authed(join, msg))
	r.render(authed(join, msg))

	out := buf.String()
	if n := strings.Count(out, "bob joined"); n != 1 {
		t.Fatalf("join printed %d times:\n%s", n, out)
	}
	if n := strings.Count(out, "bob: hi\n"); n != 1 {
		t.Fatalf("message printed %d times:\n%s", n, out)
	}
	if n := strings.Count(out, "signed in as alice"); n != 1 {
		t.Fatalf("status printed %d times:\n%s", n, out)
	}
}

func TestRendererPendingThenAck(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	r.render(authed(chatlog.PendingSend{ClientSideID: "c1", Text: "hello"}))
	if !strings.Contains(buf.String(), pendingGlyph+" alice: hello") {
		t.Fatalf("pending line missing:\n%s", buf.String())
	}

	buf.Reset()
	acked := chatlog.Message{SeqN: 5, Username: "alice", Timestamp: ts, Text: "hello", ClientSideID: "c1"}
	r.render(authed(acked))
	if buf.Len() != 0 {
		t.Fatalf("acknowledged message printed again:\n%s", buf.String())
	}

	// The same text sent later from another connection is a new line.
	r.render(authed(acked, chatlog.Message{SeqN: 6, Username: "alice", Timestamp: ts, Text: "hello"}))
	if n := strings.Count(buf.String(), "alice: hello"); n != 1 {
		t.Fatalf("second message printed %d times:\n%s", n, buf.String())
	}
}

func TestRendererPendingDroppedBySnapshot(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	r.render(authed(chatlog.PendingSend{ClientSideID: "c1", Text: "hello"}))
	// A snapshot replaced the log before the ack arrived.
	r.render(authed(chatlog.Message{SeqN: 1, Username: "bob", Timestamp: ts, Text: "hey"}))

	buf.Reset()
	r.render(authed(
		chatlog.Message{SeqN: 1, Username: "bob", Timestamp: ts, Text: "hey"},
		chatlog.Message{SeqN: 2, Username: "alice", Timestamp: ts, Text: "hello"},
	))
	if !strings.Contains(buf.String(), "alice: hello") {
		t.Fatalf("own message from another connection hidden:\n%s", buf.String())
	}
}

func TestRendererAckBeforeFirstRender(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	r.render(authed(chatlog.Message{SeqN: 4, Username: "alice", Timestamp: ts, Text: "quick", ClientSideID: "c9"}))
	if !strings.Contains(buf.String(), "alice: quick") {
		t.Fatalf("message acknowledged before any render not printed:\n%s", buf.String())
	}
}

func TestRendererStatusLines(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	r.render(session.View{State: session.Connecting})
	r.render(session.View{State: session.AuthPending})
	r.render(session.View{State: session.Connecting, Notice: session.NoticeReconnecting, Attempt: 2})
	r.render(session.View{State: session.Disconnected, Notice: session.NoticeGaveUp, Attempt: 8})

	want := []string{
		"* connecting",
		"* authenticating",
		"* connection lost; reconnecting (attempt 2)",
		"* connection lost; type /retry to sign in again",
	}
	got := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("got %d lines %q, want %q", len(got), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPrintUsers(t *testing.T) {
	var buf bytes.Buffer
	printUsers(&buf, session.View{Username: "alice"})
	if buf.String() != "* no roster yet\n" {
		t.Fatalf("unknown roster = %q", buf.String())
	}

	buf.Reset()
	printUsers(&buf, session.View{
		Username:      "alice",
		PresenceKnown: true,
		Presence: []presence.Entry{
			{Username: "alice", Online: true},
			{Username: "bob", Online: false},
		},
	})
	want := "* 2 users\n  alice (you): online\n  bob: offline\n"
	if buf.String() != want {
		t.Fatalf("roster = %q, want %q", buf.String(), want)
	}
}

func TestClock(t *testing.T) {
	if got := clock("not a time"); got != "not a time" {
		t.Fatalf("clock(bad) = %q", got)
	}
	if got := clock(ts); len(got) != 5 || got[2] != ':' {
		t.Fatalf("clock(%q) = %q", ts, got)
	}
}
