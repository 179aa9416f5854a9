package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gosuda/chat-session/chatlog"
	"github.com/gosuda/chat-session/session"
)

type fakeSession struct {
	view    session.View
	sent    []string
	signIns int
	sendErr error
}

func (f *fakeSession) SignIn(username, password string) error {
	f.signIns++
	return nil
}

func (f *fakeSession) SendMessage(text string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, text)
	return "id", nil
}

func (f *fakeSession) View() session.View { return f.view }

func TestHandleLine(t *testing.T) {
	f := &fakeSession{}
	var out bytes.Buffer

	for _, line := range []string{"", "  hello  ", "//slash", "/users", "/retry", "/nope"} {
		if handleLine(f, &out, line) {
			t.Fatalf("%q asked to quit", line)
		}
	}
	if !handleLine(f, &out, "/quit") {
		t.Fatal("/quit did not quit")
	}

	if want := []string{"hello", "/slash"}; !reflect.DeepEqual(f.sent, want) {
		t.Fatalf("sent %q, want %q", f.sent, want)
	}
	if f.signIns != 1 {
		t.Fatalf("signIns = %d, want 1", f.signIns)
	}
	for _, want := range []string{"* no roster yet", "* unknown command /nope"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lacks %q:\n%s", want, out.String())
		}
	}
}

func TestHandleLineNotSignedIn(t *testing.T) {
	f := &fakeSession{sendErr: session.ErrNotAuthenticated}
	var out bytes.Buffer
	handleLine(f, &out, "hi")
	if !strings.Contains(out.String(), "not signed in") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestReconnectPolicyFromFlags(t *testing.T) {
	defer func(m int, b, c time.Duration) {
		flagReconnectMax, flagReconnectBase, flagReconnectCap = m, b, c
	}(flagReconnectMax, flagReconnectBase, flagReconnectCap)

	flagReconnectMax, flagReconnectBase, flagReconnectCap = 3, time.Second, 4*time.Second
	p := reconnectPolicy()
	if p.MaxAttempts != 3 || p.Base != time.Second || p.Cap != 4*time.Second || p.Factor != 2 {
		t.Fatalf("policy = %+v", p)
	}
	if d := p.Delay(5); d != 4*time.Second {
		t.Fatalf("Delay(5) = %v, want cap", d)
	}
}

func TestStateHandler(t *testing.T) {
	f := &fakeSession{view: session.View{
		State:    session.Authenticated,
		Username: "alice",
		Log: []chatlog.Entry{
			chatlog.Message{SeqN: 1, Username: "bob", Timestamp: ts, Text: "hi"},
			chatlog.PendingSend{ClientSideID: "c1", Text: "yo"},
		},
		PresenceKnown: true,
	}}
	h := newStateHandler(f)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		State    string           `json:"state"`
		Username string           `json:"username"`
		Log      []map[string]any `json:"log"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	if got.State != "authenticated" || got.Username != "alice" || len(got.Log) != 2 {
		t.Fatalf("state = %+v", got)
	}
	if got.Log[0]["elementType"] != "message" || got.Log[1]["elementType"] != "unackedMessage" {
		t.Fatalf("log = %v", got.Log)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/state", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d", rec.Code)
	}
}
