package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gosuda/chat-session/protocol"
)

type fakeChannel struct {
	sent    []protocol.Message
	closed  bool
	sendErr error
}

func (f *fakeChannel) Send(m protocol.Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type openCall struct {
	endpoint string
	ev       Events
	ch       *fakeChannel
}

// deliver encodes m and hands it to the controller as if the server sent it.
func (o *openCall) deliver(t *testing.T, m protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(m)
	if err != nil {
		t.Fatalf("encode %T: %v", m, err)
	}
	o.ev.OnMessage(data)
}

type fakeOpener struct {
	calls []*openCall
	err   error
}

func (o *fakeOpener) Open(endpoint string, ev Events) (Channel, error) {
	if o.err != nil {
		return nil, o.err
	}
	call := &openCall{endpoint: endpoint, ev: ev, ch: &fakeChannel{}}
	o.calls = append(o.calls, call)
	return call.ch, nil
}

func (o *fakeOpener) last(t *testing.T) *openCall {
	t.Helper()
	if len(o.calls) == 0 {
		t.Fatal("no channel opened")
	}
	return o.calls[len(o.calls)-1]
}

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (m *manualTimer) Stop() bool {
	if m.stopped || m.fired {
		return false
	}
	m.stopped = true
	return true
}

type manualTimers struct {
	timers []*manualTimer
}

func (m *manualTimers) AfterFunc(d time.Duration, f func()) Timer {
	tm := &manualTimer{d: d, f: f}
	m.timers = append(m.timers, tm)
	return tm
}

// armed returns the timers that are neither stopped nor fired.
func (m *manualTimers) armed() []*manualTimer {
	var out []*manualTimer
	for _, tm := range m.timers {
		if !tm.stopped && !tm.fired {
			out = append(out, tm)
		}
	}
	return out
}

// fire runs the single armed timer and returns its delay.
func (m *manualTimers) fire(t *testing.T) time.Duration {
	t.Helper()
	armed := m.armed()
	if len(armed) != 1 {
		t.Fatalf("armed timers = %d, want 1", len(armed))
	}
	armed[0].fired = true
	armed[0].f()
	return armed[0].d
}

type harness struct {
	c      *Controller
	opener *fakeOpener
	timers *manualTimers
}

func newHarness(t *testing.T, policy ReconnectPolicy) *harness {
	t.Helper()
	nop := zerolog.Nop()
	h := &harness{opener: &fakeOpener{}, timers: &manualTimers{}}
	n := 0
	c, err := New(Config{
		Endpoint:  "ws://chat.test/ws",
		Opener:    h.opener,
		IDs:       IDFunc(func() string { n++; return fmt.Sprintf("id-%d", n) }),
		Reconnect: policy,
		AfterFunc: h.timers.AfterFunc,
		Logger:    &nop,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.c = c
	return h
}

// signIn runs the happy path up to Authenticated and returns the channel.
func (h *harness) signIn(t *testing.T) *openCall {
	t.Helper()
	if err := h.c.SignIn("alice", "pw"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	call := h.opener.last(t)
	call.ev.OnOpen()
	call.deliver(t, protocol.AuthResponse{Success: true})
	if got := h.c.State(); got != Authenticated {
		t.Fatalf("state = %s, want authenticated", got)
	}
	return call
}
