package session

import "github.com/gosuda/chat-session/protocol"

// Channel is one open (or opening) duplex connection to the chat server.
type Channel interface {
	// Send queues m for delivery. It must not block on the network.
	Send(m protocol.Message) error
	// Close tears the channel down. It must not wait for Events callbacks
	// to return, and after it returns no further callbacks matter.
	Close() error
}

// Events receives the notifications of a single channel. OnOpen fires at
// most once before any OnMessage; OnClose fires at most once, last.
type Events struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnClose   func(err error)
}

// Opener starts channels to an endpoint. Open returns immediately; the
// outcome arrives through ev. Implementations must not invoke ev callbacks
// before Open has returned.
type Opener interface {
	Open(endpoint string, ev Events) (Channel, error)
}
