package session

// State is the connection phase of a session.
type State int

const (
	// Disconnected is the initial state; nothing is open.
	Disconnected State = iota
	// Connecting means a channel is being opened, a reopen is scheduled, or
	// the last sign-in was rejected.
	Connecting
	// AuthPending means the channel is open and the auth request was sent.
	AuthPending
	// Authenticated means the server accepted the credentials.
	Authenticated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case AuthPending:
		return "authPending"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// MarshalText lets State render as its name in JSON views.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type trigger int

const (
	trigSignIn trigger = iota
	trigOpened
	trigAuthOK
	trigAuthRejected
	trigClosed
	trigGiveUp
	trigShutdown
)

func (t trigger) String() string {
	switch t {
	case trigSignIn:
		return "signIn"
	case trigOpened:
		return "opened"
	case trigAuthOK:
		return "authAccepted"
	case trigAuthRejected:
		return "authRejected"
	case trigClosed:
		return "closed"
	case trigGiveUp:
		return "giveUp"
	case trigShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// transitions is the complete FSM; any pair missing here is rejected.
var transitions = map[State]map[trigger]State{
	Disconnected: {
		trigSignIn:   Connecting,
		trigShutdown: Disconnected,
	},
	Connecting: {
		trigSignIn:   Connecting,
		trigOpened:   AuthPending,
		trigClosed:   Connecting,
		trigGiveUp:   Disconnected,
		trigShutdown: Disconnected,
	},
	AuthPending: {
		trigAuthOK:       Authenticated,
		trigAuthRejected: Connecting,
		trigClosed:       Connecting,
		trigShutdown:     Disconnected,
	},
	Authenticated: {
		trigClosed:   Connecting,
		trigShutdown: Disconnected,
	},
}

func next(from State, t trigger) (State, bool) {
	to, ok := transitions[from][t]
	return to, ok
}
