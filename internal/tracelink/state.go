package tracelink

import "fmt"

// State is the connection lifecycle of one Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateHandshakeComplete
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateHandshakeComplete:
		return "handshake_complete"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Active reports whether s holds a socket or is acquiring one.
func (s State) Active() bool {
	return s == StateConnecting || s == StateConnected || s == StateHandshakeComplete
}

// StateObserver is told about every transition, in order.
type StateObserver func(from, to State)
