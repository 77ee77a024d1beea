// Package channel maintains the long-lived connection to the backend's
// push channel, reconnecting with a bounded fixed-interval policy and
// demultiplexing inbound messages into triggers.
package channel

// State is the connection state machine's current position.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateFailed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
