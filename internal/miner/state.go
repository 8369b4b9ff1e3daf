package miner

// State is the lifecycle state of a Worker
type State int32

// Worker states
const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateMining
	StateError
)

// String returns the lowercase state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateMining:
		return "mining"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
