package server

// State is a lifecycle phase of a Server.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateServing
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateServing:
		return "serving"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
