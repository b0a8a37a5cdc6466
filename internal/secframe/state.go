package secframe

// State tracks readiness of the secure channel for one connection.
//
// Legal transitions:
//
//	NotReady -> Active  (protector installed)
//	NotReady -> Failed  (handshake failure)
//	NotReady -> Closed  (shutdown before readiness)
//	Active   -> Closed  (shutdown)
//	Active   -> Failed  (handshake failure signaled late)
//
// Nothing leaves Closed or Failed.
type State uint8

const (
	StateNotReady State = iota
	StateActive
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotReady:
		return "not_ready"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}
