package box

// State is a position in the intake pipeline.
//
//	Received -> Fingerprinted -> Persisted -> Archived -> Dispatched -> Completed
//
// Failed is terminal and reachable from any non-terminal state.
type State int

const (
	StateReceived State = iota
	StateFingerprinted
	StatePersisted
	StateArchived
	StateDispatched
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateFingerprinted:
		return "fingerprinted"
	case StatePersisted:
		return "persisted"
	case StateArchived:
		return "archived"
	case StateDispatched:
		return "dispatched"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
