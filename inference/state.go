package inference

// State is the lifecycle of a Service. It only moves forward:
// Uninitialized → Starting → Healthy | Failed.
type State int32

const (
	StateUninitialized State = iota
	StateStarting
	StateHealthy
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateHealthy:
		return "healthy"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
