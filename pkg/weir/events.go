package weir

import "time"

// State represents the lifecycle state of a Weir instance.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// StateChangeEvent is emitted on every lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// ShipSuccessEvent is emitted after a successful shipment.
type ShipSuccessEvent struct {
	RecordCount int
	BytesSent   int
	Duration    time.Duration
}

// ShipErrorEvent is emitted after a failed shipment attempt.
type ShipErrorEvent struct {
	Error       error
	RecordCount int
	Retryable   bool
}

// EventHandler receives notifications about Weir operations.
// Handlers are called synchronously from the merge goroutine and should
// return quickly.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnShipSuccess(event ShipSuccessEvent)
	OnShipError(event ShipErrorEvent)
}
