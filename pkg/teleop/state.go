package teleop

// State is the publish loop lifecycle. Transitions are linear:
// Running -> Stopping -> Stopped. There is no way back to Running.
type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
