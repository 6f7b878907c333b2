package daemon

type State int32

const (
	StateStarting State = iota
	StateRunning
	StateIdlePending
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateIdlePending:
		return "idle_pending"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}
