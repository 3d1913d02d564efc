package engine

// State is the engine lifecycle position: Idle → Setup → Running → Stopped.
type State int32

const (
	StateIdle State = iota
	StateSetup
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSetup:
		return "setup"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}
