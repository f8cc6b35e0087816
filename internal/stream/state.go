package stream

// State is where a guild's playback sits in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StatePlaying
	StateRecovering
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StatePlaying:
		return "playing"
	case StateRecovering:
		return "recovering"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Busy states are transitions in flight; health checks skip them.
func (s State) Busy() bool {
	return s == StateConnecting || s == StateRecovering || s == StateStopping
}
