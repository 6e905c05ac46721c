package listener

// State is the connection lifecycle state of the engine.
type State int32

const (
	Disconnected State = iota
	Connecting
	IdleWaiting
	Subscribed
	Processing
	Halted
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case IdleWaiting:
		return "idle_waiting"
	case Subscribed:
		return "subscribed"
	case Processing:
		return "processing"
	case Halted:
		return "halted"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
