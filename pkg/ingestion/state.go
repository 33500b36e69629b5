package ingestion

type State int32

const (
	StateIdle State = iota
	StateSubscribed
	StatePolling
	StateProcessing
	StateBackoff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StatePolling:
		return "polling"
	case StateProcessing:
		return "processing"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
