package conversation

// State is a step of a single chat request.
type State int

const (
	StateLoadingHistory State = iota
	StateInitializingChat
	StateAwaitingReply
	StatePersistingHistory
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoadingHistory:
		return "loading_history"
	case StateInitializingChat:
		return "initializing_chat"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StatePersistingHistory:
		return "persisting_history"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
