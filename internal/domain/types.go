package domain

type SessionID string

// Role is the author of a turn as the LLM names it. Roles other than
// RoleUser and RoleModel are kept verbatim.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// HistoryRecord is one persisted conversation turn.
// It is immutable: build it with NewHistoryRecord and read it through its accessors.
type HistoryRecord struct {
	role Role
	text string
}

func NewHistoryRecord(role Role, text string) HistoryRecord {
	return HistoryRecord{role: role, text: text}
}

func (r HistoryRecord) Role() Role   { return r.role }
func (r HistoryRecord) Text() string { return r.text }

// Turn is one entry of a live chat context as the LLM adapter reports it.
// Parts holds the text of each content part in order; non-text parts are
// reported as empty strings so positions are preserved.
type Turn struct {
	Role  string
	Parts []string
}

// TableStatus describes the backing resource of a history store.
type TableStatus struct {
	Table  string
	Status string
	Found  bool
}
