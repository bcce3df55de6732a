package conversation

// Status is the lifecycle state of a session.
type Status string

const (
	StatusCreated Status = "created"
	StatusActive  Status = "active"
	// StatusAwaitingToolResult is only held while a submit resolves tool calls
	// and is never reported outside the owning session.
	StatusAwaitingToolResult Status = "awaiting_tool_result"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
	StatusTransferred        Status = "transferred"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTransferred:
		return true
	default:
		return false
	}
}
