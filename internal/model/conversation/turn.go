package conversation

// Role identifies who contributed a Turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one atomic contribution to a conversation. Turns are append-only and
// their insertion order is the canonical conversation order.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Tool turns carry the invocation they answer so the generation backend
	// can correlate the result with its own tool call.
	ToolName      string `json:"toolName,omitempty"`
	ToolCallID    string `json:"toolCallId,omitempty"`
	ToolArguments string `json:"toolArguments,omitempty"`
	// Preamble is the text the agent produced before requesting the tools.
	// It is set on the first tool turn of a group only.
	Preamble string `json:"preamble,omitempty"`
}

// SystemTurn builds the fixed instruction turn that opens every session.
func SystemTurn(content string) Turn {
	return Turn{Role: RoleSystem, Content: content}
}

// UserTurn builds a caller turn.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn builds an agent turn.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// ToolTurn builds the textual result of a tool invocation.
func ToolTurn(name, callID, arguments, result string) Turn {
	return Turn{
		Role:          RoleTool,
		Content:       result,
		ToolName:      name,
		ToolCallID:    callID,
		ToolArguments: arguments,
	}
}
