package triage

import "vulnhalla.app/triage/common/llm"

// Turn is one conversation message, in the order it occurred. The transcript
// is the durable record of a triage conversation; the recorder serializes it
// as-is.
type Turn struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
}

// Transcript is the ordered, complete record of one conversation.
type Transcript []Turn

// Messages converts the transcript into the wire message form.
func (t Transcript) Messages() []llm.Message {
	msgs := make([]llm.Message, len(t))
	for i, turn := range t {
		msgs[i] = llm.Message{
			Role:       turn.Role,
			Content:    turn.Content,
			ToolCalls:  turn.ToolCalls,
			ToolCallID: turn.ToolCallID,
		}
	}
	return msgs
}
