package models

import "encoding/json"

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// PartType identifies the kind of a structured message part.
type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartFile       PartType = "file"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Message is one role-tagged entry of a conversation.
//
// A message whose Parts slice is empty carries plain text in Content.
// Messages with parts carry structured content and are treated as opaque
// by anything that needs to count or rewrite text.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
	Parts   []Part `json:"parts,omitempty"`
}

// Part is a single piece of structured message content.
type Part struct {
	Type       PartType    `json:"type"`
	Text       string      `json:"text,omitempty"`
	MimeType   string      `json:"mime_type,omitempty"`
	URL        string      `json:"url,omitempty"`
	Data       []byte      `json:"data,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// IsPlainText reports whether the message content is a plain string.
func (m Message) IsPlainText() bool {
	return len(m.Parts) == 0
}

// Text returns the plain text content and whether the message is plain text.
func (m Message) Text() (string, bool) {
	if !m.IsPlainText() {
		return "", false
	}
	return m.Content, true
}

// WithText returns a copy of the message with its content replaced by text.
// Any structured parts are dropped.
func (m Message) WithText(text string) Message {
	return Message{Role: m.Role, Content: text}
}

// UserMessage builds a plain-text user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage builds a plain-text assistant message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolResult is the output of executing a tool call.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Args       json.RawMessage `json:"args"`
	Result     any             `json:"result"`
}
