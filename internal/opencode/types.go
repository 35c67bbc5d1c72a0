// ABOUTME: Wire types for the opencode server's REST payloads and events.
// ABOUTME: Field sets mirror what the server sends; unknown fields are ignored.

package opencode

import "fmt"

// Part kinds the server emits. Text and reasoning carry prose; tool and
// file parts describe agent activity.
const (
	PartTypeText       = "text"
	PartTypeReasoning  = "reasoning"
	PartTypeTool       = "tool"
	PartTypeFile       = "file"
	PartTypeStepStart  = "step-start"
	PartTypeStepFinish = "step-finish"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Tool invocation states as reported on tool parts.
const (
	ToolStatusPending   = "pending"
	ToolStatusRunning   = "running"
	ToolStatusCompleted = "completed"
	ToolStatusError     = "error"
)

// Session is a remote conversation. IDs are opaque server-assigned strings.
type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Directory string `json:"directory,omitempty"`
}

// MessageInfo is the lifecycle half of a message: identity, role, and error
// state, without the parts.
type MessageInfo struct {
	ID        string        `json:"id"`
	SessionID string        `json:"sessionID"`
	Role      string        `json:"role"`
	Error     *MessageError `json:"error,omitempty"`
}

// MessageError is the structured error the server attaches to a failed
// message or session.
type MessageError struct {
	Name string `json:"name"`
	Data struct {
		Message string `json:"message"`
	} `json:"data"`
}

func (e *MessageError) String() string {
	if e == nil {
		return ""
	}
	if e.Data.Message == "" {
		return e.Name
	}
	if e.Name == "" {
		return e.Data.Message
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Data.Message)
}

// Part is one fragment of a message. Text and reasoning parts carry the
// full accumulated string on every update, never a delta.
type Part struct {
	ID        string         `json:"id"`
	MessageID string         `json:"messageID"`
	SessionID string         `json:"sessionID"`
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Filename  string         `json:"filename,omitempty"`
	State     *ToolState     `json:"state,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ToolState tracks one tool invocation on a tool part.
type ToolState struct {
	Status   string         `json:"status"`
	Title    string         `json:"title,omitempty"`
	Input    map[string]any `json:"input,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Message is a complete message: lifecycle info plus accumulated parts.
type Message struct {
	Info  MessageInfo `json:"info"`
	Parts []Part      `json:"parts"`
}

// TextContent returns the text of the message's last non-empty text part,
// or "" when the message has none.
func (m *Message) TextContent() string {
	if m == nil {
		return ""
	}
	for i := len(m.Parts) - 1; i >= 0; i-- {
		p := m.Parts[i]
		if p.Type == PartTypeText && p.Text != "" {
			return p.Text
		}
	}
	return ""
}
