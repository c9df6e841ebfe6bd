package sessions

import (
	"encoding/json"
	"time"
)

// ContentPart is one part of a polymorphic message content list: either a
// text run or an inline image.
type ContentPart struct {
	Kind     string `json:"kind"` // "text" or "image_url"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"` // data: URL or remote URL
}

// Content models the dynamic message shape called out in the design notes:
// Content = Text(string) | Parts([{kind,...}]). Exactly one of Text/Parts is
// populated. It marshals as a bare JSON string when it is plain text (to
// satisfy providers that expect string content), and as an array otherwise.
type Content struct {
	Text  string
	Parts []ContentPart
	IsSet bool // distinguishes an explicit empty string from "no content field"
}

// TextContent builds a plain-text Content value.
func TextContent(s string) Content {
	return Content{Text: s, IsSet: true}
}

// PartsContent builds a multi-part Content value.
func PartsContent(parts []ContentPart) Content {
	return Content{Parts: parts, IsSet: true}
}

func (c Content) IsParts() bool { return len(c.Parts) > 0 }

// String returns a plain-text rendering: the text content, or the
// concatenation of text parts for a parts-content value.
func (c Content) String() string {
	if !c.IsParts() {
		return c.Text
	}
	out := ""
	for _, p := range c.Parts {
		if p.Kind == "text" {
			out += p.Text
		}
	}
	return out
}

func (c Content) MarshalJSON() ([]byte, error) {
	if !c.IsSet {
		return []byte("null"), nil
	}
	if c.IsParts() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Content{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Content{Text: s, IsSet: true}
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	*c = Content{Parts: parts, IsSet: true}
	return nil
}

// ToolCallSpec is one tool invocation requested by the model in an assistant
// message.
type ToolCallSpec struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object text
}

// Message is one entry in a session's ordered log.
type Message struct {
	Role       string         `json:"role"` // user | assistant | tool | system
	Content    Content        `json:"content"`
	Timestamp  time.Time      `json:"timestamp"`
	ToolCalls  []ToolCallSpec `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolsUsed  []string       `json:"tools_used,omitempty"`
}

// SessionMetadata carries per-session flags that don't belong in the message
// log itself.
type SessionMetadata struct {
	Isolated bool `json:"isolated,omitempty"`
}

// Session is a per-conversation ordered message log.
//
// Invariants (enforced by Manager, the sole foreground mutator):
//   - append-only during a turn
//   - LastConsolidatedIndex <= len(Messages)
//   - UpdatedAt >= CreatedAt
//   - a role=tool message immediately follows an assistant message whose
//     ToolCalls contains the matching ToolCallID
type Session struct {
	Key                   string          `json:"key"`
	Messages              []Message       `json:"messages"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	LastConsolidatedIndex int             `json:"last_consolidated_index"`
	Metadata              SessionMetadata `json:"metadata"`

	// LastPromptTokens/ContextWindow are operational bookkeeping shown by the
	// session_status tool; history windowing does not read them. They are not
	// part of the spec's invariant set but are persisted for continuity.
	LastPromptTokens int `json:"last_prompt_tokens,omitempty"`
	ContextWindow    int `json:"context_window,omitempty"`
}

// NewSession creates an empty session for key.
func NewSession(key string) *Session {
	now := time.Now()
	return &Session{
		Key:       key,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep-enough copy for safe handoff to a reader that must not
// observe subsequent mutation (e.g. a consolidation snapshot).
func (s *Session) Clone() *Session {
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	return &cp
}
