// Package providers defines the LLM provider contract and carries thin,
// real HTTP-backed implementations against OpenAI-compatible and
// Anthropic-compatible chat completion endpoints. Only the contract shape
// matters to the rest of the system, but a genuine implementation is kept
// here rather than a mock.
package providers

import "context"

// Provider is the interface all LLM providers must implement, matching
// spec §6's chat(messages, tools, model, temperature, max_tokens) -> Response
// contract.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error)
	DefaultModel() string
	Name() string
}

// ThinkingCapable is an optional extension a Provider may implement to
// expose a reasoning/thinking-effort knob. No code in this module checks for
// it, and the Agent Loop never sets a thinking option.
type ThinkingCapable interface {
	SupportsThinking() bool
}

// ChatRequest contains the input for a Chat/ChatStream call.
type ChatRequest struct {
	Messages    []Message              `json:"messages"`
	Tools       []ToolDefinition       `json:"tools,omitempty"`
	Model       string                 `json:"model,omitempty"`
	Temperature float64                `json:"temperature,omitempty"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
	Options     map[string]interface{} `json:"options,omitempty"`
}

// ChatResponse is the result from an LLM call.
type ChatResponse struct {
	Content          string     `json:"content"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	FinishReason     string     `json:"finish_reason"`
	Usage            *Usage     `json:"usage,omitempty"`
}

// HasToolCalls reports whether the response carries at least one tool call.
func (r *ChatResponse) HasToolCalls() bool { return r != nil && len(r.ToolCalls) > 0 }

// StreamChunk is a piece of a streaming response.
type StreamChunk struct {
	Content  string `json:"content,omitempty"`
	Thinking string `json:"thinking,omitempty"`
	Done     bool   `json:"done,omitempty"`
}

// ImageContent represents a base64-encoded image for vision-capable models.
type ImageContent struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Message represents a conversation message in the wire shape the provider
// contract expects: content may be null (for assistant messages carrying
// only tool_calls), plain text, or accompanied by inline images.
type Message struct {
	Role             string         `json:"role"`
	Content          *string        `json:"content"`
	ReasoningContent string         `json:"reasoning_content,omitempty"`
	Images           []ImageContent `json:"images,omitempty"`
	ToolCalls        []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID       string         `json:"tool_call_id,omitempty"`
	Name             string         `json:"name,omitempty"`
}

// TextMessage builds a Message with non-null string content.
func TextMessage(role, content string) Message {
	c := content
	return Message{Role: role, Content: &c}
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolDefinition describes a tool available to the LLM.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function ToolFunctionSchema `json:"function"`
}

// ToolFunctionSchema is the JSON-Schema shape for a function tool.
type ToolFunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Registry resolves a provider by name, used by tools (create_image,
// read_image) that need direct access to provider credentials.
type Registry struct {
	providers map[string]Provider
	def       string
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
	if r.def == "" {
		r.def = p.Name()
	}
}

func (r *Registry) Get(name string) (Provider, error) {
	if name == "" {
		name = r.def
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, &UnknownProviderError{Name: name}
	}
	return p, nil
}

func (r *Registry) Default() (Provider, error) { return r.Get("") }

// UnknownProviderError is returned by Registry.Get for an unregistered name.
type UnknownProviderError struct{ Name string }

func (e *UnknownProviderError) Error() string { return "unknown provider: " + e.Name }
