package providers

import (
	"context"
	"testing"
)

type stubProvider struct{ name string }

func (s *stubProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{Content: "stub:" + s.name}, nil
}
func (s *stubProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	return s.Chat(ctx, req)
}
func (s *stubProvider) DefaultModel() string { return "stub-model" }
func (s *stubProvider) Name() string         { return s.name }

func TestRegistryFirstRegisteredBecomesDefault(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubProvider{name: "openai"})
	r.Register(&stubProvider{name: "anthropic"})

	p, err := r.Get("")
	if err != nil {
		t.Fatalf("Get(\"\"): %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("expected the first registered provider to be the default, got %q", p.Name())
	}

	p2, err := r.Default()
	if err != nil || p2.Name() != "openai" {
		t.Errorf("Default() = %v, %v, want openai", p2, err)
	}
}

func TestRegistryGetByName(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubProvider{name: "openai"})
	r.Register(&stubProvider{name: "anthropic"})

	p, err := r.Get("anthropic")
	if err != nil {
		t.Fatalf("Get(anthropic): %v", err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("got %q, want anthropic", p.Name())
	}
}

func TestRegistryGetUnknownProvider(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubProvider{name: "openai"})

	_, err := r.Get("does-not-exist")
	if err == nil {
		t.Fatal("expected an error for an unregistered provider name")
	}
	if _, ok := err.(*UnknownProviderError); !ok {
		t.Errorf("expected *UnknownProviderError, got %T", err)
	}
}

func TestHasToolCallsNilSafe(t *testing.T) {
	var r *ChatResponse
	if r.HasToolCalls() {
		t.Error("a nil *ChatResponse must report no tool calls")
	}
	r = &ChatResponse{}
	if r.HasToolCalls() {
		t.Error("an empty ChatResponse must report no tool calls")
	}
	r = &ChatResponse{ToolCalls: []ToolCall{{Name: "x"}}}
	if !r.HasToolCalls() {
		t.Error("expected HasToolCalls to be true when ToolCalls is non-empty")
	}
}

func TestTextMessageSetsNonNilContentPointer(t *testing.T) {
	m := TextMessage("user", "hello")
	if m.Content == nil || *m.Content != "hello" {
		t.Errorf("TextMessage content = %v, want non-nil pointer to %q", m.Content, "hello")
	}
	if m.Role != "user" {
		t.Errorf("Role = %q, want user", m.Role)
	}
}
