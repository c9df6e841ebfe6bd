package consolidator

import (
	"context"
	"testing"
	"time"

	"github.com/coreclaw/agentcore/internal/memory"
	"github.com/coreclaw/agentcore/internal/providers"
	"github.com/coreclaw/agentcore/internal/sessions"
)

func TestParseConsolidationResponsePlainJSON(t *testing.T) {
	raw := `{"history_entry": "user asked for help with billing", "memory_update": "user is on the pro plan"}`
	h, m, err := parseConsolidationResponse(raw)
	if err != nil {
		t.Fatalf("parseConsolidationResponse: %v", err)
	}
	if h != "user asked for help with billing" || m != "user is on the pro plan" {
		t.Errorf("got (%q, %q)", h, m)
	}
}

func TestParseConsolidationResponseCodeFenced(t *testing.T) {
	raw := "```json\n{\"history_entry\": \"did a thing\", \"memory_update\": \"remembers the thing\"}\n```"
	h, m, err := parseConsolidationResponse(raw)
	if err != nil {
		t.Fatalf("parseConsolidationResponse: %v", err)
	}
	if h != "did a thing" || m != "remembers the thing" {
		t.Errorf("got (%q, %q)", h, m)
	}
}

func TestParseConsolidationResponseNonStringFieldsStringified(t *testing.T) {
	raw := `{"history_entry": {"note": "nested"}, "memory_update": ["a", "b"]}`
	h, m, err := parseConsolidationResponse(raw)
	if err != nil {
		t.Fatalf("parseConsolidationResponse: %v", err)
	}
	if h == "" || m == "" {
		t.Errorf("expected non-string fields to be defensively stringified, got (%q, %q)", h, m)
	}
}

func TestParseConsolidationResponseMalformedErrors(t *testing.T) {
	_, _, err := parseConsolidationResponse("not json at all")
	if err == nil {
		t.Error("expected an error for malformed JSON")
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```json\n{}\n```", "{}"},
		{"```\n{}\n```", "{}"},
		{"{}", "{}"},
		{"  {}  ", "{}"},
	}
	for _, tt := range tests {
		if got := stripCodeFence(tt.in); got != tt.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderMessagesIncludesToolsUsed(t *testing.T) {
	msgs := []sessions.Message{
		{Role: "user", Content: sessions.TextContent("hello"), Timestamp: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)},
		{Role: "assistant", Content: sessions.TextContent("hi"), Timestamp: time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC), ToolsUsed: []string{"web_search"}},
	}
	out := renderMessages(msgs)
	if !contains(out, "[2026-01-02 03:04] USER: hello") {
		t.Errorf("missing rendered user line, got: %q", out)
	}
	if !contains(out, "[tools: web_search]") {
		t.Errorf("expected tools-used annotation, got: %q", out)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}

// fakeProvider returns a fixed response for every Chat call, for driving the
// consolidator end to end without a real LLM.
type fakeProvider struct {
	resp *providers.ChatResponse
	err  error
}

func (p *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}
func (p *fakeProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return p.Chat(ctx, req)
}
func (p *fakeProvider) DefaultModel() string { return "fake-model" }
func (p *fakeProvider) Name() string         { return "fake" }

func TestRunAdvancesCursorAndWritesMemory(t *testing.T) {
	dir := t.TempDir()
	mem, err := memory.NewStore(dir + "/memory")
	if err != nil {
		t.Fatalf("memory.NewStore: %v", err)
	}
	sm, err := sessions.NewManager(dir + "/sessions")
	if err != nil {
		t.Fatalf("sessions.NewManager: %v", err)
	}

	key := "cli:u1"
	sm.GetOrCreate(key)
	for i := 0; i < 10; i++ {
		sm.AddMessage(key, sessions.Message{Role: "user", Content: sessions.TextContent("msg")})
	}
	sm.Save(key)

	provider := &fakeProvider{resp: &providers.ChatResponse{
		Content: `{"history_entry": "ten messages exchanged", "memory_update": "user sent 10 test messages"}`,
	}}
	c := New(provider, "fake-model", mem, sm)

	c.RunAsync(context.Background(), key, 2, false)

	waitUntil(t, func() bool { return !c.IsRunning(key) })

	s, _ := sm.Get(key)
	if s.LastConsolidatedIndex != 8 {
		t.Errorf("expected cursor to advance to 8 (10-keep(2)), got %d", s.LastConsolidatedIndex)
	}
	text, _ := mem.ReadLongTerm()
	if text != "user sent 10 test messages" {
		t.Errorf("expected memory to be updated, got %q", text)
	}
	historyCtx, _ := mem.GetMemoryContext()
	if historyCtx == "" {
		t.Error("expected memory context to be non-empty after consolidation")
	}
}

func TestRunArchiveAllResetsCursorToZero(t *testing.T) {
	dir := t.TempDir()
	mem, _ := memory.NewStore(dir + "/memory")
	sm, _ := sessions.NewManager(dir + "/sessions")

	key := "cli:u1"
	sm.GetOrCreate(key)
	sm.AddMessage(key, sessions.Message{Role: "user", Content: sessions.TextContent("hello")})
	sm.Save(key)

	provider := &fakeProvider{resp: &providers.ChatResponse{
		Content: `{"history_entry": "archived a short session", "memory_update": ""}`,
	}}
	c := New(provider, "fake-model", mem, sm)
	c.RunAsync(context.Background(), key, 0, true)
	waitUntil(t, func() bool { return !c.IsRunning(key) })

	s, _ := sm.Get(key)
	if s.LastConsolidatedIndex != 0 {
		t.Errorf("archive-all should reset cursor to 0, got %d", s.LastConsolidatedIndex)
	}
}

func TestRunFailurePolicyDoesNotAdvanceCursor(t *testing.T) {
	dir := t.TempDir()
	mem, _ := memory.NewStore(dir + "/memory")
	sm, _ := sessions.NewManager(dir + "/sessions")

	key := "cli:u1"
	sm.GetOrCreate(key)
	for i := 0; i < 5; i++ {
		sm.AddMessage(key, sessions.Message{Role: "user", Content: sessions.TextContent("x")})
	}
	sm.Save(key)

	provider := &fakeProvider{resp: &providers.ChatResponse{Content: "not valid json"}}
	c := New(provider, "fake-model", mem, sm)
	c.RunAsync(context.Background(), key, 1, false)
	waitUntil(t, func() bool { return !c.IsRunning(key) })

	s, _ := sm.Get(key)
	if s.LastConsolidatedIndex != 0 {
		t.Errorf("failed consolidation must not advance the cursor, got %d", s.LastConsolidatedIndex)
	}
}

func TestRunAsyncSkipsSecondConcurrentTrigger(t *testing.T) {
	dir := t.TempDir()
	mem, _ := memory.NewStore(dir + "/memory")
	sm, _ := sessions.NewManager(dir + "/sessions")
	key := "cli:u1"
	sm.GetOrCreate(key)
	sm.AddMessage(key, sessions.Message{Role: "user", Content: sessions.TextContent("x")})
	sm.Save(key)

	blockUntil := make(chan struct{})
	provider := &blockingProvider{release: blockUntil}
	c := New(provider, "fake-model", mem, sm)

	c.RunAsync(context.Background(), key, 0, true)
	waitUntil(t, func() bool { return c.IsRunning(key) })
	if c.IsRunning(key) == false {
		t.Fatal("expected first run to be in flight")
	}
	// A second trigger while the first is in flight must be a no-op.
	c.RunAsync(context.Background(), key, 0, true)

	close(blockUntil)
	waitUntil(t, func() bool { return !c.IsRunning(key) })
}

type blockingProvider struct {
	release chan struct{}
}

func (p *blockingProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	<-p.release
	return &providers.ChatResponse{Content: `{"history_entry":"done","memory_update":""}`}, nil
}
func (p *blockingProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return p.Chat(ctx, req)
}
func (p *blockingProvider) DefaultModel() string { return "fake-model" }
func (p *blockingProvider) Name() string         { return "fake" }

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition did not become true in time")
}
