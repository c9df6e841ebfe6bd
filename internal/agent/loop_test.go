package agent

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coreclaw/agentcore/internal/bus"
	"github.com/coreclaw/agentcore/internal/consolidator"
	"github.com/coreclaw/agentcore/internal/contextbuilder"
	"github.com/coreclaw/agentcore/internal/memory"
	"github.com/coreclaw/agentcore/internal/providers"
	"github.com/coreclaw/agentcore/internal/sessions"
	"github.com/coreclaw/agentcore/internal/tools"
)

// fakeProvider replays a fixed sequence of responses, one per Chat call,
// repeating the last one if the loop calls it more times than scripted.
type fakeProvider struct {
	responses []*providers.ChatResponse
	calls     int32
}

func (p *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	i := int(atomic.AddInt32(&p.calls, 1)) - 1
	if i >= len(p.responses) {
		return p.responses[len(p.responses)-1], nil
	}
	return p.responses[i], nil
}
func (p *fakeProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return p.Chat(ctx, req)
}
func (p *fakeProvider) DefaultModel() string { return "fake-model" }
func (p *fakeProvider) Name() string         { return "fake" }

func (p *fakeProvider) callCount() int { return int(atomic.LoadInt32(&p.calls)) }

// fakeTool is a tools.Tool whose Execute returns a canned result and counts
// invocations.
type fakeTool struct {
	name   string
	result string
	calls  int32
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return "a fake tool for tests" }
func (t *fakeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (t *fakeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	atomic.AddInt32(&t.calls, 1)
	return tools.NewResult(t.result)
}

func newTestLoop(t *testing.T, provider *fakeProvider, registry *tools.Registry) (*Loop, *sessions.Manager) {
	t.Helper()
	dir := t.TempDir()
	sm, err := sessions.NewManager(dir + "/sessions")
	if err != nil {
		t.Fatalf("sessions.NewManager: %v", err)
	}
	mem, err := memory.NewStore(dir + "/memory")
	if err != nil {
		t.Fatalf("memory.NewStore: %v", err)
	}
	builder := contextbuilder.New(contextbuilder.Config{Workspace: dir, AgentName: "testbot"}, mem, nil)
	cons := consolidator.New(provider, "fake-model", mem, sm)
	msgBus := bus.NewMessageBus(4)
	cfg := DefaultConfig()
	cfg.Model = "fake-model"
	loop := NewLoop(provider, sm, registry, builder, cons, msgBus, cfg)
	return loop, sm
}

func textResp(content string) *providers.ChatResponse {
	return &providers.ChatResponse{Content: content}
}

func toolCallResp(id, name string, args map[string]interface{}) *providers.ChatResponse {
	return &providers.ChatResponse{
		ToolCalls: []providers.ToolCall{{ID: id, Name: name, Arguments: args}},
	}
}

// Scenario 1 (spec §8): plain conversation, no tool calls.
func TestProcessDirectPlainConversation(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.ChatResponse{textResp("hi")}}
	registry := tools.NewRegistry()
	loop, sm := newTestLoop(t, provider, registry)

	final, toolsUsed, err := loop.ProcessDirect(context.Background(), "hello", "cli:u1", "cli", "u1", nil)
	if err != nil {
		t.Fatalf("ProcessDirect: %v", err)
	}
	if final != "hi" {
		t.Errorf("final content = %q, want %q", final, "hi")
	}
	if len(toolsUsed) != 0 {
		t.Errorf("expected no tools used, got %v", toolsUsed)
	}

	s, ok := sm.Get("cli:u1")
	if !ok {
		t.Fatal("expected session to exist")
	}
	if len(s.Messages) != 2 {
		t.Fatalf("expected exactly 2 messages (user, assistant), got %d", len(s.Messages))
	}
	if s.Messages[0].Role != "user" || s.Messages[0].Content.String() != "hello" {
		t.Errorf("message 0 = %+v", s.Messages[0])
	}
	if s.Messages[1].Role != "assistant" || s.Messages[1].Content.String() != "hi" {
		t.Errorf("message 1 = %+v", s.Messages[1])
	}
}

// Scenario 2 (spec §8): a single tool call round-trip.
func TestProcessDirectSingleToolCall(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.ChatResponse{
		toolCallResp("call_1", "list_dir", map[string]interface{}{"path": "/tmp"}),
		textResp("Files: a, b"),
	}}
	registry := tools.NewRegistry()
	registry.Register(&fakeTool{name: "list_dir", result: "a\nb"})
	loop, sm := newTestLoop(t, provider, registry)

	final, toolsUsed, err := loop.ProcessDirect(context.Background(), "list /tmp", "cli:u1", "cli", "u1", nil)
	if err != nil {
		t.Fatalf("ProcessDirect: %v", err)
	}
	if final != "Files: a, b" {
		t.Errorf("final content = %q, want %q", final, "Files: a, b")
	}
	if len(toolsUsed) != 1 || toolsUsed[0] != "list_dir" {
		t.Errorf("toolsUsed = %v, want [list_dir]", toolsUsed)
	}

	s, _ := sm.Get("cli:u1")
	if len(s.Messages) != 4 {
		t.Fatalf("expected 4 messages (user, assistant-with-tool-calls, tool, assistant), got %d: %+v", len(s.Messages), s.Messages)
	}
	if s.Messages[0].Role != "user" {
		t.Errorf("message 0 role = %q, want user", s.Messages[0].Role)
	}
	if s.Messages[1].Role != "assistant" || len(s.Messages[1].ToolCalls) != 1 {
		t.Errorf("message 1 should be the assistant message carrying the tool call, got %+v", s.Messages[1])
	}
	if s.Messages[2].Role != "tool" || s.Messages[2].Content.String() != "a\nb" || s.Messages[2].ToolCallID != "call_1" {
		t.Errorf("message 2 should be the tool result matching call_1, got %+v", s.Messages[2])
	}
	if s.Messages[1].ToolCalls[0].ID != s.Messages[2].ToolCallID {
		t.Error("invariant violated: tool message's ToolCallID must match the preceding assistant message's tool_calls")
	}
	if s.Messages[3].Role != "assistant" || s.Messages[3].Content.String() != "Files: a, b" {
		t.Errorf("message 3 should be the final assistant reply, got %+v", s.Messages[3])
	}
}

// Scenario 3 (spec §8): three identical tool calls in a row abort the turn.
func TestProcessDirectLoopDetection(t *testing.T) {
	sameCall := func() *providers.ChatResponse {
		return toolCallResp("call_x", "web_search", map[string]interface{}{"q": "x"})
	}
	provider := &fakeProvider{responses: []*providers.ChatResponse{
		sameCall(), sameCall(), sameCall(), sameCall(), sameCall(),
	}}
	registry := tools.NewRegistry()
	registry.Register(&fakeTool{name: "web_search", result: "some result"})
	loop, _ := newTestLoop(t, provider, registry)

	final, _, err := loop.ProcessDirect(context.Background(), "search for x repeatedly", "cli:u1", "cli", "u1", nil)
	if err != nil {
		t.Fatalf("ProcessDirect: %v", err)
	}
	if !strings.Contains(final, "[FAILED]") {
		t.Errorf("expected loop-detection abort message, got %q", final)
	}
	if provider.callCount() > 4 {
		t.Errorf("expected loop detection to short-circuit within 4 LLM calls, got %d", provider.callCount())
	}
}

// Scenario 4 (spec §8): mandatory tool forcing retries plain-text-only
// responses until the provider calls the required tool or the retry bound
// is reached.
func TestProcessDirectToolForcingRetriesUntilToolCalled(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.ChatResponse{
		textResp("Sure, here is a cat description"), // discarded: forced, no tool used yet
		toolCallResp("call_1", "create_image", map[string]interface{}{"prompt": "a cat"}),
		textResp("Here's your cat image."),
	}}
	registry := tools.NewRegistry()
	registry.Register(&fakeTool{name: "create_image", result: "[VERIFIED] image created"})
	loop, _ := newTestLoop(t, provider, registry)

	final, toolsUsed, err := loop.ProcessDirect(context.Background(), "please generate an image of a cat", "cli:u1", "cli", "u1", nil)
	if err != nil {
		t.Fatalf("ProcessDirect: %v", err)
	}
	if final != "Here's your cat image." {
		t.Errorf("final content = %q", final)
	}
	if len(toolsUsed) != 1 || toolsUsed[0] != "create_image" {
		t.Errorf("toolsUsed = %v, want [create_image]", toolsUsed)
	}
}

func TestProcessDirectToolForcingGivesUpAtRetryBound(t *testing.T) {
	// The provider never calls a tool; after forcedRetryBound attempts the
	// loop must give up and return the last text rather than looping forever.
	responses := make([]*providers.ChatResponse, 0, forcedRetryBound+1)
	for i := 0; i < forcedRetryBound+1; i++ {
		responses = append(responses, textResp("still just text"))
	}
	provider := &fakeProvider{responses: responses}
	registry := tools.NewRegistry()
	registry.Register(&fakeTool{name: "create_image", result: "[VERIFIED] image created"})
	loop, _ := newTestLoop(t, provider, registry)

	final, toolsUsed, err := loop.ProcessDirect(context.Background(), "please draw me something", "cli:u1", "cli", "u1", nil)
	if err != nil {
		t.Fatalf("ProcessDirect: %v", err)
	}
	if final != "still just text" {
		t.Errorf("final content = %q, want the last text response", final)
	}
	if len(toolsUsed) != 0 {
		t.Errorf("expected no tools used, got %v", toolsUsed)
	}
}

// Scenario 5 (spec §8): /new archives and clears the session synchronously
// from the caller's point of view, then consolidates in the background.
func TestSlashNewClearsSessionAndArchives(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.ChatResponse{
		textResp(`{"history_entry": "had a chat", "memory_update": "remembers the chat"}`),
	}}
	registry := tools.NewRegistry()
	loop, sm := newTestLoop(t, provider, registry)

	// Seed a session with some history first.
	seedProvider := &fakeProvider{responses: []*providers.ChatResponse{textResp("ok")}}
	_ = seedProvider
	sm.GetOrCreate("cli:u1")
	sm.AddMessage("cli:u1", sessions.Message{Role: "user", Content: sessions.TextContent("hi")})
	sm.AddMessage("cli:u1", sessions.Message{Role: "assistant", Content: sessions.TextContent("hello")})
	sm.Save("cli:u1")

	final, _, err := loop.ProcessDirect(context.Background(), "/new", "cli:u1", "cli", "u1", nil)
	if err != nil {
		t.Fatalf("ProcessDirect: %v", err)
	}
	if final == "" {
		t.Error("expected a confirmation reply for /new")
	}

	s, ok := sm.Get("cli:u1")
	if !ok {
		t.Fatal("session should still exist after /new")
	}
	if len(s.Messages) != 0 {
		t.Errorf("expected 0 messages after /new, got %d", len(s.Messages))
	}
	if s.LastConsolidatedIndex != 0 {
		t.Errorf("expected LastConsolidatedIndex=0 after /new, got %d", s.LastConsolidatedIndex)
	}

	waitForCondition(t, func() bool { return !loop.consolidator.IsRunning("cli:u1") })
}

func TestSlashHelp(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.ChatResponse{textResp("unused")}}
	registry := tools.NewRegistry()
	loop, _ := newTestLoop(t, provider, registry)

	final, _, err := loop.ProcessDirect(context.Background(), "/help", "cli:u1", "cli", "u1", nil)
	if err != nil {
		t.Fatalf("ProcessDirect: %v", err)
	}
	if !strings.Contains(final, "/new") {
		t.Errorf("expected /help to mention /new, got %q", final)
	}
	if provider.callCount() != 0 {
		t.Error("/help should not invoke the LLM")
	}
}

func TestSlashIsolateCreatesStandaloneSession(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.ChatResponse{textResp("unused")}}
	registry := tools.NewRegistry()
	loop, _ := newTestLoop(t, provider, registry)

	final, _, err := loop.ProcessDirect(context.Background(), "/isolate", "cli:u1", "cli", "u1", nil)
	if err != nil {
		t.Fatalf("ProcessDirect: %v", err)
	}
	if !strings.Contains(final, "isolated:") {
		t.Errorf("expected /isolate to report an isolated: session key, got %q", final)
	}
	if provider.callCount() != 0 {
		t.Error("/isolate should not invoke the LLM")
	}
}

// A system-channel InboundMessage carrying target_session_key must land in
// that exact session, not in a synthesized "system:<chat_id>" wrapper
// session (regression test for the sessions_send routing fix).
func TestHandleInboundTargetSessionKeyRoutesToThatSession(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.ChatResponse{textResp("ack")}}
	registry := tools.NewRegistry()
	loop, sm := newTestLoop(t, provider, registry)

	target := sessions.BuildIsolatedSessionKey("abc-123")
	if _, err := sm.GetOrCreate(target); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	loop.handleInbound(context.Background(), bus.InboundMessage{
		Channel:  "system",
		SenderID: "sessions_send_tool",
		ChatID:   target,
		Content:  "hello",
		Metadata: map[string]string{"target_session_key": target},
	})

	sess, ok := sm.Get(target)
	if !ok {
		t.Fatalf("session %q not found", target)
	}
	found := false
	for _, m := range sess.Messages {
		if m.Content.String() == "hello" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected message delivered into target session %q, messages=%v", target, sess.Messages)
	}

	if wrong, ok := sm.Get("system:" + target); ok && len(wrong.Messages) > 0 {
		t.Errorf("message should not have landed in the system-wrapper session, got %v", wrong.Messages)
	}
}

func waitForCondition(t *testing.T, cond func() bool) {
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

func TestCanonicalArgsStableUnderKeyPermutation(t *testing.T) {
	a := map[string]interface{}{"path": "/tmp", "recursive": true}
	b := map[string]interface{}{"recursive": true, "path": "/tmp"}
	if canonicalArgs(a) != canonicalArgs(b) {
		t.Errorf("canonicalArgs must be stable under key-order permutation: %q vs %q", canonicalArgs(a), canonicalArgs(b))
	}
}

func TestLoopDetectedRequiresThreeIdenticalInARow(t *testing.T) {
	same := recordedCall{name: "x", args: `{"a":1}`}
	other := recordedCall{name: "y", args: `{}`}

	if loopDetected([]recordedCall{same, same}) {
		t.Error("two identical calls should not trigger loop detection")
	}
	if !loopDetected([]recordedCall{same, same, same}) {
		t.Error("three identical calls in a row should trigger loop detection")
	}
	if loopDetected([]recordedCall{same, other, same}) {
		t.Error("non-consecutive identical calls should not trigger loop detection")
	}
	if !loopDetected([]recordedCall{other, same, same, same}) {
		t.Error("the last three calls being identical should trigger loop detection regardless of earlier history")
	}
}

func TestContainsFailureIndicator(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"[VERIFIED] Clicked e5", false},
		{"[FAILED] element not found", true},
		{"Request timed out after 30s", true},
		{"Permission denied", true},
		{"everything worked great", false},
	}
	for _, tt := range tests {
		if got := containsFailureIndicator(tt.in); got != tt.want {
			t.Errorf("containsFailureIndicator(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestApplyToolForcingDetectsKeyword(t *testing.T) {
	registry := tools.NewRegistry()
	provider := &fakeProvider{}
	loop, _ := newTestLoop(t, provider, registry)

	var msgs []providers.Message
	forced := loop.applyToolForcing(&msgs, "please open the browser and search")
	if !forced {
		t.Error("expected 'browser' keyword to trigger tool forcing")
	}
	if len(msgs) != 2 {
		t.Errorf("expected 2 directive messages appended, got %d", len(msgs))
	}

	msgs = nil
	forced = loop.applyToolForcing(&msgs, "just chatting, nothing special")
	if forced {
		t.Error("plain text without a force keyword should not trigger forcing")
	}
}

func TestApplyPlanModeTriggersOnLongMessage(t *testing.T) {
	registry := tools.NewRegistry()
	provider := &fakeProvider{}
	loop, _ := newTestLoop(t, provider, registry)

	long := strings.Repeat("a", planModeCharThreshold+1)
	var msgs []providers.Message
	loop.applyPlanMode(&msgs, long)
	if len(msgs) != 1 {
		t.Errorf("expected a plan-mode directive for a long message, got %d messages", len(msgs))
	}

	msgs = nil
	loop.applyPlanMode(&msgs, "short")
	if len(msgs) != 0 {
		t.Errorf("expected no plan-mode directive for a short, non-planning message, got %d", len(msgs))
	}
}
