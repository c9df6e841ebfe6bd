// Package agent implements the Agent Loop (spec §4.6): the iterative
// LLM-call / tool-dispatch engine that turns one inbound message into zero
// or more tool calls and a final reply, with loop detection, plan-mode
// steering, and tool-forcing heuristics.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coreclaw/agentcore/internal/bus"
	"github.com/coreclaw/agentcore/internal/channels"
	"github.com/coreclaw/agentcore/internal/consolidator"
	"github.com/coreclaw/agentcore/internal/contextbuilder"
	"github.com/coreclaw/agentcore/internal/providers"
	"github.com/coreclaw/agentcore/internal/sessions"
	"github.com/coreclaw/agentcore/internal/tools"
)

const (
	defaultMaxIterations  = 20
	defaultMemoryWindow   = 40
	loopDetectionStreak   = 3
	forcedRetryBound      = 5
	planModeCharThreshold = 200
	noResponseFallback    = "I've completed processing but have no response to give."
)

// Config holds the Agent Loop's tunable knobs.
type Config struct {
	MaxIterations int
	MemoryWindow  int
	Model         string
	Temperature   float64
	MaxTokens     int
}

func DefaultConfig() Config {
	return Config{
		MaxIterations: defaultMaxIterations,
		MemoryWindow:  defaultMemoryWindow,
		Temperature:   0.7,
		MaxTokens:     4096,
	}
}

// OnProgress is called mid-turn with a rendering of what the model is about
// to do: its visible text so far, then (separately) a hint of the upcoming
// tool calls.
type OnProgress func(text string)

// Loop is the Agent Loop: one instance is shared across every session, since
// all per-turn state lives on the stack of processMessage.
type Loop struct {
	provider     providers.Provider
	sessions     *sessions.Manager
	toolRegistry *tools.Registry
	builder      *contextbuilder.Builder
	consolidator *consolidator.Consolidator
	msgBus       *bus.MessageBus
	cfg          Config
	policy       *tools.PolicyEngine
	rateLimiter  *channels.RateLimiter

	// perSession serializes foreground mutation of a single session key, so
	// two inbound messages for the same conversation never interleave their
	// tool-call iterations (spec §5 concurrency model: the Agent Loop is the
	// single logical owner of a session key).
	mu         sync.Mutex
	perSession map[string]*sync.Mutex
}

func NewLoop(
	provider providers.Provider,
	sess *sessions.Manager,
	registry *tools.Registry,
	builder *contextbuilder.Builder,
	cons *consolidator.Consolidator,
	msgBus *bus.MessageBus,
	cfg Config,
) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.MemoryWindow <= 0 {
		cfg.MemoryWindow = defaultMemoryWindow
	}
	return &Loop{
		provider:     provider,
		sessions:     sess,
		toolRegistry: registry,
		builder:      builder,
		consolidator: cons,
		msgBus:       msgBus,
		cfg:          cfg,
		perSession:   make(map[string]*sync.Mutex),
	}
}

// SetPolicy installs a tool policy engine; nil disables filtering and
// restores the full registry to every call (the default when unset).
func (l *Loop) SetPolicy(pe *tools.PolicyEngine) {
	l.policy = pe
}

// SetRateLimiter installs a per-sender rate limiter; nil (the default)
// disables rate limiting of inbound bus traffic. CLI turns driven through
// ProcessDirect bypass it, since those are already gated by the local
// operator's own terminal.
func (l *Loop) SetRateLimiter(rl *channels.RateLimiter) {
	l.rateLimiter = rl
}

func (l *Loop) toolDefs() []providers.ToolDefinition {
	if l.policy == nil {
		return l.toolRegistry.ProviderDefs()
	}
	return l.policy.FilterTools(l.toolRegistry, false, false)
}

func (l *Loop) sessionLock(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.perSession[key]
	if !ok {
		m = &sync.Mutex{}
		l.perSession[key] = m
	}
	return m
}

// Run consumes the inbound bus until ctx is cancelled, processing one
// message at a time per distinct session key (different session keys run
// concurrently; within a key, ProcessDirect serializes via sessionLock).
func (l *Loop) Run(ctx context.Context) {
	for {
		msg, ok := l.msgBus.ConsumeInbound(ctx, time.Second)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		go l.handleInbound(ctx, msg)
	}
}

func (l *Loop) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	channel, chatID := msg.Channel, msg.ChatID
	if channel == sessions.ChannelSystem {
		if origChannel, origChatID, ok := sessions.ParseSystemChatID(chatID); ok {
			channel, chatID = origChannel, origChatID
		}
	}

	if l.rateLimiter != nil && channel != sessions.ChannelSystem {
		limitKey := msg.SenderID
		if limitKey == "" {
			limitKey = chatID
		}
		if !l.rateLimiter.Allow(limitKey) {
			l.msgBus.PublishOutbound(bus.OutboundMessage{
				Channel: channel,
				ChatID:  chatID,
				Content: "You're sending messages too quickly. Please slow down and try again in a moment.",
			})
			return
		}
	}

	sessionKey := sessions.BuildSessionKey(msg.Channel, msg.ChatID)
	// sessions_send targets an arbitrary existing session (which may not be
	// shaped like channel:chat_id, e.g. an isolated:<uuid> session), so it
	// carries the real destination out-of-band rather than relying on the
	// system-channel chat_id encoding above.
	if target := msg.Metadata["target_session_key"]; target != "" {
		sessionKey = target
	}

	lock := l.sessionLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	onProgress := func(text string) {
		if text == "" {
			return
		}
		l.msgBus.PublishOutbound(bus.OutboundMessage{
			Channel:  channel,
			ChatID:   chatID,
			Content:  text,
			Metadata: map[string]string{"_progress": "true"},
		})
	}

	final, _, err := l.processMessage(ctx, sessionKey, channel, chatID, msg.Content, msg.Media, onProgress)
	if err != nil {
		slog.Error("agent loop: turn failed", "session", sessionKey, "error", err)
		return
	}
	if final == "" {
		return
	}
	l.msgBus.PublishOutbound(bus.OutboundMessage{Channel: channel, ChatID: chatID, Content: final})
}

// ProcessDirect runs one turn synchronously and returns its final content,
// for callers (CLI channel, tests) that want the reply in hand rather than
// routed back through the bus.
func (l *Loop) ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string, onProgress OnProgress) (string, []string, error) {
	lock := l.sessionLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()
	return l.processMessage(ctx, sessionKey, channel, chatID, content, nil, onProgress)
}

func (l *Loop) processMessage(ctx context.Context, sessionKey, channel, chatID, content string, media []string, onProgress OnProgress) (string, []string, error) {
	sess, err := l.sessions.GetOrCreate(sessionKey)
	if err != nil {
		return "", nil, fmt.Errorf("get session: %w", err)
	}

	if reply, handled := l.handleSlashCommand(ctx, sessionKey, content); handled {
		return reply, nil, nil
	}

	if len(sess.Messages) > l.cfg.MemoryWindow && !l.consolidator.IsRunning(sessionKey) {
		l.consolidator.RunAsync(ctx, sessionKey, l.cfg.MemoryWindow/2, false)
	}

	messages, err := l.builder.Build(ctx, sess, channel, chatID, content, media)
	if err != nil {
		return "", nil, fmt.Errorf("build context: %w", err)
	}

	forced := l.applyToolForcing(&messages, content)
	l.applyPlanMode(&messages, content)

	sent := false
	toolCtx := tools.WithToolChannel(ctx, channel)
	toolCtx = tools.WithToolChatID(toolCtx, chatID)
	toolCtx = tools.WithMessageSentFlag(toolCtx, &sent)

	finalContent, toolsUsed, turnMessages := l.iterate(toolCtx, messages, forced, onProgress)
	if finalContent == "" {
		finalContent = noResponseFallback
	}

	userParts := l.builder.ProcessMedia(ctx, media)
	userMsg := sessions.Message{Role: "user", Timestamp: time.Now()}
	if len(userParts) > 0 {
		userParts = append(userParts, sessions.ContentPart{Kind: "text", Text: content})
		userMsg.Content = sessions.PartsContent(userParts)
	} else {
		userMsg.Content = sessions.TextContent(content)
	}
	assistantMsg := sessions.Message{
		Role:      "assistant",
		Content:   sessions.TextContent(finalContent),
		Timestamp: time.Now(),
		ToolsUsed: toolsUsed,
	}

	_ = l.sessions.AddMessage(sessionKey, userMsg)
	for _, m := range turnMessages {
		_ = l.sessions.AddMessage(sessionKey, m)
	}
	_ = l.sessions.AddMessage(sessionKey, assistantMsg)
	if err := l.sessions.Save(sessionKey); err != nil {
		slog.Warn("agent loop: failed to persist session", "session", sessionKey, "error", err)
	}

	if sent {
		return "", toolsUsed, nil
	}
	return finalContent, toolsUsed, nil
}

func (l *Loop) handleSlashCommand(ctx context.Context, sessionKey, content string) (string, bool) {
	switch strings.TrimSpace(content) {
	case "/new":
		l.sessions.Invalidate(sessionKey)
		if _, err := l.sessions.GetOrCreate(sessionKey); err != nil {
			return "failed to start a new session", true
		}
		snap, ok := l.sessions.Snapshot(sessionKey)
		if ok && len(snap.Messages) > 0 {
			l.consolidator.RunAsync(ctx, sessionKey, 0, true)
		}
		if err := l.sessions.Clear(sessionKey); err != nil {
			return "failed to clear session", true
		}
		_ = l.sessions.Save(sessionKey)
		return "Started a new session. Prior conversation has been archived to memory.", true
	case "/isolate":
		key := sessions.BuildIsolatedSessionKey(uuid.NewString())
		if _, err := l.sessions.GetOrCreate(key); err != nil {
			return "failed to create isolated session", true
		}
		return fmt.Sprintf("Created isolated session %q. Message it directly with the sessions_send tool.", key), true
	case "/help":
		return "Available commands:\n/new - start a fresh session (archives current history to memory)\n/isolate - create a standalone session, detached from this channel/chat\n/help - show this message", true
	}
	return "", false
}

// toolForceKeywords maps a keyword (English plus a workspace-native
// equivalent) to the tool name it should force a call to.
var toolForceKeywords = map[string]string{
	"browser":    "browser",
	"browse":     "browser",
	"cron":       "cron",
	"schedule":   "cron",
	"lên lịch":   "cron",
	"generate an image": "create_image",
	"draw":       "create_image",
	"vẽ":         "create_image",
	"session":    "session_status",
	"phiên":      "session_status",
}

func (l *Loop) applyToolForcing(messages *[]providers.Message, content string) bool {
	lower := strings.ToLower(content)
	var matched []string
	for kw, tool := range toolForceKeywords {
		if strings.Contains(lower, kw) {
			matched = append(matched, tool)
		}
	}
	if len(matched) == 0 {
		return false
	}
	sort.Strings(matched)
	directive := fmt.Sprintf("[MANDATORY] Before replying, you must call one of these tools: %s.", strings.Join(matched, ", "))
	*messages = append(*messages, providers.TextMessage("system", directive))
	*messages = append(*messages, providers.TextMessage("user", "Use the required tool now, then respond."))
	return true
}

var planModeKeywords = []string{"plan", "step by step", "step-by-step", "roadmap", "kế hoạch"}

func (l *Loop) applyPlanMode(messages *[]providers.Message, content string) {
	lower := strings.ToLower(content)
	trigger := len(content) > planModeCharThreshold
	if !trigger {
		for _, kw := range planModeKeywords {
			if strings.Contains(lower, kw) {
				trigger = true
				break
			}
		}
	}
	if !trigger {
		return
	}
	*messages = append(*messages, providers.TextMessage("system",
		"This request needs a plan. Emit a checklist first using \"- [ ] **Step**: ...\" lines, "+
			"then execute each step, marking it \"[x]\" once done."))
}

// recordedCall is one (name, canonical-args) pair seen during the turn, used
// for loop detection.
type recordedCall struct {
	name string
	args string
}

func canonicalArgs(args map[string]interface{}) string {
	b, err := json.Marshal(sortedMap(args))
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(b)
}

// sortedMap recursively re-keys maps into a deterministic wrapper so
// json.Marshal's natural key-sorted map encoding is stable regardless of
// how the argument map was built.
func sortedMap(v interface{}) interface{} {
	switch m := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[k] = sortedMap(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(m))
		for i, val := range m {
			out[i] = sortedMap(val)
		}
		return out
	default:
		return v
	}
}

var failureIndicators = []string{
	"failed", "error", "exception", "timeout", "timed out", "not found", "permission denied",
	"thất bại", "lỗi", "hết thời gian", "không tìm thấy", "từ chối",
}

func containsFailureIndicator(s string) bool {
	lower := strings.ToLower(s)
	for _, ind := range failureIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// iterate runs the tool-calling loop and, alongside the final content and
// tools used, returns the ordered sessions.Message sequence produced during
// the turn (each assistant-with-tool_calls message immediately followed by
// its matching tool-result messages), so the caller can persist the full
// exchange into the session log per spec §3 invariant 2.
func (l *Loop) iterate(ctx context.Context, messages []providers.Message, forced bool, onProgress OnProgress) (string, []string, []sessions.Message) {
	var recent []recordedCall
	var toolsUsed []string
	var turn []sessions.Message
	usedAny := false
	var finalContent string

	for iteration := 0; iteration < l.cfg.MaxIterations; iteration++ {
		resp, err := l.provider.Chat(ctx, providers.ChatRequest{
			Messages:    messages,
			Tools:       l.toolDefs(),
			Model:       l.cfg.Model,
			Temperature: l.cfg.Temperature,
			MaxTokens:   l.cfg.MaxTokens,
		})
		if err != nil {
			slog.Error("agent loop: LLM call failed", "iteration", iteration, "error", err)
			return fmt.Sprintf("[FAILED] LLM call error: %v", err), toolsUsed, turn
		}

		if !resp.HasToolCalls() {
			text := SanitizeAssistantContent(resp.Content)
			if forced && !usedAny && iteration < forcedRetryBound {
				messages = append(messages, providers.TextMessage("user",
					"You must call the required tool before replying in plain text. Try again."))
				continue
			}
			finalContent = text
			break
		}

		if onProgress != nil {
			if text := SanitizeAssistantContent(resp.Content); text != "" {
				onProgress(text)
			}
			onProgress(progressHint(resp))
		}

		assistantMsg := providers.Message{
			Role:             "assistant",
			Content:          strPtr(resp.Content),
			ReasoningContent: resp.ReasoningContent,
			ToolCalls:        resp.ToolCalls,
		}
		messages = append(messages, assistantMsg)
		turn = append(turn, sessions.Message{
			Role:      "assistant",
			Content:   sessions.TextContent(resp.Content),
			Timestamp: time.Now(),
			ToolCalls: toSessionToolCalls(resp.ToolCalls),
		})

		aborted := false
		for _, tc := range resp.ToolCalls {
			call := recordedCall{name: tc.Name, args: canonicalArgs(tc.Arguments)}
			recent = append(recent, call)
			if loopDetected(recent) {
				abortMsg := fmt.Sprintf("[FAILED] Repeated the same tool call (%s) %d times in a row; aborting this turn.", tc.Name, loopDetectionStreak)
				messages = append(messages, providers.Message{Role: "tool", Content: strPtr(abortMsg), ToolCallID: tc.ID})
				turn = append(turn, sessions.Message{
					Role: "tool", Content: sessions.TextContent(abortMsg),
					Timestamp: time.Now(), ToolCallID: tc.ID, Name: tc.Name,
				})
				finalContent = abortMsg
				aborted = true
				break
			}

			result := l.toolRegistry.Execute(ctx, tc.Name, tc.Arguments)
			toolsUsed = append(toolsUsed, tc.Name)
			usedAny = true

			forLLM := result.ForLLM
			if containsFailureIndicator(forLLM) {
				forLLM += "\n\n[Note: this looks like a failure. Try a different approach, or explicitly tell the user it failed.]"
			}
			messages = append(messages, providers.Message{Role: "tool", Content: &forLLM, ToolCallID: tc.ID})
			turn = append(turn, sessions.Message{
				Role: "tool", Content: sessions.TextContent(forLLM),
				Timestamp: time.Now(), ToolCallID: tc.ID, Name: tc.Name,
			})
		}
		if aborted {
			break
		}
	}

	return finalContent, dedupe(toolsUsed), turn
}

// toSessionToolCalls converts the provider wire shape of a tool call into
// the session log's stored shape, JSON-encoding arguments back to the raw
// text form sessions.ToolCallSpec persists.
func toSessionToolCalls(calls []providers.ToolCall) []sessions.ToolCallSpec {
	if len(calls) == 0 {
		return nil
	}
	out := make([]sessions.ToolCallSpec, 0, len(calls))
	for _, c := range calls {
		argsJSON, err := json.Marshal(c.Arguments)
		if err != nil {
			argsJSON = []byte("{}")
		}
		out = append(out, sessions.ToolCallSpec{ID: c.ID, Name: c.Name, Arguments: string(argsJSON)})
	}
	return out
}

func loopDetected(recent []recordedCall) bool {
	n := len(recent)
	if n < loopDetectionStreak {
		return false
	}
	last := recent[n-1]
	for i := n - loopDetectionStreak; i < n; i++ {
		if recent[i] != last {
			return false
		}
	}
	return true
}

func progressHint(resp *providers.ChatResponse) string {
	if len(resp.ToolCalls) == 0 {
		return ""
	}
	tc := resp.ToolCalls[0]
	hint := tc.Name + "("
	for _, v := range tc.Arguments {
		hint += fmt.Sprintf("%v…", v)
		break
	}
	hint += ")"
	return hint
}

func strPtr(s string) *string { return &s }

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0:0]
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}
