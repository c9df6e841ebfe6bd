// Package consolidator implements the Memory Consolidator (spec §4.7): when
// a session grows past its memory window, the oldest stretch of messages is
// summarized by an LLM call into the long-term Memory Store and an
// append-only history log, and the session's live window is trimmed back.
package consolidator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/coreclaw/agentcore/internal/memory"
	"github.com/coreclaw/agentcore/internal/providers"
	"github.com/coreclaw/agentcore/internal/sessions"
)

const systemPrompt = `You maintain long-term memory for an ongoing conversation. You will be given the current memory document and a chunk of new conversation history to fold into it.

Respond with a single JSON object, nothing else:
{"history_entry": "a few sentences summarizing what happened in this chunk, for an append-only log", "memory_update": "the full replacement memory document, or the unchanged current memory if nothing durable needs to change"}`

// Consolidator runs one summarization pass at a time per session key; a
// second trigger for the same key while one is in flight is a no-op, not
// queued, since the next natural trigger will pick up where this one left
// off once the cursor advances (or retry the same range if it failed).
type Consolidator struct {
	provider providers.Provider
	model    string
	memory   *memory.Store
	sessions *sessions.Manager

	mu      sync.Mutex
	running map[string]bool
}

func New(provider providers.Provider, model string, mem *memory.Store, sess *sessions.Manager) *Consolidator {
	return &Consolidator{
		provider: provider,
		model:    model,
		memory:   mem,
		sessions: sess,
		running:  make(map[string]bool),
	}
}

// IsRunning reports whether a consolidation for key is currently in flight.
func (c *Consolidator) IsRunning(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running[key]
}

func (c *Consolidator) tryStart(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running[key] {
		return false
	}
	c.running[key] = true
	return true
}

func (c *Consolidator) finish(key string) {
	c.mu.Lock()
	delete(c.running, key)
	c.mu.Unlock()
}

// RunAsync schedules a consolidation for key in a background goroutine if
// one isn't already running. The session is snapshotted before RunAsync
// returns, so a caller may clear it right afterwards. archiveAll summarizes
// every message in the session (used by /new) rather than just the
// unconsolidated range that leaves the newest keep messages out.
func (c *Consolidator) RunAsync(ctx context.Context, key string, keep int, archiveAll bool) {
	if !c.tryStart(key) {
		return
	}
	snap, ok := c.sessions.Snapshot(key)
	go func() {
		defer c.finish(key)
		if !ok {
			slog.Warn("consolidation failed, cursor not advanced", "session", key, "error", fmt.Errorf("session %q not found", key))
			return
		}
		if err := c.run(ctx, key, snap, keep, archiveAll); err != nil {
			slog.Warn("consolidation failed, cursor not advanced", "session", key, "error", err)
		}
	}()
}

func (c *Consolidator) run(ctx context.Context, key string, snap *sessions.Session, keep int, archiveAll bool) error {
	var old []sessions.Message
	var newCursor int
	if archiveAll {
		old = snap.Messages
		newCursor = 0
	} else {
		end := len(snap.Messages) - keep
		if end <= snap.LastConsolidatedIndex {
			return nil // nothing new to consolidate
		}
		old = snap.Messages[snap.LastConsolidatedIndex:end]
		newCursor = end
	}
	if len(old) == 0 {
		return nil
	}

	currentMemory, err := c.memory.ReadLongTerm()
	if err != nil {
		return fmt.Errorf("read current memory: %w", err)
	}

	rendered := renderMessages(old)
	userPrompt := fmt.Sprintf("Current memory:\n%s\n\nNew conversation history:\n%s", orNone(currentMemory), rendered)
	sysMsg := providers.TextMessage("system", systemPrompt)
	userMsg := providers.TextMessage("user", userPrompt)

	resp, err := c.provider.Chat(ctx, providers.ChatRequest{
		Messages:  []providers.Message{sysMsg, userMsg},
		Model:     c.model,
		MaxTokens: 2048,
	})
	if err != nil {
		return fmt.Errorf("consolidation LLM call: %w", err)
	}

	historyEntry, memoryUpdate, err := parseConsolidationResponse(resp.Content)
	if err != nil {
		return fmt.Errorf("parse consolidation response: %w", err)
	}

	if historyEntry != "" {
		if err := c.memory.AppendHistory(historyEntry); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}
	if memoryUpdate != "" && memoryUpdate != currentMemory {
		if err := c.memory.WriteLongTerm(memoryUpdate); err != nil {
			return fmt.Errorf("write memory: %w", err)
		}
	}

	if err := c.sessions.SetConsolidationCursor(key, newCursor); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return c.sessions.Save(key)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(empty, nothing recorded yet)"
	}
	return s
}

// renderMessages formats a chunk of session history as timestamped, role-
// tagged lines for the consolidation prompt.
func renderMessages(msgs []sessions.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		stamp := m.Timestamp.Format("2006-01-02 15:04")
		role := strings.ToUpper(m.Role)
		toolsNote := ""
		if len(m.ToolsUsed) > 0 {
			toolsNote = fmt.Sprintf(" [tools: %s]", strings.Join(m.ToolsUsed, ", "))
		}
		fmt.Fprintf(&b, "[%s] %s%s: %s\n", stamp, role, toolsNote, m.Content.String())
	}
	return b.String()
}

// parseConsolidationResponse tolerantly extracts {history_entry,
// memory_update} from the model's reply: a fenced code block wrapper is
// stripped first, and non-string field values are stringified defensively
// rather than rejected, since a model occasionally emits a nested object or
// array where a string was asked for.
func parseConsolidationResponse(raw string) (historyEntry, memoryUpdate string, err error) {
	raw = stripCodeFence(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", "", err
	}
	historyEntry = stringify(fields["history_entry"])
	memoryUpdate = stringify(fields["memory_update"])
	return historyEntry, memoryUpdate, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func stringify(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
