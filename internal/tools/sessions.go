package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coreclaw/agentcore/internal/sessions"
)

// currentSessionKeyFromCtx rebuilds the session key for the turn currently
// executing this tool, mirroring how the Agent Loop derives it from the
// same channel/chat_id it injects into ctx.
func currentSessionKeyFromCtx(ctx context.Context) string {
	channel := ToolChannelFromCtx(ctx)
	chatID := ToolChatIDFromCtx(ctx)
	if channel == "" || chatID == "" {
		return ""
	}
	return sessions.BuildSessionKey(channel, chatID)
}

// ============================================================
// sessions_list
// ============================================================

type SessionsListTool struct {
	sessions *sessions.Manager
}

func NewSessionsListTool(mgr *sessions.Manager) *SessionsListTool {
	return &SessionsListTool{sessions: mgr}
}

func (t *SessionsListTool) Name() string { return "sessions_list" }
func (t *SessionsListTool) Description() string {
	return "List known sessions with optional recency filter."
}

func (t *SessionsListTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"limit": map[string]interface{}{
				"type":        "number",
				"description": "Max sessions to return (default 20)",
			},
			"active_minutes": map[string]interface{}{
				"type":        "number",
				"description": "Only show sessions updated in the last N minutes",
			},
		},
	}
}

func (t *SessionsListTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.sessions == nil {
		return ErrorResult("session store not available")
	}

	limit := 20
	if v, ok := args["limit"].(float64); ok && int(v) > 0 {
		limit = int(v)
	}
	var activeMinutes int
	if v, ok := args["active_minutes"].(float64); ok && int(v) > 0 {
		activeMinutes = int(v)
	}

	list := t.sessions.List()
	if activeMinutes > 0 {
		cutoff := time.Now().Add(-time.Duration(activeMinutes) * time.Minute)
		filtered := list[:0:0]
		for _, s := range list {
			if s.UpdatedAt.After(cutoff) {
				filtered = append(filtered, s)
			}
		}
		list = filtered
	}
	if len(list) > limit {
		list = list[:limit]
	}

	type sessionEntry struct {
		Key          string `json:"key"`
		MessageCount int    `json:"message_count"`
		Updated      string `json:"updated"`
	}
	entries := make([]sessionEntry, 0, len(list))
	for _, s := range list {
		entries = append(entries, sessionEntry{
			Key:          s.Key,
			MessageCount: s.MessageCount,
			Updated:      s.UpdatedAt.Format(time.RFC3339),
		})
	}

	out, _ := json.Marshal(map[string]interface{}{
		"count":    len(entries),
		"sessions": entries,
	})
	return SilentResult(string(out))
}

// ============================================================
// session_status
// ============================================================

type SessionStatusTool struct {
	sessions *sessions.Manager
}

func NewSessionStatusTool(mgr *sessions.Manager) *SessionStatusTool {
	return &SessionStatusTool{sessions: mgr}
}

func (t *SessionStatusTool) Name() string { return "session_status" }
func (t *SessionStatusTool) Description() string {
	return "Show session status: model, tokens, consolidation cursor, channel, last update."
}

func (t *SessionStatusTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_key": map[string]interface{}{
				"type":        "string",
				"description": "Session key to inspect (default: current session)",
			},
		},
	}
}

func (t *SessionStatusTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.sessions == nil {
		return ErrorResult("session store not available")
	}

	key, _ := args["session_key"].(string)
	if key == "" {
		key = currentSessionKeyFromCtx(ctx)
	}
	if key == "" {
		return ErrorResult("session_key is required (could not detect current session)")
	}

	s, ok := t.sessions.Get(key)
	if !ok {
		return ErrorResult(fmt.Sprintf("no such session: %s", key))
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Session: %s", s.Key))
	lines = append(lines, fmt.Sprintf("Messages: %d", len(s.Messages)))
	lines = append(lines, fmt.Sprintf("Consolidated through: %d", s.LastConsolidatedIndex))
	if s.ContextWindow > 0 {
		lines = append(lines, fmt.Sprintf("Context window: %d tokens", s.ContextWindow))
	}
	if s.LastPromptTokens > 0 {
		lines = append(lines, fmt.Sprintf("Last prompt tokens: %d", s.LastPromptTokens))
	}
	if s.Metadata.Isolated {
		lines = append(lines, "Isolated: yes")
	}
	lines = append(lines, fmt.Sprintf("Updated: %s", s.UpdatedAt.Format(time.RFC3339)))

	return SilentResult(strings.Join(lines, "\n"))
}
