package tools

import (
	"fmt"

	"context"

	"github.com/coreclaw/agentcore/internal/bus"
	"github.com/coreclaw/agentcore/internal/sessions"
)

// ============================================================
// sessions_send
// ============================================================

// SessionsSendTool lets a model push a message into another session
// out-of-band, via the same "system" pseudo-channel the Subagent Manager
// uses to announce a finished task back to its parent (spec §4.9).
type SessionsSendTool struct {
	sessions *sessions.Manager
	msgBus   *bus.MessageBus
}

func NewSessionsSendTool(mgr *sessions.Manager, msgBus *bus.MessageBus) *SessionsSendTool {
	return &SessionsSendTool{sessions: mgr, msgBus: msgBus}
}

func (t *SessionsSendTool) Name() string { return "sessions_send" }
func (t *SessionsSendTool) Description() string {
	return "Send a message into another session, identified by its session_key."
}

func (t *SessionsSendTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_key": map[string]interface{}{
				"type":        "string",
				"description": "Target session key",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Message to send",
			},
		},
		"required": []string{"session_key", "message"},
	}
}

func (t *SessionsSendTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.sessions == nil {
		return ErrorResult("session store not available")
	}
	if t.msgBus == nil {
		return ErrorResult("message bus not available")
	}

	sessionKey, _ := args["session_key"].(string)
	message, _ := args["message"].(string)

	if sessionKey == "" {
		return ErrorResult("session_key is required")
	}
	if message == "" {
		return ErrorResult("message is required")
	}
	if _, ok := t.sessions.Get(sessionKey); !ok {
		return ErrorResult(fmt.Sprintf("no such session: %s", sessionKey))
	}

	// target_session_key tells the Agent Loop which session to actually
	// process the turn against; chat_id only carries enough of the origin
	// channel/chat_id for the "you're sending too fast" rate-limit path and
	// falls back to routing the reply nowhere when the target isn't a real
	// outbound channel (e.g. an isolated:<uuid> session).
	t.msgBus.PublishInbound(bus.InboundMessage{
		Channel:  "system",
		SenderID: "sessions_send_tool",
		ChatID:   sessionKey,
		Content:  message,
		Metadata: map[string]string{"target_session_key": sessionKey},
	})

	return SilentResult(fmt.Sprintf(`{"status":"accepted","session_key":"%s"}`, sessionKey))
}
