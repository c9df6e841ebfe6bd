package tools

import (
	"context"

	"github.com/coreclaw/agentcore/internal/bus"
)

// MessageTool lets a model push content to the current conversation's
// channel directly, out-of-band from its own final turn reply — useful for
// a status update mid-way through a long tool-call sequence. When it fires,
// it marks the per-iteration sent flag (spec §4.6) so the Agent Loop
// suppresses its own final outbound for this turn rather than double-send.
type MessageTool struct {
	msgBus *bus.MessageBus
}

func NewMessageTool(msgBus *bus.MessageBus) *MessageTool {
	return &MessageTool{msgBus: msgBus}
}

func (t *MessageTool) Name() string { return "message" }
func (t *MessageTool) Description() string {
	return "Send a message to the user in the current conversation right now, without waiting for the turn to end."
}

func (t *MessageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Message text to send",
			},
		},
		"required": []string{"content"},
	}
}

func (t *MessageTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.msgBus == nil {
		return ErrorResult("message bus not available")
	}
	content, _ := args["content"].(string)
	if content == "" {
		return ErrorResult("content is required")
	}

	channel := ToolChannelFromCtx(ctx)
	chatID := ToolChatIDFromCtx(ctx)
	if channel == "" || chatID == "" {
		return ErrorResult("no active channel/chat_id for this turn")
	}

	t.msgBus.PublishOutbound(bus.OutboundMessage{Channel: channel, ChatID: chatID, Content: content})

	if flag := MessageSentFlagFromCtx(ctx); flag != nil {
		*flag = true
	}
	return SilentResult("sent")
}
