package bus

import (
	"context"
	"time"
)

// InboundMessage represents a message received from a channel (Discord, CLI, the
// system pseudo-channel, ...).
//
// session_key is derived as channel:chat_id, except for the "system" channel
// where chat_id itself encodes origin_channel:origin_chat_id.
type InboundMessage struct {
	Channel  string            `json:"channel"`
	SenderID string            `json:"sender_id"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Media    []string          `json:"media,omitempty"`
	UserID   string            `json:"user_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage represents a message to be sent to a channel.
// Metadata["_progress"] == "true" marks an intermediate emission that does not
// conclude a turn.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Media    []MediaAttachment `json:"media,omitempty"`
	ReplyTo  string            `json:"reply_to,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsProgress reports whether this outbound message is an intermediate
// progress emission rather than the turn's final reply.
func (m OutboundMessage) IsProgress() bool {
	return m.Metadata != nil && m.Metadata["_progress"] == "true"
}

// MediaAttachment represents a media file to be sent with a message.
type MediaAttachment struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type,omitempty"`
	Caption     string `json:"caption,omitempty"`
}

// MessageHandler handles an inbound message from a specific channel.
type MessageHandler func(InboundMessage) error

// MessageRouter abstracts inbound/outbound message routing between channels
// and the agent runtime. The concrete implementation is *MessageBus.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context, timeout time.Duration) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(channel string) <-chan OutboundMessage
}
