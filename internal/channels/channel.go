// Package channels provides the channel abstraction layer that lets
// transports (CLI, Discord, ...) publish onto and consume from the
// message bus without the Agent Loop knowing anything about the
// transport's wire format (spec §4.10, the Channel Adapter Contract).
package channels

import (
	"context"
	"strings"

	"github.com/coreclaw/agentcore/internal/bus"
)

// InternalChannels are pseudo-channels excluded from outbound dispatch:
// they never have a registered transport to send through.
var InternalChannels = map[string]bool{
	"cli":    true,
	"system": true,
}

// IsInternalChannel checks if a channel name is internal.
func IsInternalChannel(name string) bool {
	return InternalChannels[name]
}

// DMPolicy controls how DMs from unknown senders are handled.
type DMPolicy string

const (
	DMPolicyAllowlist DMPolicy = "allowlist" // only whitelisted senders
	DMPolicyOpen      DMPolicy = "open"      // accept all
	DMPolicyDisabled  DMPolicy = "disabled"  // reject all DMs
)

// GroupPolicy controls how group messages are handled.
type GroupPolicy string

const (
	GroupPolicyOpen      GroupPolicy = "open"      // accept all groups
	GroupPolicyAllowlist GroupPolicy = "allowlist" // only whitelisted groups
	GroupPolicyDisabled  GroupPolicy = "disabled"  // no group messages
)

// PeerDirect/PeerGroup are the metadata["peer_kind"] values HandleMessage
// records, so the Agent Loop and policy checks can distinguish a DM from a
// group mention without a dedicated InboundMessage field.
const (
	PeerDirect = "direct"
	PeerGroup  = "group"
)

// Channel is the closed capability set every transport implements (spec §9
// Polymorphism: "{start, stop, send}").
type Channel interface {
	// Name returns the channel identifier (e.g. "discord", "cli").
	Name() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the channel.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning returns whether the channel is actively processing messages.
	IsRunning() bool

	// IsAllowed checks if a sender is permitted by the channel's allowlist.
	IsAllowed(senderID string) bool
}

// BaseChannel provides shared functionality for all channel
// implementations; concrete channels embed it.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	running   bool
	allowList []string
}

func NewBaseChannel(name string, msgBus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       msgBus,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) IsRunning() bool { return c.running }

func (c *BaseChannel) SetRunning(running bool) { c.running = running }

func (c *BaseChannel) Bus() *bus.MessageBus { return c.bus }

// HasAllowList returns true if an allowlist is configured (non-empty).
func (c *BaseChannel) HasAllowList() bool { return len(c.allowList) > 0 }

// IsAllowed checks if a sender is permitted by the allowlist. Supports the
// compound senderID format "123456|username" on either side of the
// comparison. An empty allowlist means all senders are allowed.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		allowedID := trimmed
		allowedUser := ""
		if idx := strings.Index(trimmed, "|"); idx > 0 {
			allowedID = trimmed[:idx]
			allowedUser = trimmed[idx+1:]
		}

		if senderID == allowed ||
			idPart == allowed ||
			senderID == trimmed ||
			idPart == trimmed ||
			idPart == allowedID ||
			(allowedUser != "" && senderID == allowedUser) ||
			(userPart != "" && (userPart == allowed || userPart == trimmed || userPart == allowedUser)) {
			return true
		}
	}

	return false
}

// CheckPolicy evaluates DM/Group policy for a message. peerKind is
// PeerDirect or PeerGroup.
func (c *BaseChannel) CheckPolicy(peerKind string, dmPolicy DMPolicy, groupPolicy GroupPolicy, senderID string) bool {
	policy := string(dmPolicy)
	if peerKind == PeerGroup {
		policy = string(groupPolicy)
	}
	if policy == "" {
		policy = string(DMPolicyOpen)
	}

	switch policy {
	case string(DMPolicyDisabled):
		return false
	case string(DMPolicyAllowlist):
		return c.IsAllowed(senderID)
	default:
		return true
	}
}

// HandleMessage builds an InboundMessage and publishes it to the bus — the
// standard way for a transport to forward what it received. peerKind is
// folded into metadata["peer_kind"] since InboundMessage has no dedicated
// field for it.
func (c *BaseChannel) HandleMessage(senderID, chatID, content string, media []string, metadata map[string]string, peerKind string) {
	if !c.IsAllowed(senderID) {
		return
	}

	userID := senderID
	if idx := strings.IndexByte(senderID, '|'); idx > 0 {
		userID = senderID[:idx]
	}

	if metadata == nil {
		metadata = make(map[string]string)
	}
	if peerKind != "" {
		metadata["peer_kind"] = peerKind
	}

	c.bus.PublishInbound(bus.InboundMessage{
		Channel:  c.name,
		SenderID: senderID,
		ChatID:   chatID,
		Content:  content,
		Media:    media,
		UserID:   userID,
		Metadata: metadata,
	})
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
