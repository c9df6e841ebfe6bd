// Package discord implements the Discord channel adapter using discordgo's
// gateway client.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/coreclaw/agentcore/internal/bus"
	"github.com/coreclaw/agentcore/internal/channels"
	"github.com/coreclaw/agentcore/internal/config"
)

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session        *discordgo.Session
	config         config.DiscordConfig
	botUserID      string
	requireMention bool
	placeholders   sync.Map // inbound message ID -> placeholder message ID
	pending        sync.Map // channelID -> []string recent unmentioned messages
	historyLimit   int
}

// New creates a new Discord channel from config.
func New(cfg config.DiscordConfig, msgBus *bus.MessageBus) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	base := channels.NewBaseChannel("discord", msgBus, cfg.AllowFrom)

	requireMention := true
	if cfg.RequireMention != nil {
		requireMention = *cfg.RequireMention
	}

	historyLimit := cfg.HistoryLimit
	if historyLimit == 0 {
		historyLimit = 50
	}

	return &Channel{
		BaseChannel:    base,
		session:        session,
		config:         cfg,
		requireMention: requireMention,
		historyLimit:   historyLimit,
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)

	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers an outbound message to a Discord channel.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}

	channelID := msg.ChatID
	if channelID == "" {
		return fmt.Errorf("empty chat ID for discord send")
	}

	placeholderKey := channelID
	if pk := msg.Metadata["placeholder_key"]; pk != "" {
		placeholderKey = pk
	}

	content := msg.Content
	if content == "" {
		if pID, ok := c.placeholders.LoadAndDelete(placeholderKey); ok {
			_ = c.session.ChannelMessageDelete(channelID, pID.(string))
		}
		return nil
	}

	if pID, ok := c.placeholders.LoadAndDelete(placeholderKey); ok {
		msgID := pID.(string)
		const maxLen = 2000
		editContent, remaining := splitAt(content, maxLen)
		if _, err := c.session.ChannelMessageEdit(channelID, msgID, editContent); err == nil {
			if remaining != "" {
				return c.sendChunked(channelID, remaining)
			}
			return nil
		}
		slog.Warn("discord: placeholder edit failed, sending new message", "channel_id", channelID, "placeholder_id", msgID)
	}

	return c.sendChunked(channelID, content)
}

// sendChunked sends content as one or more messages, each under Discord's
// 2000-character limit, breaking at the last newline when possible.
func (c *Channel) sendChunked(channelID, content string) error {
	const maxLen = 2000
	for len(content) > 0 {
		var chunk string
		chunk, content = splitAt(content, maxLen)
		if _, err := c.session.ChannelMessageSend(channelID, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

// splitAt finds a chunk boundary at or before maxLen, preferring the last
// line break, falling back to the last space, falling back to a hard cut.
func splitAt(content string, maxLen int) (head, rest string) {
	if len(content) <= maxLen {
		return content, ""
	}
	cutAt := maxLen
	if idx := strings.LastIndexByte(content[:maxLen], '\n'); idx > maxLen/2 {
		cutAt = idx + 1
	} else if idx := strings.LastIndexByte(content[:maxLen], ' '); idx > maxLen/2 {
		cutAt = idx + 1
	}
	return content[:cutAt], content[cutAt:]
}

// handleMessage processes incoming Discord messages.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	senderID := m.Author.ID
	senderName := resolveDisplayName(m)
	channelID := m.ChannelID
	isDM := m.GuildID == ""

	peerKind := channels.PeerGroup
	if isDM {
		peerKind = channels.PeerDirect
	}

	dmPolicy := channels.DMPolicy(c.config.DMPolicy)
	groupPolicy := channels.GroupPolicy(c.config.GroupPolicy)
	if !c.CheckPolicy(peerKind, dmPolicy, groupPolicy, senderID) {
		slog.Debug("discord message rejected by policy", "user_id", senderID, "peer_kind", peerKind)
		return
	}

	content := m.Content
	for _, att := range m.Attachments {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[attachment: %s]", att.URL)
	}
	if content == "" {
		content = "[empty message]"
	}

	if peerKind == channels.PeerGroup && c.requireMention {
		mentioned := false
		for _, u := range m.Mentions {
			if u.ID == c.botUserID {
				mentioned = true
				break
			}
		}
		if !mentioned {
			c.recordPending(channelID, senderName, content)
			return
		}
	}

	slog.Debug("discord message received", "sender_id", senderID, "channel_id", channelID, "is_dm", isDM,
		"preview", channels.Truncate(content, 50))

	placeholder, err := c.session.ChannelMessageSend(channelID, "Thinking...")
	if err == nil {
		c.placeholders.Store(m.ID, placeholder.ID)
	}

	finalContent := content
	if peerKind == channels.PeerGroup {
		finalContent = c.buildGroupContext(channelID, senderName, content)
	}

	metadata := map[string]string{
		"message_id":      m.ID,
		"user_id":         senderID,
		"username":        m.Author.Username,
		"display_name":    senderName,
		"guild_id":        m.GuildID,
		"channel_id":      channelID,
		"is_dm":           fmt.Sprintf("%t", isDM),
		"placeholder_key": m.ID,
	}

	c.HandleMessage(senderID, channelID, finalContent, nil, metadata, peerKind)

	if peerKind == channels.PeerGroup {
		c.pending.Delete(channelID)
	}
}

// recordPending appends an unmentioned group message to the per-channel
// rolling buffer so it can be folded in as context once the bot is mentioned.
func (c *Channel) recordPending(channelID, sender, content string) {
	if c.historyLimit <= 0 {
		return
	}
	entry := fmt.Sprintf("[%s] %s", sender, content)
	var lines []string
	if v, ok := c.pending.Load(channelID); ok {
		lines = v.([]string)
	}
	lines = append(lines, entry)
	if len(lines) > c.historyLimit {
		lines = lines[len(lines)-c.historyLimit:]
	}
	c.pending.Store(channelID, lines)
}

// buildGroupContext prefixes the triggering message with whatever pending
// history accumulated for this channel since the bot was last mentioned.
func (c *Channel) buildGroupContext(channelID, sender, content string) string {
	annotated := fmt.Sprintf("[From: %s]\n%s", sender, content)
	v, ok := c.pending.Load(channelID)
	if !ok {
		return annotated
	}
	lines := v.([]string)
	if len(lines) == 0 {
		return annotated
	}
	return strings.Join(lines, "\n") + "\n" + annotated
}

// resolveDisplayName returns the best available display name for a Discord
// message author: server nickname > global display name > username.
func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
