package channels

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/coreclaw/agentcore/internal/bus"
)

// Manager owns every registered channel's lifecycle and fans outbound bus
// traffic out to the channel named on each message (spec §4.1: "each
// channel adapter for its share of outbound, dispatched by routing on the
// channel field").
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
	bus      *bus.MessageBus
	cancel   context.CancelFunc
}

func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      msgBus,
	}
}

// RegisterChannel adds a channel. Outbound dispatcher goroutines are spawned
// only by StartAll, for the channels registered at that moment; a channel
// added afterward is reachable through SendToChannel (which looks the map up
// fresh each time) but gets no outbound dispatcher.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

func (m *Manager) UnregisterChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, name)
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// StartAll starts every registered channel and one outbound-dispatch
// goroutine per channel, each subscribed only to its own channel name.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	dispatchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	m.mu.Unlock()

	if len(names) == 0 {
		slog.Warn("no channels registered")
		return nil
	}

	for _, name := range names {
		ch, ok := m.GetChannel(name)
		if !ok {
			continue
		}
		slog.Info("starting channel", "channel", name)
		if err := ch.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
			continue
		}
		sub := m.bus.SubscribeOutbound(name)
		go m.dispatchOutbound(dispatchCtx, name, ch, sub)
	}
	return nil
}

// StopAll stops every outbound dispatcher and then every channel.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	channels := make(map[string]Channel, len(m.channels))
	for name, ch := range m.channels {
		channels[name] = ch
	}
	m.mu.Unlock()

	for name, ch := range channels {
		slog.Info("stopping channel", "channel", name)
		if err := ch.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}
	return nil
}

// dispatchOutbound drains one channel's outbound subscriber queue for as
// long as ctx is live, sending each message and cleaning up any media files
// the sending tool created (create_image, screenshot, download) once the
// send attempt is done.
func (m *Manager) dispatchOutbound(ctx context.Context, name string, ch Channel, sub <-chan bus.OutboundMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub:
			if !ok {
				return
			}
			if err := ch.Send(ctx, msg); err != nil {
				slog.Error("error sending message to channel", "channel", name, "error", err)
			}
			for _, media := range msg.Media {
				if media.Path == "" {
					continue
				}
				if err := os.Remove(media.Path); err != nil {
					slog.Debug("failed to clean up media file", "path", media.Path, "error", err)
				}
			}
		}
	}
}

// GetStatus returns the running status of all channels.
func (m *Manager) GetStatus() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]interface{}, len(m.channels))
	for name, ch := range m.channels {
		status[name] = map[string]interface{}{
			"enabled": true,
			"running": ch.IsRunning(),
		}
	}
	return status
}

// GetEnabledChannels returns the names of all registered channels.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// SendToChannel delivers a message to a specific channel by name, bypassing
// the bus — used by CLI/admin paths that already know the destination.
func (m *Manager) SendToChannel(ctx context.Context, channelName, chatID, content string) error {
	ch, exists := m.GetChannel(channelName)
	if !exists {
		return fmt.Errorf("channel %s not found", channelName)
	}
	return ch.Send(ctx, bus.OutboundMessage{Channel: channelName, ChatID: chatID, Content: content})
}
