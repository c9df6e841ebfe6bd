package channels

import (
	"context"
	"testing"
	"time"

	"github.com/coreclaw/agentcore/internal/bus"
)

type stubChannel struct {
	name    string
	running bool
	sent    []bus.OutboundMessage
	sendErr error
}

func (s *stubChannel) Name() string { return s.name }
func (s *stubChannel) Start(ctx context.Context) error {
	s.running = true
	return nil
}
func (s *stubChannel) Stop(ctx context.Context) error {
	s.running = false
	return nil
}
func (s *stubChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	s.sent = append(s.sent, msg)
	return s.sendErr
}
func (s *stubChannel) IsRunning() bool           { return s.running }
func (s *stubChannel) IsAllowed(id string) bool { return true }

func TestManagerRegisterGetUnregister(t *testing.T) {
	m := NewManager(bus.NewMessageBus(4))
	ch := &stubChannel{name: "discord"}
	m.RegisterChannel("discord", ch)

	got, ok := m.GetChannel("discord")
	if !ok || got != ch {
		t.Fatal("expected to retrieve the registered channel")
	}

	m.UnregisterChannel("discord")
	if _, ok := m.GetChannel("discord"); ok {
		t.Error("expected channel to be gone after unregister")
	}
}

func TestManagerStartAllStartsEveryChannel(t *testing.T) {
	m := NewManager(bus.NewMessageBus(4))
	ch := &stubChannel{name: "discord"}
	m.RegisterChannel("discord", ch)

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if !ch.IsRunning() {
		t.Error("expected channel to be started")
	}

	status := m.GetStatus()
	s, ok := status["discord"].(map[string]interface{})
	if !ok || s["running"] != true {
		t.Errorf("unexpected status: %+v", status)
	}

	if err := m.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if ch.IsRunning() {
		t.Error("expected channel to be stopped")
	}
}

func TestManagerStartAllNoChannelsIsNotAnError(t *testing.T) {
	m := NewManager(bus.NewMessageBus(4))
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll with no channels should not error: %v", err)
	}
}

func TestManagerGetEnabledChannels(t *testing.T) {
	m := NewManager(bus.NewMessageBus(4))
	m.RegisterChannel("discord", &stubChannel{name: "discord"})
	m.RegisterChannel("cli", &stubChannel{name: "cli"})

	names := m.GetEnabledChannels()
	if len(names) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(names))
	}
}

func TestManagerSendToChannelUnknown(t *testing.T) {
	m := NewManager(bus.NewMessageBus(4))
	if err := m.SendToChannel(context.Background(), "missing", "chat1", "hi"); err == nil {
		t.Error("expected an error for an unregistered channel")
	}
}

func TestManagerSendToChannelDelivers(t *testing.T) {
	m := NewManager(bus.NewMessageBus(4))
	ch := &stubChannel{name: "discord"}
	m.RegisterChannel("discord", ch)

	if err := m.SendToChannel(context.Background(), "discord", "chat1", "hi"); err != nil {
		t.Fatalf("SendToChannel: %v", err)
	}
	if len(ch.sent) != 1 || ch.sent[0].Content != "hi" {
		t.Errorf("unexpected sent messages: %+v", ch.sent)
	}
}

func TestManagerDispatchOutboundRoutesByChannelName(t *testing.T) {
	b := bus.NewMessageBus(4)
	m := NewManager(b)
	ch := &stubChannel{name: "discord"}
	m.RegisterChannel("discord", ch)

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer m.StopAll(context.Background())

	b.PublishOutbound(bus.OutboundMessage{Channel: "discord", ChatID: "chat1", Content: "hello"})

	deadline := time.Now().Add(time.Second)
	for len(ch.sent) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(ch.sent) != 1 || ch.sent[0].Content != "hello" {
		t.Errorf("expected dispatchOutbound to deliver the message, got %+v", ch.sent)
	}
}
