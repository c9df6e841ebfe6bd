package bus

import (
	"context"
	"testing"
	"time"
)

func TestConsumeInboundTimeout(t *testing.T) {
	b := NewMessageBus(1)
	_, ok := b.ConsumeInbound(context.Background(), 20*time.Millisecond)
	if ok {
		t.Fatalf("expected timeout on empty bus")
	}
}

func TestPublishConsumeInboundFIFO(t *testing.T) {
	b := NewMessageBus(4)
	msgs := []InboundMessage{
		{Channel: "cli", ChatID: "u1", Content: "first"},
		{Channel: "cli", ChatID: "u1", Content: "second"},
		{Channel: "cli", ChatID: "u1", Content: "third"},
	}
	for _, m := range msgs {
		b.PublishInbound(m)
	}
	for i, want := range msgs {
		got, ok := b.ConsumeInbound(context.Background(), time.Second)
		if !ok {
			t.Fatalf("message %d: expected ok", i)
		}
		if got.Content != want.Content {
			t.Errorf("message %d: got %q, want %q (FIFO violated)", i, got.Content, want.Content)
		}
	}
}

func TestConsumeInboundCtxCancel(t *testing.T) {
	b := NewMessageBus(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := b.ConsumeInbound(ctx, time.Second)
	if ok {
		t.Fatalf("expected !ok after ctx cancellation")
	}
}

func TestPublishOutboundFanOutByChannel(t *testing.T) {
	b := NewMessageBus(0)
	discordCh := b.SubscribeOutbound("discord")
	cliCh := b.SubscribeOutbound("cli")

	b.PublishOutbound(OutboundMessage{Channel: "discord", Content: "hello discord"})

	select {
	case m := <-discordCh:
		if m.Content != "hello discord" {
			t.Errorf("got %q", m.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("discord subscriber did not receive message")
	}

	select {
	case m := <-cliCh:
		t.Fatalf("cli subscriber should not receive a discord message, got %+v", m)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewMessageBus(0)
	ch, id := b.SubscribeOutboundWithID("cli")
	b.Unsubscribe("cli", id)
	b.PublishOutbound(OutboundMessage{Channel: "cli", Content: "should not arrive"})
	select {
	case m := <-ch:
		t.Fatalf("unsubscribed channel received %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIsProgress(t *testing.T) {
	plain := OutboundMessage{Content: "hi"}
	if plain.IsProgress() {
		t.Error("message without metadata should not be progress")
	}
	prog := OutboundMessage{Content: "working...", Metadata: map[string]string{"_progress": "true"}}
	if !prog.IsProgress() {
		t.Error("message with _progress=true should be progress")
	}
}

func TestPublishInboundAfterStopDoesNotBlock(t *testing.T) {
	b := NewMessageBus(0)
	b.Stop()
	done := make(chan struct{})
	go func() {
		b.PublishInbound(InboundMessage{Content: "dropped"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishInbound blocked after Stop")
	}
}
