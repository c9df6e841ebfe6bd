// Package bus implements the in-process message bus: strict-FIFO inbound and
// outbound queues with publish/consume-with-timeout semantics, and an
// outbound fan-out layer that routes by channel name to per-channel
// subscriber queues.
package bus

import (
	"context"
	"sync"
	"time"
)

// MessageBus is the concrete MessageRouter. One primary consumer is expected
// per queue: the Agent Loop for inbound, and each channel adapter for its
// own share of outbound (selected by the channel field via Subscribe).
//
// Ordering guarantee: strict FIFO per queue; no cross-queue ordering.
// Safe for arbitrarily many concurrent publishers.
type outboundSub struct {
	id int64
	ch chan OutboundMessage
}

type MessageBus struct {
	inbound chan InboundMessage
	mu      sync.Mutex
	outSubs map[string][]outboundSub
	nextID  int64
	closeCh chan struct{}
	closeMu sync.Once
}

// NewMessageBus creates a bus with the given inbound queue depth. A depth of
// 0 makes the inbound queue unbuffered (publishers block until the Agent Loop
// consumes).
func NewMessageBus(inboundDepth int) *MessageBus {
	return &MessageBus{
		inbound: make(chan InboundMessage, inboundDepth),
		outSubs: make(map[string][]outboundSub),
		closeCh: make(chan struct{}),
	}
}

// PublishInbound enqueues a message for the Agent Loop. Never blocks forever:
// if the bus has been stopped, the publish is dropped.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	case <-b.closeCh:
	}
}

// ConsumeInbound waits up to timeout for the next inbound message. A zero or
// negative timeout waits indefinitely (until ctx is done). Returns
// ok=false on timeout, on ctx cancellation, or once the bus is stopped and
// drained.
func (b *MessageBus) ConsumeInbound(ctx context.Context, timeout time.Duration) (InboundMessage, bool) {
	var timerCh <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timerCh = t.C
	}
	select {
	case msg, ok := <-b.inbound:
		if !ok {
			return InboundMessage{}, false
		}
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	case <-timerCh:
		return InboundMessage{}, false
	case <-b.closeCh:
		select {
		case msg := <-b.inbound:
			return msg, true
		default:
			return InboundMessage{}, false
		}
	}
}

// PublishOutbound fans the message out to every subscriber registered for
// msg.Channel. Subscribers with a full queue do not block the publisher;
// the message is dropped for that one subscriber (channel adapters are
// expected to keep their queue drained promptly).
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.mu.Lock()
	subs := append([]outboundSub(nil), b.outSubs[msg.Channel]...)
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- msg:
		default:
		}
	}
}

// SubscribeOutbound registers a new subscriber queue for the given channel
// name and returns the receive side. Use SubscribeOutboundWithID when the
// id for Unsubscribe is needed.
func (b *MessageBus) SubscribeOutbound(channel string) <-chan OutboundMessage {
	ch, _ := b.subscribeOutbound(channel)
	return ch
}

// subscribeOutbound is the full form returning the unsubscribe id.
func (b *MessageBus) subscribeOutbound(channel string) (chan OutboundMessage, int64) {
	ch := make(chan OutboundMessage, 64)
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.outSubs[channel] = append(b.outSubs[channel], outboundSub{id: id, ch: ch})
	b.mu.Unlock()
	return ch, id
}

// Unsubscribe removes a previously-registered outbound subscriber by id.
func (b *MessageBus) Unsubscribe(channel string, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.outSubs[channel]
	for i, s := range subs {
		if s.id == id {
			b.outSubs[channel] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// SubscribeOutboundWithID is the public form of subscribeOutbound for callers
// that need to Unsubscribe later (most channel adapters run for process
// lifetime and never call it).
func (b *MessageBus) SubscribeOutboundWithID(channel string) (<-chan OutboundMessage, int64) {
	ch, id := b.subscribeOutbound(channel)
	return ch, id
}

// Stop marks the bus as closed; blocked publishers and consumers unblock.
func (b *MessageBus) Stop() {
	b.closeMu.Do(func() { close(b.closeCh) })
}
