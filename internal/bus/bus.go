package bus

import (
	"context"
	"log/slog"
)

const defaultQueueSize = 256

// MessageBus is an in-process channel-backed implementation of MessageRouter.
// One consumer loop (the router) drains inbound; one dispatcher (the channel
// manager) drains outbound.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

// NewMessageBus creates a bus with bounded queues.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, defaultQueueSize),
		outbound: make(chan OutboundMessage, defaultQueueSize),
	}
}

// PublishInbound enqueues a message from a channel adapter.
// Drops the message when the queue is full rather than blocking the adapter.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	default:
		slog.Warn("bus.inbound_full", "channel", msg.Channel, "chat", msg.ChatID)
	}
}

// ConsumeInbound blocks until a message is available or the context is done.
// Returns false when the context is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case msg := <-b.inbound:
		return msg, true
	}
}

// PublishOutbound enqueues a reply for delivery to a channel.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case b.outbound <- msg:
	default:
		slog.Warn("bus.outbound_full", "channel", msg.Channel, "chat", msg.ChatID)
	}
}

// SubscribeOutbound blocks until an outbound message is available or the context is done.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case msg := <-b.outbound:
		return msg, true
	}
}
