// Package bus carries messages between channels and the processing pipeline,
// and owns the in-process admission guard consulted before any message is
// handled.
package bus

import (
	"context"

	"github.com/kibitzbot/kibitz/internal/model"
)

// InboundMessage is a message received from a channel (WhatsApp, Telegram).
type InboundMessage struct {
	Channel   string        `json:"channel"`
	SelfJID   string        `json:"self_jid"`            // the bot's own identity on this channel
	Mentioned bool          `json:"mentioned,omitempty"` // explicit @mention detected by the channel
	Message   model.Message `json:"message"`
}

// OutboundMessage is a reply to be delivered to a channel.
type OutboundMessage struct {
	Channel   string `json:"channel"`
	ChatJID   string `json:"chat_jid"`
	Content   string `json:"content"`
	ReplyToID string `json:"reply_to_id,omitempty"` // quote the message being answered
}

// MessageBus is the in-process queue between channels and the consumer pool.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

// New creates a message bus with bounded queues.
func New() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, 256),
		outbound: make(chan OutboundMessage, 256),
	}
}

// PublishInbound enqueues a received message. Drops when the queue is full
// rather than blocking a channel's receive loop.
func (b *MessageBus) PublishInbound(msg InboundMessage) bool {
	select {
	case b.inbound <- msg:
		return true
	default:
		return false
	}
}

// ConsumeInbound blocks until a message is available or ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case msg := <-b.inbound:
		return msg, true
	}
}

// PublishOutbound enqueues a reply for delivery. Drops when the queue is
// full rather than blocking the pipeline.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) bool {
	select {
	case b.outbound <- msg:
		return true
	default:
		return false
	}
}

// ConsumeOutbound blocks until a reply is available or ctx is done.
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case msg := <-b.outbound:
		return msg, true
	}
}
