package channels

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/kibitzbot/kibitz/internal/bus"
)

const (
	// Per-chat send pacing; group chat platforms throttle bots that blast
	// messages into a single conversation.
	perChatSendRate  = rate.Limit(1)
	perChatSendBurst = 3

	maxTrackedChats = 4096
)

// Manager owns the registered channels, their lifecycle, and the outbound
// dispatch loop.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
	bus      *bus.MessageBus

	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter

	dispatchCancel context.CancelFunc
}

func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      msgBus,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Register adds a channel. Must be called before StartAll.
func (m *Manager) Register(c Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[c.Name()] = c
}

// StartAll starts every registered channel and the outbound dispatcher.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.dispatchCancel = cancel
	go m.dispatchOutbound(dispatchCtx)

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	for name, channel := range m.channels {
		slog.Info("starting channel", "channel", name)
		if err := channel.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
		}
	}
	return nil
}

// StopAll stops the dispatcher and all channels.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dispatchCancel != nil {
		m.dispatchCancel()
		m.dispatchCancel = nil
	}

	for name, channel := range m.channels {
		slog.Info("stopping channel", "channel", name)
		if err := channel.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}
	return nil
}

func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}

		m.mu.RLock()
		channel, exists := m.channels[msg.Channel]
		m.mu.RUnlock()
		if !exists {
			slog.Warn("unknown channel for outbound message", "channel", msg.Channel)
			continue
		}

		if err := m.chatLimiter(msg.Channel + "/" + msg.ChatJID).Wait(ctx); err != nil {
			return
		}

		if err := channel.Send(ctx, msg); err != nil {
			slog.Error("error sending message to channel",
				"channel", msg.Channel,
				"chat_jid", msg.ChatJID,
				"error", err)
		}
	}
}

func (m *Manager) chatLimiter(key string) *rate.Limiter {
	m.limitMu.Lock()
	defer m.limitMu.Unlock()

	if l, ok := m.limiters[key]; ok {
		return l
	}
	// Crude cap so abandoned chats don't accumulate forever.
	if len(m.limiters) >= maxTrackedChats {
		for k := range m.limiters {
			delete(m.limiters, k)
			break
		}
	}
	l := rate.NewLimiter(perChatSendRate, perChatSendBurst)
	m.limiters[key] = l
	return l
}

// Deliver queues an outbound message, logging when the bus is saturated.
func (m *Manager) Deliver(msg bus.OutboundMessage) {
	if !m.bus.PublishOutbound(msg) {
		slog.Warn("outbound bus full, dropping message",
			"channel", msg.Channel,
			"chat_jid", msg.ChatJID,
			"preview", Truncate(msg.Content, 60))
	}
}
