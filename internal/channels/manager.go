package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/membridge/internal/bus"
)

// Manager owns the registered channel adapters: their lifecycle and the
// dispatch of outbound bus messages to the right adapter.
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
	cancel   context.CancelFunc
	mu       sync.RWMutex
}

// NewManager creates a channel manager. Adapters are registered
// externally via RegisterChannel.
func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      msgBus,
	}
}

// RegisterChannel adds an adapter to the manager.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

// StartAll starts every registered adapter and the outbound dispatch loop.
// An adapter that fails to start is logged and skipped; the rest keep going.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.dispatchOutbound(dispatchCtx)

	if len(m.channels) == 0 {
		slog.Warn("channels.none_enabled")
		return nil
	}

	for name, channel := range m.channels {
		slog.Info("channels.starting", "channel", name)
		if err := channel.Start(ctx); err != nil {
			slog.Error("channels.start_failed", "channel", name, "error", err)
		}
	}
	return nil
}

// StopAll stops the dispatch loop and every adapter.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	for name, channel := range m.channels {
		slog.Info("channels.stopping", "channel", name)
		if err := channel.Stop(ctx); err != nil {
			slog.Error("channels.stop_failed", "channel", name, "error", err)
		}
	}
	return nil
}

// dispatchOutbound consumes outbound bus messages and routes each to the
// adapter named in the message. Unknown channels are logged and dropped.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}

		m.mu.RLock()
		channel, exists := m.channels[msg.Channel]
		m.mu.RUnlock()

		if !exists {
			slog.Warn("channels.unknown_outbound", "channel", msg.Channel)
			continue
		}

		if err := channel.Send(ctx, msg); err != nil {
			slog.Error("channels.send_failed", "channel", msg.Channel, "error", err)
		}
	}
}

// GetChannel returns an adapter by name.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

// GetStatus reports the running state of every adapter.
func (m *Manager) GetStatus() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]bool, len(m.channels))
	for name, channel := range m.channels {
		status[name] = channel.IsRunning()
	}
	return status
}

// SendToChannel delivers content to one adapter directly, bypassing the bus.
func (m *Manager) SendToChannel(ctx context.Context, channelName, chatID, content string) error {
	m.mu.RLock()
	channel, exists := m.channels[channelName]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("channel %s not found", channelName)
	}

	return channel.Send(ctx, bus.OutboundMessage{
		Channel: channelName,
		ChatID:  chatID,
		Content: content,
	})
}
