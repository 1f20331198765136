package gateway

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Manager holds all platform adapters and fans inbound messages into one
// handler.
type Manager struct {
	adapters map[string]Adapter
	handler  MessageHandler
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewManager creates a gateway manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

// SetHandler sets the callback for all inbound messages. Call before
// Register; adapters capture the handler at registration time.
func (m *Manager) SetHandler(h MessageHandler) {
	m.handler = h
}

// Register adds an adapter and wires its message handler.
func (m *Manager) Register(adapter Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()

	platform := adapter.Platform()
	m.adapters[platform] = adapter
	adapter.OnMessage(func(msg *InboundMessage) {
		if m.handler != nil {
			m.handler(msg)
		}
	})
	m.logger.Info("registered gateway adapter", zap.String("platform", platform))
}

// ConnectAll starts all registered adapters.
func (m *Manager) ConnectAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for platform, adapter := range m.adapters {
		if err := adapter.Connect(ctx); err != nil {
			m.logger.Error("adapter connect failed",
				zap.String("platform", platform), zap.Error(err))
			return fmt.Errorf("connect %s: %w", platform, err)
		}
		m.logger.Info("adapter connected", zap.String("platform", platform))
	}
	return nil
}

// Send delivers a message through the adapter for its platform.
func (m *Manager) Send(ctx context.Context, msg *OutboundMessage) error {
	m.mu.RLock()
	adapter, ok := m.adapters[msg.Platform]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no adapter for platform: %s", msg.Platform)
	}
	return adapter.Send(ctx, msg)
}

// StatusAll reports the status of every adapter.
func (m *Manager) StatusAll() []AdapterStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AdapterStatus, 0, len(m.adapters))
	for _, a := range m.adapters {
		out = append(out, a.Status())
	}
	return out
}

// Close shuts down all adapters.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for platform, adapter := range m.adapters {
		if err := adapter.Close(); err != nil {
			m.logger.Error("adapter close failed",
				zap.String("platform", platform), zap.Error(err))
		}
	}
	return nil
}
