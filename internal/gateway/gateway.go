package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Gateway owns the platform adapters. Inbound messages from every
// adapter funnel into a single handler; outbound messages fan out by
// platform name.
type Gateway struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	handler  MessageHandler
	logger   *zap.Logger
}

// NewGateway creates a gateway with no adapters.
func NewGateway(logger *zap.Logger) *Gateway {
	return &Gateway{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

// SetHandler installs the inbound handler. Adapters registered later
// pick it up; call this before Register.
func (g *Gateway) SetHandler(h MessageHandler) {
	g.handler = h
}

// Register adds an adapter under its platform name and wires the
// inbound path. Registering the same platform twice replaces the
// earlier adapter.
func (g *Gateway) Register(adapter Adapter) {
	platform := adapter.Platform()

	g.mu.Lock()
	if _, exists := g.adapters[platform]; exists {
		g.logger.Warn("replacing gateway adapter", zap.String("platform", platform))
	}
	g.adapters[platform] = adapter
	g.mu.Unlock()

	adapter.OnMessage(func(msg *InboundMessage) {
		if g.handler != nil {
			g.handler(msg)
		}
	})
	g.logger.Info("platform adapter registered", zap.String("platform", platform))
}

// ConnectAll starts every adapter. A failing adapter does not stop the
// others; the combined error reports which platforms stayed down.
func (g *Gateway) ConnectAll(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	for platform, adapter := range g.adapters {
		if err := adapter.Connect(ctx); err != nil {
			g.logger.Error("platform connect failed",
				zap.String("platform", platform), zap.Error(err))
			errs = append(errs, fmt.Errorf("connect %s: %w", platform, err))
			continue
		}
		g.logger.Info("platform online", zap.String("platform", platform))
	}
	return errors.Join(errs...)
}

// Send routes one outbound message to its platform adapter.
func (g *Gateway) Send(ctx context.Context, msg *OutboundMessage) error {
	g.mu.RLock()
	adapter, ok := g.adapters[msg.Platform]
	g.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no adapter for platform %q", msg.Platform)
	}
	return adapter.Send(ctx, msg)
}

// Broadcast fans a message out to the adapters named in msg.Platforms,
// or to all of them when the list is empty. Unknown platform names are
// skipped.
func (g *Gateway) Broadcast(ctx context.Context, msg *BroadcastMessage) error {
	g.mu.RLock()
	targets := make(map[string]Adapter, len(g.adapters))
	if len(msg.Platforms) == 0 {
		for p, a := range g.adapters {
			targets[p] = a
		}
	} else {
		for _, p := range msg.Platforms {
			if a, ok := g.adapters[p]; ok {
				targets[p] = a
			}
		}
	}
	g.mu.RUnlock()

	failed := 0
	for platform, adapter := range targets {
		if err := adapter.Broadcast(ctx, msg); err != nil {
			g.logger.Error("broadcast rejected",
				zap.String("platform", platform), zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("broadcast rejected on %d platform(s)", failed)
	}
	return nil
}

// StatusAll reports every adapter's connection state, sorted by platform.
func (g *Gateway) StatusAll() []AdapterStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()

	statuses := make([]AdapterStatus, 0, len(g.adapters))
	for _, adapter := range g.adapters {
		statuses = append(statuses, adapter.Status())
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Platform < statuses[j].Platform
	})
	return statuses
}

// Adapters returns the registered platform names, sorted.
func (g *Gateway) Adapters() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.adapters))
	for p := range g.adapters {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// Close shuts every adapter down, logging failures rather than
// stopping at the first one.
func (g *Gateway) Close() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, adapter := range g.adapters {
		if err := adapter.Close(); err != nil {
			g.logger.Error("platform shutdown failed",
				zap.String("platform", platform), zap.Error(err))
		}
	}
	return nil
}
