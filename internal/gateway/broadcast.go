package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BroadcastRecord is one sent broadcast kept for the operator log.
type BroadcastRecord struct {
	Message *BroadcastMessage `json:"message"`
	SentAt  time.Time         `json:"sent_at"`
	Targets []string          `json:"targets"`
}

// Broadcaster sends world-level announcements through the gateway and
// keeps a record of what went out where.
type Broadcaster struct {
	mu      sync.Mutex
	gateway *Gateway
	history []BroadcastRecord
	logger  *zap.Logger
}

// NewBroadcaster creates a broadcaster backed by gw.
func NewBroadcaster(gw *Gateway, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{gateway: gw, logger: logger}
}

// Send validates and fans msg out through the gateway. The broadcast
// is recorded only when at least the gateway accepted it.
func (b *Broadcaster) Send(ctx context.Context, msg *BroadcastMessage) error {
	if msg.Type == "" {
		return fmt.Errorf("broadcast needs a type")
	}

	b.logger.Info("pushing world announcement",
		zap.String("type", string(msg.Type)),
		zap.String("title", msg.Title),
		zap.String("agent", msg.AgentName),
		zap.Int("priority", msg.Priority),
	)

	if err := b.gateway.Broadcast(ctx, msg); err != nil {
		return err
	}
	b.record(msg)
	return nil
}

func (b *Broadcaster) record(msg *BroadcastMessage) {
	targets := b.gateway.Adapters()
	if len(msg.Platforms) > 0 {
		targets = msg.Platforms
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, BroadcastRecord{
		Message: msg,
		SentAt:  time.Now(),
		Targets: targets,
	})
}

// History returns the most recent limit broadcast records, oldest
// first. A non-positive limit returns everything.
func (b *Broadcaster) History(limit int) []BroadcastRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.history)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]BroadcastRecord(nil), b.history[len(b.history)-n:]...)
}
