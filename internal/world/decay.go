package world

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/milgram/internal/social"
)

// RelationDecay is a ClockListener that erodes relationship scores
// toward zero each tick, so ties fade without interaction. When a
// persistent graph is attached its edges decay in step.
type RelationDecay struct {
	env    *Environment
	graph  *social.Graph // optional
	rate   float64
	logger *zap.Logger
}

// NewRelationDecay creates the decay listener. graph may be nil.
func NewRelationDecay(env *Environment, graph *social.Graph, rate float64, logger *zap.Logger) *RelationDecay {
	return &RelationDecay{
		env:    env,
		graph:  graph,
		rate:   rate,
		logger: logger,
	}
}

// OnTick runs one decay sweep over every agent. Implements ClockListener.
func (d *RelationDecay) OnTick(worldTime time.Time) {
	for _, a := range d.env.Agents() {
		a.Relationships.Decay(d.rate)
	}

	if d.graph != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.graph.DecayAll(ctx, d.rate); err != nil {
			d.logger.Warn("graph decay sweep failed", zap.Error(err))
		}
	}
}
