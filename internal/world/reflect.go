package world

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/milgram/internal/agent"
)

const reflectTimeout = 30 * time.Second

// Reflector is a ClockListener that periodically has reasoning-attached
// agents think over their recent memories and store the thought as a
// new memory. Detached agents and agents with nothing to reflect on
// are skipped.
type Reflector struct {
	env      *Environment
	interval time.Duration // world-time between reflections
	recall   int           // how many recent memories feed the prompt
	lastBeat time.Time
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewReflector creates a reflection listener.
func NewReflector(env *Environment, interval time.Duration, recall int, logger *zap.Logger) *Reflector {
	if recall <= 0 {
		recall = 10
	}
	return &Reflector{
		env:      env,
		interval: interval,
		recall:   recall,
		logger:   logger,
	}
}

// OnTick accumulates world time toward the next reflection cycle.
func (r *Reflector) OnTick(worldTime time.Time) {
	r.mu.Lock()
	if r.lastBeat.IsZero() {
		r.lastBeat = worldTime
		r.mu.Unlock()
		return
	}
	if worldTime.Sub(r.lastBeat) < r.interval {
		r.mu.Unlock()
		return
	}
	r.lastBeat = worldTime
	r.mu.Unlock()

	r.run(worldTime)
}

// FireNow forces an immediate reflection pass, bypassing the interval
// check, and returns how many agents reflected.
func (r *Reflector) FireNow() int {
	return r.run(time.Now())
}

func (r *Reflector) run(worldTime time.Time) int {
	ctx, cancel := context.WithTimeout(context.Background(), reflectTimeout)
	defer cancel()

	fired := 0
	for _, a := range r.env.Agents() {
		if !a.Attached() {
			continue
		}
		ok, err := r.reflect(ctx, a)
		if err != nil {
			r.logger.Warn("reflection failed",
				zap.String("agent", a.Name),
				zap.Error(err))
			continue
		}
		if ok {
			fired++
			r.logger.Debug("reflection stored",
				zap.String("agent", a.Name),
				zap.Time("world_time", worldTime))
		}
	}
	return fired
}

func (r *Reflector) reflect(ctx context.Context, a *agent.Agent) (bool, error) {
	records, err := a.RetrieveMemories(ctx, r.recall)
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}

	var b strings.Builder
	b.WriteString("Reflect on your recent experiences:\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "- %s\n", rec.Event)
	}

	resp, err := a.Think(ctx, b.String())
	if err != nil {
		return false, err
	}
	if resp == nil {
		return false, nil
	}

	if _, err := a.StoreMemory(ctx, "reflection: "+resp.Content, 0, 0.3); err != nil {
		return false, err
	}
	return true, nil
}
