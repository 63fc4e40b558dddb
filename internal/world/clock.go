package world

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// ClockListener is notified after every world tick.
type ClockListener interface {
	OnTick(worldTime time.Time)
}

// Clock advances simulated world time. Every real interval the world
// moves forward by interval times speed, and every listener hears the
// new time. Listeners run on the clock goroutine; slow listeners delay
// the next tick.
type Clock struct {
	mu        sync.RWMutex
	interval  time.Duration
	speed     float64 // world seconds per real second
	worldTime time.Time
	listeners []ClockListener

	done     chan struct{}
	stopOnce sync.Once
	running  bool
	logger   *zap.Logger
}

// NewClock creates a stopped clock. World time starts at wall time.
func NewClock(interval time.Duration, speed float64, logger *zap.Logger) *Clock {
	return &Clock{
		interval:  interval,
		speed:     speed,
		worldTime: time.Now(),
		done:      make(chan struct{}),
		logger:    logger,
	}
}

// AddListener subscribes l to tick events.
func (c *Clock) AddListener(l ClockListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Time returns the current simulated world time.
func (c *Clock) Time() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.worldTime
}

// SetSpeed changes the time multiplier for subsequent ticks.
func (c *Clock) SetSpeed(speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = speed
}

// Start launches the tick loop. Starting twice is a no-op.
func (c *Clock) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go c.run()
	c.logger.Info("simulation clock running",
		zap.Duration("interval", c.interval),
		zap.Float64("speed", c.speed))
}

// Stop halts the tick loop. Safe to call more than once.
func (c *Clock) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.logger.Info("simulation clock halted")
	})
}

func (c *Clock) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			wt, listeners := c.advance()
			for _, l := range listeners {
				l.OnTick(wt)
			}
		}
	}
}

// advance moves world time forward one tick and snapshots the listener
// list so OnTick runs outside the lock.
func (c *Clock) advance() (time.Time, []ClockListener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.worldTime = c.worldTime.Add(time.Duration(float64(c.interval) * c.speed))
	return c.worldTime, append([]ClockListener(nil), c.listeners...)
}
