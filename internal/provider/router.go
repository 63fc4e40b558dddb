package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Router manages reasoning backends and routes generate calls. Agents
// are addressed by name; an agent without a binding uses the default
// backend, and a router with no backends behaves as detached.
type Router struct {
	backends  map[string]Backend
	bindings  map[string]string   // agent name -> backend ID
	fallbacks map[string][]string // agent name -> fallback backend chain
	defaults  string
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		backends:  make(map[string]Backend),
		bindings:  make(map[string]string),
		fallbacks: make(map[string][]string),
		logger:    logger,
	}
}

// Register adds a backend. The first registration becomes the default.
func (r *Router) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.ID()] = b
	if r.defaults == "" {
		r.defaults = b.ID()
	}
	r.logger.Info("registered reasoning backend", zap.String("id", b.ID()))
}

// SetDefault sets the default backend.
func (r *Router) SetDefault(backendID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = backendID
}

// DefaultID returns the current default backend ID.
func (r *Router) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// Bind associates an agent with a specific backend.
func (r *Router) Bind(agentName, backendID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[agentName] = backendID
}

// SetFallbacks configures fallback backends for an agent.
func (r *Router) SetFallbacks(agentName string, backendIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[agentName] = backendIDs
}

// Generate routes a prompt through the agent's backend, walking the
// fallback chain when the primary fails.
func (r *Router) Generate(ctx context.Context, agentName, prompt string) (*Response, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary := r.resolve(agentName)
	if primary == nil {
		return nil, fmt.Errorf("no reasoning backend for agent %s: %w", agentName, ErrUnavailable)
	}

	resp, err := primary.Generate(ctx, prompt)
	if err == nil {
		return resp, nil
	}
	r.logger.Warn("primary backend failed, trying fallbacks",
		zap.String("agent", agentName), zap.Error(err))

	for _, fbID := range r.fallbacks[agentName] {
		fb, ok := r.backends[fbID]
		if !ok {
			continue
		}
		resp, err = fb.Generate(ctx, prompt)
		if err == nil {
			return resp, nil
		}
		r.logger.Warn("fallback backend failed", zap.String("backend", fbID), zap.Error(err))
	}

	return nil, fmt.Errorf("all backends failed for agent %s: %w", agentName, err)
}

func (r *Router) resolve(agentName string) Backend {
	if id, ok := r.bindings[agentName]; ok {
		if b, ok := r.backends[id]; ok {
			return b
		}
	}
	if b, ok := r.backends[r.defaults]; ok {
		return b
	}
	return nil
}

// Get returns a backend by ID.
func (r *Router) Get(id string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[id]
	return b, ok
}

// IDs returns the registered backend IDs.
func (r *Router) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	return ids
}

// For returns the capability view of one agent. The view stays current
// as backends are registered or rebound, so it can be handed to an
// agent before any backend exists.
func (r *Router) For(agentName string) Capability {
	return &routed{router: r, agent: agentName}
}

type routed struct {
	router *Router
	agent  string
}

func (c *routed) Attached() bool {
	c.router.mu.RLock()
	defer c.router.mu.RUnlock()
	return c.router.resolve(c.agent) != nil
}

func (c *routed) Generate(ctx context.Context, prompt string) (*Response, error) {
	return c.router.Generate(ctx, c.agent, prompt)
}
