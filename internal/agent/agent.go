package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/milgram/internal/memory"
	"github.com/nidhogg/milgram/internal/message"
	"github.com/nidhogg/milgram/internal/provider"
	"github.com/nidhogg/milgram/internal/social"
)

// Handler consumes messages delivered to an agent.
type Handler func(msg *message.Message)

// Memory is a lightweight in-process memory entry, separate from the
// durable store.
type Memory struct {
	Timestamp  time.Time `json:"timestamp"`
	Event      string    `json:"event"`
	Sentiment  float64   `json:"sentiment"`
	Importance float64   `json:"importance"`
}

// Agent is a simulated person: identity and traits fixed at creation,
// mutable state, goals and memories guarded behind methods, social ties
// in Relationships and Network.
type Agent struct {
	ID           uuid.UUID
	Name         string
	Demographics Demographics
	Personality  Personality
	Influence    float64

	Relationships *social.Relationships
	Network       *social.Network

	capabilities map[string]float64
	beliefs      map[string]float64
	values       map[string]float64

	mu       sync.RWMutex
	state    map[string]message.Content
	goals    []Goal
	memories []Memory
	focus    string
	handler  Handler

	store    memory.Store
	reasoner provider.Capability
	logger   *zap.Logger
}

// Option configures an agent at construction time.
type Option func(*Agent)

// WithStore attaches a durable memory store.
func WithStore(s memory.Store) Option {
	return func(a *Agent) { a.store = s }
}

// WithReasoner attaches a reasoning capability.
func WithReasoner(c provider.Capability) Option {
	return func(a *Agent) { a.reasoner = c }
}

// WithBeliefs seeds the agent's belief strengths.
func WithBeliefs(beliefs map[string]float64) Option {
	return func(a *Agent) {
		for k, v := range beliefs {
			a.beliefs[k] = v
		}
	}
}

// WithValues seeds the agent's value weights.
func WithValues(values map[string]float64) Option {
	return func(a *Agent) {
		for k, v := range values {
			a.values[k] = v
		}
	}
}

// WithCapabilities seeds the agent's skill levels.
func WithCapabilities(capabilities map[string]float64) Option {
	return func(a *Agent) {
		for k, v := range capabilities {
			a.capabilities[k] = v
		}
	}
}

// WithInfluence overrides the default influence of 0.5.
func WithInfluence(influence float64) Option {
	return func(a *Agent) { a.Influence = influence }
}

// WithFocus sets the agent's initial focus.
func WithFocus(focus string) Option {
	return func(a *Agent) { a.focus = focus }
}

// WithNetwork seeds the agent's direct acquaintances.
func WithNetwork(peers ...string) Option {
	return func(a *Agent) {
		for _, p := range peers {
			a.Network.Add(p)
		}
	}
}

// WithHandler registers the delivery handler.
func WithHandler(h Handler) Option {
	return func(a *Agent) { a.handler = h }
}

// WithLogger attaches a structured logger. Defaults to a nop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// New creates an agent. The name must be non-empty and every
// personality trait within [0, 1].
func New(name string, demographics Demographics, personality Personality, opts ...Option) (*Agent, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if err := personality.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{
		ID:            uuid.New(),
		Name:          name,
		Demographics:  demographics,
		Personality:   personality,
		Influence:     0.5,
		Relationships: social.NewRelationships(),
		Network:       social.NewNetwork(),
		capabilities:  make(map[string]float64),
		beliefs:       make(map[string]float64),
		values:        make(map[string]float64),
		state:         make(map[string]message.Content),
		reasoner:      provider.Detached{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.reasoner == nil {
		a.reasoner = provider.Detached{}
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a, nil
}

// Attached reports whether a reasoning backend currently backs this
// agent.
func (a *Agent) Attached() bool {
	return a.reasoner.Attached()
}

// Beliefs copies the agent's belief strengths.
func (a *Agent) Beliefs() map[string]float64 { return copyScores(a.beliefs) }

// Values copies the agent's value weights.
func (a *Agent) Values() map[string]float64 { return copyScores(a.values) }

// Capabilities copies the agent's skill levels.
func (a *Agent) Capabilities() map[string]float64 { return copyScores(a.capabilities) }

func copyScores(src map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// State returns the value stored under key, nil when absent.
func (a *Agent) State(key string) message.Content {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state[key]
}

// SetState stores a value under key.
func (a *Agent) SetState(key string, value message.Content) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state[key] = value
}

// StateSnapshot copies the whole state map.
func (a *Agent) StateSnapshot() map[string]message.Content {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]message.Content, len(a.state))
	for k, v := range a.state {
		out[k] = v
	}
	return out
}

// Focus returns the agent's current focus.
func (a *Agent) Focus() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.focus
}

// SetFocus updates the agent's current focus.
func (a *Agent) SetFocus(focus string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.focus = focus
}

// SendMessage builds a message to receiver stamped with the current
// relationship score and the sender's mood. Delivery is the
// environment's job.
func (a *Agent) SendMessage(receiver string, content message.Content) *message.Message {
	mood := a.State("mood")
	if mood == nil {
		mood = message.Number(0)
	}

	msg := message.New(a.Name, receiver, content)
	msg.Metadata["relationship_score"] = message.Number(a.Relationships.Score(receiver))
	msg.Metadata["sender_mood"] = mood
	return msg
}

// UpdateRelationship shifts the agent's score toward peer by delta and
// returns the clamped result.
func (a *Agent) UpdateRelationship(peer string, delta float64) float64 {
	return a.Relationships.Adjust(peer, delta)
}

// SetGoal adds a goal with zero progress. Priority must be within
// [1, 10].
func (a *Agent) SetGoal(description string, priority int, deadline *time.Time) error {
	if strings.TrimSpace(description) == "" {
		return &ValidationError{Field: "description", Reason: "must not be empty"}
	}
	if priority < 1 || priority > 10 {
		return &ValidationError{Field: "priority", Reason: "must be within [1, 10]"}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.goals = append(a.goals, Goal{
		Description: description,
		Priority:    priority,
		Progress:    0,
		Deadline:    deadline,
	})
	return nil
}

// Goals copies the agent's goals.
func (a *Agent) Goals() []Goal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Goal, len(a.goals))
	copy(out, a.goals)
	return out
}

// Remember appends a validated entry to the in-process memory list.
func (a *Agent) Remember(event string, sentiment, importance float64) error {
	if err := memory.Validate(event, sentiment, importance); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.memories = append(a.memories, Memory{
		Timestamp:  time.Now().UTC(),
		Event:      event,
		Sentiment:  sentiment,
		Importance: importance,
	})
	return nil
}

// Memories copies the in-process memory list.
func (a *Agent) Memories() []Memory {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Memory, len(a.memories))
	copy(out, a.memories)
	return out
}

// StoreMemory validates and persists one memory. Without a store the
// entry is validated, then dropped with a zero id.
func (a *Agent) StoreMemory(ctx context.Context, event string, sentiment, importance float64) (int64, error) {
	if a.store == nil {
		if err := memory.Validate(event, sentiment, importance); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return a.store.Store(ctx, a.ID, event, sentiment, importance)
}

// RetrieveMemories returns the agent's most recent persisted memories.
// Without a store there is nothing to remember.
func (a *Agent) RetrieveMemories(ctx context.Context, limit int) ([]memory.Record, error) {
	if a.store == nil {
		return []memory.Record{}, nil
	}
	return a.store.Retrieve(ctx, a.ID, limit)
}

// PruneMemories keeps only the keepLast most recent persisted memories.
func (a *Agent) PruneMemories(ctx context.Context, keepLast int) (int64, error) {
	if a.store == nil {
		if keepLast < 0 {
			return 0, &memory.ValidationError{Field: "keep_last", Reason: "must not be negative"}
		}
		return 0, nil
	}
	return a.store.Prune(ctx, a.ID, keepLast)
}

// OnMessage registers the delivery handler, replacing any previous one.
func (a *Agent) OnMessage(h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// Receive accepts a delivered message and hands it to the registered
// handler, if any.
func (a *Agent) Receive(msg *message.Message) {
	a.mu.RLock()
	h := a.handler
	a.mu.RUnlock()

	a.logger.Debug("message received",
		zap.String("agent", a.Name),
		zap.String("sender", msg.Sender),
		zap.Bool("handled", h != nil))
	if h != nil {
		h(msg)
	}
}
