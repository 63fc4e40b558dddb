package world

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nidhogg/milgram/internal/agent"
	"github.com/nidhogg/milgram/internal/message"
	"github.com/nidhogg/milgram/internal/social"
)

// ErrDuplicateName is returned by RegisterStrict when the name is
// already taken.
var ErrDuplicateName = fmt.Errorf("agent name already registered")

// Observer is notified after a message lands in history. delivered
// reports whether a registered receiver accepted it.
type Observer interface {
	OnMessage(msg *message.Message, delivered bool)
}

// Environment routes messages between registered agents, keeps the
// full message history, and answers social reachability queries over
// the live population.
type Environment struct {
	mu        sync.RWMutex
	agents    map[string]*agent.Agent
	order     []string // first-registration order, drives broadcast
	history   []*message.Message
	observers []Observer
	logger    *zap.Logger
}

// NewEnvironment creates an empty environment.
func NewEnvironment(logger *zap.Logger) *Environment {
	return &Environment{
		agents: make(map[string]*agent.Agent),
		logger: logger,
	}
}

// Register adds an agent keyed by display name. Re-registering a name
// replaces the previous holder and keeps the original broadcast slot.
func (e *Environment) Register(a *agent.Agent) {
	e.mu.Lock()
	if _, exists := e.agents[a.Name]; !exists {
		e.order = append(e.order, a.Name)
	}
	e.agents[a.Name] = a
	e.mu.Unlock()

	e.logger.Info("registered agent",
		zap.String("name", a.Name),
		zap.String("id", a.ID.String()))
}

// RegisterStrict adds an agent but refuses to replace an existing name.
func (e *Environment) RegisterStrict(a *agent.Agent) error {
	e.mu.Lock()
	if _, exists := e.agents[a.Name]; exists {
		e.mu.Unlock()
		return fmt.Errorf("register %s: %w", a.Name, ErrDuplicateName)
	}
	e.order = append(e.order, a.Name)
	e.agents[a.Name] = a
	e.mu.Unlock()

	e.logger.Info("registered agent",
		zap.String("name", a.Name),
		zap.String("id", a.ID.String()))
	return nil
}

// AddObserver attaches an observer to the delivery path.
func (e *Environment) AddObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Deliver appends msg to history and hands it to the receiver when
// registered. Messages for unknown receivers keep their history record
// and go nowhere else; that is not an error. Returns whether a
// receiver accepted the message.
func (e *Environment) Deliver(msg *message.Message) bool {
	e.mu.Lock()
	e.history = append(e.history, msg)
	receiver := e.agents[msg.Receiver]
	observers := make([]Observer, len(e.observers))
	copy(observers, e.observers)
	e.mu.Unlock()

	delivered := receiver != nil
	if delivered {
		receiver.Receive(msg)
	} else {
		e.logger.Debug("message for unknown receiver kept in history only",
			zap.String("sender", msg.Sender),
			zap.String("receiver", msg.Receiver))
	}

	for _, o := range observers {
		o.OnMessage(msg, delivered)
	}
	return delivered
}

// Broadcast sends content from sender to every other registered agent
// in registration order. Broadcast messages carry no metadata. The
// created messages are returned in send order.
func (e *Environment) Broadcast(sender string, content message.Content) []*message.Message {
	e.mu.RLock()
	names := make([]string, len(e.order))
	copy(names, e.order)
	e.mu.RUnlock()

	var sent []*message.Message
	for _, name := range names {
		if name == sender {
			continue
		}
		msg := message.New(sender, name, content)
		e.Deliver(msg)
		sent = append(sent, msg)
	}

	e.logger.Debug("broadcast complete",
		zap.String("sender", sender),
		zap.Int("recipients", len(sent)))
	return sent
}

// Neighbors implements social.NeighborSource over the live population.
// Unregistered names have no outgoing edges.
func (e *Environment) Neighbors(name string) []string {
	e.mu.RLock()
	a := e.agents[name]
	e.mu.RUnlock()

	if a == nil {
		return nil
	}
	return a.Network.Names()
}

// SocialNetwork returns every agent name reachable from start within
// depth hops of the acquaintance graph.
func (e *Environment) SocialNetwork(start string, depth int) map[string]struct{} {
	return social.Reachable(e, start, depth)
}

// Get returns the registered agent with the given name.
func (e *Environment) Get(name string) (*agent.Agent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.agents[name]
	return a, ok
}

// Agents returns the registered agents in registration order.
func (e *Environment) Agents() []*agent.Agent {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*agent.Agent, 0, len(e.order))
	for _, name := range e.order {
		if a, ok := e.agents[name]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Names returns the registered agent names in registration order.
func (e *Environment) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Len reports the number of registered agents.
func (e *Environment) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.agents)
}

// History returns the most recent limit messages in arrival order; a
// non-positive limit returns everything.
func (e *Environment) History(limit int) []*message.Message {
	e.mu.RLock()
	defer e.mu.RUnlock()

	start := 0
	if limit > 0 && len(e.history) > limit {
		start = len(e.history) - limit
	}
	out := make([]*message.Message, len(e.history)-start)
	copy(out, e.history[start:])
	return out
}
