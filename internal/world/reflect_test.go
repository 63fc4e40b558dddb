package world

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/milgram/internal/agent"
	"github.com/nidhogg/milgram/internal/memory"
	"github.com/nidhogg/milgram/internal/provider"
)

// echoReasoner replies with a fixed thought.
type echoReasoner struct {
	thought string
	prompts []string
}

func (e *echoReasoner) Attached() bool { return true }

func (e *echoReasoner) Generate(ctx context.Context, prompt string) (*provider.Response, error) {
	e.prompts = append(e.prompts, prompt)
	return &provider.Response{Content: e.thought, Provider: "echo"}, nil
}

func newMemoryStore(t *testing.T) memory.Store {
	t.Helper()
	store, err := memory.NewSQLiteStore(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestReflectorStoresReflection(t *testing.T) {
	env := newTestEnv(t)
	store := newMemoryStore(t)
	reasoner := &echoReasoner{thought: "today was heavier than most"}

	a := mkAgent(t, "alice", agent.WithStore(store), agent.WithReasoner(reasoner))
	env.Register(a)

	ctx := context.Background()
	if _, err := a.StoreMemory(ctx, "argued with bob", -0.6, 0.8); err != nil {
		t.Fatalf("seed memory: %v", err)
	}
	if _, err := a.StoreMemory(ctx, "skipped lunch", -0.1, 0.2); err != nil {
		t.Fatalf("seed memory: %v", err)
	}

	r := NewReflector(env, time.Hour, 10, zap.NewNop())
	if fired := r.FireNow(); fired != 1 {
		t.Fatalf("expected 1 reflection, got %d", fired)
	}

	if len(reasoner.prompts) != 1 {
		t.Fatalf("expected 1 prompt, got %d", len(reasoner.prompts))
	}
	prompt := reasoner.prompts[0]
	if !strings.Contains(prompt, "argued with bob") || !strings.Contains(prompt, "skipped lunch") {
		t.Errorf("prompt missing seeded memories:\n%s", prompt)
	}

	records, err := a.RetrieveMemories(ctx, 1)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(records) != 1 || records[0].Event != "reflection: today was heavier than most" {
		t.Errorf("unexpected newest memory: %v", records)
	}
}

func TestReflectorSkipsDetachedAndEmpty(t *testing.T) {
	env := newTestEnv(t)
	store := newMemoryStore(t)

	// Detached agent with memories.
	detached := mkAgent(t, "alice", agent.WithStore(store))
	env.Register(detached)
	if _, err := detached.StoreMemory(context.Background(), "a day", 0, 0.5); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Attached agent with no memories.
	empty := mkAgent(t, "bob", agent.WithStore(store), agent.WithReasoner(&echoReasoner{thought: "hm"}))
	env.Register(empty)

	r := NewReflector(env, time.Hour, 10, zap.NewNop())
	if fired := r.FireNow(); fired != 0 {
		t.Errorf("expected no reflections, got %d", fired)
	}
}

func TestReflectorIntervalGate(t *testing.T) {
	env := newTestEnv(t)
	store := newMemoryStore(t)
	reasoner := &echoReasoner{thought: "steady"}

	a := mkAgent(t, "alice", agent.WithStore(store), agent.WithReasoner(reasoner))
	env.Register(a)
	if _, err := a.StoreMemory(context.Background(), "milestone", 0.5, 0.9); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := NewReflector(env, time.Hour, 10, zap.NewNop())
	base := time.Now()

	// First tick only sets the baseline.
	r.OnTick(base)
	if len(reasoner.prompts) != 0 {
		t.Fatalf("baseline tick must not reflect, got %d prompts", len(reasoner.prompts))
	}

	// Inside the interval: still nothing.
	r.OnTick(base.Add(30 * time.Minute))
	if len(reasoner.prompts) != 0 {
		t.Fatalf("early tick must not reflect, got %d prompts", len(reasoner.prompts))
	}

	// Past the interval: one reflection.
	r.OnTick(base.Add(2 * time.Hour))
	if len(reasoner.prompts) != 1 {
		t.Fatalf("expected 1 reflection after interval, got %d", len(reasoner.prompts))
	}
}

func TestRelationDecayTick(t *testing.T) {
	env := newTestEnv(t)
	alice := mkAgent(t, "alice")
	bob := mkAgent(t, "bob")
	env.Register(alice)
	env.Register(bob)

	alice.UpdateRelationship("bob", 0.5)
	bob.UpdateRelationship("alice", -0.5)

	d := NewRelationDecay(env, nil, 0.2, zap.NewNop())
	d.OnTick(time.Now())

	if got := alice.Relationships.Score("bob"); got != 0.3 {
		t.Errorf("alice->bob: expected 0.3, got %v", got)
	}
	if got := bob.Relationships.Score("alice"); got != -0.3 {
		t.Errorf("bob->alice: expected -0.3, got %v", got)
	}

	// Scores never cross zero.
	for i := 0; i < 5; i++ {
		d.OnTick(time.Now())
	}
	if got := alice.Relationships.Score("bob"); got != 0 {
		t.Errorf("alice->bob: expected 0, got %v", got)
	}
}
