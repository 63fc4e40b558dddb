package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/milgram/internal/memory"
	"github.com/nidhogg/milgram/internal/message"
	"github.com/nidhogg/milgram/internal/provider"
)

// scriptedReasoner records the last prompt and returns a fixed reply.
type scriptedReasoner struct {
	reply      string
	fail       bool
	lastPrompt string
}

func (s *scriptedReasoner) Attached() bool { return true }

func (s *scriptedReasoner) Generate(ctx context.Context, prompt string) (*provider.Response, error) {
	s.lastPrompt = prompt
	if s.fail {
		return nil, provider.ErrUnavailable
	}
	return &provider.Response{Content: s.reply, Provider: "scripted"}, nil
}

func newTestAgent(t *testing.T, name string, opts ...Option) *Agent {
	t.Helper()
	a, err := New(name, Demographics{
		Age:            34,
		Gender:         "female",
		Occupation:     "archivist",
		Location:       "new haven",
		EducationLevel: "masters",
	}, Personality{
		Openness:          0.7,
		Conscientiousness: 0.6,
		Extraversion:      0.4,
		Agreeableness:     0.8,
		Neuroticism:       0.3,
	}, opts...)
	if err != nil {
		t.Fatalf("create agent %s: %v", name, err)
	}
	return a
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", Demographics{}, Personality{}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := New("   ", Demographics{}, Personality{}); err == nil {
		t.Error("expected error for blank name")
	}

	_, err := New("x", Demographics{}, Personality{Openness: 1.2})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "openness" {
		t.Errorf("expected openness field, got %q", verr.Field)
	}

	if _, err := New("x", Demographics{}, Personality{Extraversion: -0.1}); err == nil {
		t.Error("expected error for negative trait")
	}

	a := newTestAgent(t, "valid")
	if a.ID.String() == "" {
		t.Error("missing agent id")
	}
	if a.Influence != 0.5 {
		t.Errorf("expected default influence 0.5, got %v", a.Influence)
	}
	if a.Attached() {
		t.Error("agent without reasoner must be detached")
	}
}

func TestSendMessageStampsMetadata(t *testing.T) {
	a := newTestAgent(t, "alice")

	msg := a.SendMessage("bob", message.Text("hi"))
	if msg.Sender != "alice" || msg.Receiver != "bob" {
		t.Errorf("unexpected endpoints: %s -> %s", msg.Sender, msg.Receiver)
	}
	if msg.Metadata["relationship_score"] != message.Number(0) {
		t.Errorf("expected neutral score for stranger, got %v", msg.Metadata["relationship_score"])
	}
	if msg.Metadata["sender_mood"] != message.Number(0) {
		t.Errorf("expected default mood 0, got %v", msg.Metadata["sender_mood"])
	}

	a.UpdateRelationship("bob", 0.6)
	a.SetState("mood", message.Number(-0.4))

	msg = a.SendMessage("bob", message.Text("hi again"))
	if msg.Metadata["relationship_score"] != message.Number(0.6) {
		t.Errorf("expected score 0.6, got %v", msg.Metadata["relationship_score"])
	}
	if msg.Metadata["sender_mood"] != message.Number(-0.4) {
		t.Errorf("expected mood -0.4, got %v", msg.Metadata["sender_mood"])
	}
}

func TestUpdateRelationshipClamps(t *testing.T) {
	a := newTestAgent(t, "alice")

	if got := a.UpdateRelationship("bob", 5); got != 1 {
		t.Errorf("expected clamp to 1, got %v", got)
	}
	if got := a.UpdateRelationship("bob", -0.25); got != 0.75 {
		t.Errorf("expected 0.75, got %v", got)
	}
}

func TestSetGoal(t *testing.T) {
	a := newTestAgent(t, "alice")

	deadline := time.Now().Add(48 * time.Hour)
	if err := a.SetGoal("learn the violin", 7, &deadline); err != nil {
		t.Fatalf("set goal: %v", err)
	}

	goals := a.Goals()
	if len(goals) != 1 {
		t.Fatalf("expected 1 goal, got %d", len(goals))
	}
	if goals[0].Priority != 7 || goals[0].Progress != 0 {
		t.Errorf("unexpected goal: %+v", goals[0])
	}
	if goals[0].Deadline == nil || !goals[0].Deadline.Equal(deadline) {
		t.Errorf("deadline not preserved: %v", goals[0].Deadline)
	}

	for _, priority := range []int{0, 11, -3} {
		if err := a.SetGoal("bad", priority, nil); err == nil {
			t.Errorf("expected error for priority %d", priority)
		}
	}
	if err := a.SetGoal("", 5, nil); err == nil {
		t.Error("expected error for empty description")
	}
	if len(a.Goals()) != 1 {
		t.Errorf("rejected goals must not be stored, have %d", len(a.Goals()))
	}
}

func TestMemoryOpsWithoutStore(t *testing.T) {
	a := newTestAgent(t, "alice")
	ctx := context.Background()

	// Validation still applies even though nothing is persisted.
	if _, err := a.StoreMemory(ctx, "", 0, 0.5); err == nil {
		t.Error("expected validation error without store")
	}
	if _, err := a.StoreMemory(ctx, "x", 3, 0.5); err == nil {
		t.Error("expected sentiment validation without store")
	}

	id, err := a.StoreMemory(ctx, "a quiet day", 0.1, 0.2)
	if err != nil {
		t.Fatalf("store without store: %v", err)
	}
	if id != 0 {
		t.Errorf("expected zero id, got %d", id)
	}

	records, err := a.RetrieveMemories(ctx, 10)
	if err != nil {
		t.Fatalf("retrieve without store: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}

	if _, err := a.PruneMemories(ctx, -1); err == nil {
		t.Error("expected validation error for negative keepLast")
	}
	removed, err := a.PruneMemories(ctx, 5)
	if err != nil {
		t.Fatalf("prune without store: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected 0 removed, got %d", removed)
	}
}

func TestMemoryOpsWithStore(t *testing.T) {
	store, err := memory.NewSQLiteStore(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	a := newTestAgent(t, "alice", WithStore(store))
	ctx := context.Background()

	for _, event := range []string{"breakfast", "argument with bob", "walk home"} {
		if _, err := a.StoreMemory(ctx, event, 0, 0.5); err != nil {
			t.Fatalf("store %q: %v", event, err)
		}
	}

	records, err := a.RetrieveMemories(ctx, 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(records) != 2 || records[0].Event != "walk home" {
		t.Errorf("unexpected records: %v", records)
	}
	if records[0].AgentID != a.ID {
		t.Errorf("records must be keyed by agent id, got %s", records[0].AgentID)
	}

	removed, err := a.PruneMemories(ctx, 1)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
}

func TestThinkDetached(t *testing.T) {
	a := newTestAgent(t, "alice")

	resp, err := a.Think(context.Background(), "a knock at the door")
	if err != nil {
		t.Fatalf("detached think must not error: %v", err)
	}
	if resp != nil {
		t.Errorf("detached think must yield nil, got %+v", resp)
	}
}

func TestThinkAttached(t *testing.T) {
	reasoner := &scriptedReasoner{reply: "I feel uneasy."}
	a := newTestAgent(t, "alice", WithReasoner(reasoner), WithFocus("the storm"),
		WithBeliefs(map[string]float64{"people are kind": 0.8}))

	resp, err := a.Think(context.Background(), "a knock at the door")
	if err != nil {
		t.Fatalf("think: %v", err)
	}
	if resp == nil || resp.Content != "I feel uneasy." {
		t.Fatalf("unexpected response: %+v", resp)
	}

	prompt := reasoner.lastPrompt
	for _, want := range []string{
		"As alice,",
		"Current focus: the storm",
		"people are kind=0.80",
		"a knock at the door",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestThinkAttachedFailure(t *testing.T) {
	a := newTestAgent(t, "alice", WithReasoner(&scriptedReasoner{fail: true}))

	_, err := a.Think(context.Background(), "anything")
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestDecide(t *testing.T) {
	detached := newTestAgent(t, "alice")

	if _, err := detached.Decide(context.Background(), nil, "ctx"); !errors.Is(err, ErrNoOptions) {
		t.Errorf("expected ErrNoOptions, got %v", err)
	}

	choice, err := detached.Decide(context.Background(), []string{"stay", "leave"}, "ctx")
	if err != nil {
		t.Fatalf("detached decide: %v", err)
	}
	if choice != "stay" {
		t.Errorf("detached agent must take the first option, got %q", choice)
	}

	reasoner := &scriptedReasoner{reply: "  leave \n"}
	attached := newTestAgent(t, "bob", WithReasoner(reasoner))

	if _, err := attached.Decide(context.Background(), []string{}, "ctx"); !errors.Is(err, ErrNoOptions) {
		t.Errorf("attached empty options: expected ErrNoOptions, got %v", err)
	}

	choice, err = attached.Decide(context.Background(), []string{"stay", "leave"}, "the house is flooding")
	if err != nil {
		t.Fatalf("attached decide: %v", err)
	}
	if choice != "leave" {
		t.Errorf("expected trimmed choice, got %q", choice)
	}
	if !strings.Contains(reasoner.lastPrompt, "- stay\n- leave\n") {
		t.Errorf("options missing from prompt:\n%s", reasoner.lastPrompt)
	}
	if !strings.Contains(reasoner.lastPrompt, "the house is flooding") {
		t.Errorf("context missing from prompt:\n%s", reasoner.lastPrompt)
	}

	failing := newTestAgent(t, "carol", WithReasoner(&scriptedReasoner{fail: true}))
	if _, err := failing.Decide(context.Background(), []string{"a"}, "ctx"); !errors.Is(err, provider.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestReceiveHandler(t *testing.T) {
	var got *message.Message
	a := newTestAgent(t, "alice",
		WithHandler(func(msg *message.Message) { got = msg }),
		WithLogger(zap.NewNop()))

	msg := message.New("bob", "alice", message.Text("hello"))
	a.Receive(msg)
	if got != msg {
		t.Error("handler not invoked with delivered message")
	}

	// Receiving without a handler is a quiet no-op.
	b := newTestAgent(t, "bob")
	b.Receive(msg)
}

func TestRememberInProcess(t *testing.T) {
	a := newTestAgent(t, "alice")

	if err := a.Remember("", 0, 0.5); err == nil {
		t.Error("expected validation error")
	}
	if err := a.Remember("sunrise", 0.9, 0.1); err != nil {
		t.Fatalf("remember: %v", err)
	}

	memories := a.Memories()
	if len(memories) != 1 || memories[0].Event != "sunrise" {
		t.Errorf("unexpected memories: %v", memories)
	}
}
