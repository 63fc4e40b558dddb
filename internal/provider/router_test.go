package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"
)

// fakeBackend returns a canned response or a canned failure.
type fakeBackend struct {
	id    string
	reply string
	fail  bool
	calls int
}

func (f *fakeBackend) ID() string     { return f.id }
func (f *fakeBackend) Attached() bool { return true }

func (f *fakeBackend) Generate(ctx context.Context, prompt string) (*Response, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("%s generate: %w", f.id, ErrUnavailable)
	}
	return &Response{Content: f.reply, Provider: f.id}, nil
}

func TestRouterDefaultAndBinding(t *testing.T) {
	r := NewRouter(zap.NewNop())
	first := &fakeBackend{id: "first", reply: "from first"}
	second := &fakeBackend{id: "second", reply: "from second"}
	r.Register(first)
	r.Register(second)

	if r.DefaultID() != "first" {
		t.Errorf("expected first registration to become default, got %q", r.DefaultID())
	}

	resp, err := r.Generate(context.Background(), "alice", "hello")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Content != "from first" {
		t.Errorf("expected default backend, got %q", resp.Content)
	}

	r.Bind("alice", "second")
	resp, err = r.Generate(context.Background(), "alice", "hello")
	if err != nil {
		t.Fatalf("generate bound: %v", err)
	}
	if resp.Content != "from second" {
		t.Errorf("expected bound backend, got %q", resp.Content)
	}
}

func TestRouterFallbackChain(t *testing.T) {
	r := NewRouter(zap.NewNop())
	broken := &fakeBackend{id: "broken", fail: true}
	alsoBroken := &fakeBackend{id: "also-broken", fail: true}
	working := &fakeBackend{id: "working", reply: "rescued"}
	r.Register(broken)
	r.Register(alsoBroken)
	r.Register(working)
	r.SetFallbacks("bob", []string{"also-broken", "working"})

	resp, err := r.Generate(context.Background(), "bob", "hello")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Content != "rescued" {
		t.Errorf("expected fallback response, got %q", resp.Content)
	}
	if broken.calls != 1 || alsoBroken.calls != 1 || working.calls != 1 {
		t.Errorf("unexpected call counts: %d %d %d", broken.calls, alsoBroken.calls, working.calls)
	}
}

func TestRouterAllBackendsFail(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register(&fakeBackend{id: "only", fail: true})

	_, err := r.Generate(context.Background(), "carol", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable in chain, got %v", err)
	}
}

func TestRouterForStaysCurrent(t *testing.T) {
	r := NewRouter(zap.NewNop())
	cap := r.For("dana")

	if cap.Attached() {
		t.Error("empty router must present as detached")
	}
	if _, err := r.Generate(context.Background(), "dana", "x"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable from empty router, got %v", err)
	}

	r.Register(&fakeBackend{id: "late", reply: "late answer"})
	if !cap.Attached() {
		t.Error("capability should attach once a backend registers")
	}
	resp, err := cap.Generate(context.Background(), "x")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Content != "late answer" {
		t.Errorf("unexpected content: %q", resp.Content)
	}
}

func TestDetached(t *testing.T) {
	var cap Capability = Detached{}
	if cap.Attached() {
		t.Error("Detached must report not attached")
	}
	_, err := cap.Generate(context.Background(), "anything")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
