package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/milgram/internal/message"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	b, err := New("redis://"+mr.Addr(), zap.NewNop())
	if err != nil {
		t.Fatalf("create bus: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	return b
}

func TestBusPublishSubscribe(t *testing.T) {
	b := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx, "bob")
	time.Sleep(100 * time.Millisecond)

	sent := message.New("alice", "bob", message.Text("hello there"))
	if err := b.Publish(context.Background(), sent); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-ch:
		if got.Sender != "alice" || got.Receiver != "bob" {
			t.Errorf("got %s -> %s, want alice -> bob", got.Sender, got.Receiver)
		}
		text, ok := got.Content.(message.Text)
		if !ok {
			t.Fatalf("content decoded as %T, want message.Text", got.Content)
		}
		if text != "hello there" {
			t.Errorf("content = %q, want %q", text, "hello there")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestBusSubscribeIsolation(t *testing.T) {
	b := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bobCh := b.Subscribe(ctx, "bob")
	carolCh := b.Subscribe(ctx, "carol")
	time.Sleep(100 * time.Millisecond)

	if err := b.Publish(context.Background(), message.New("alice", "carol", message.Text("for carol"))); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-carolCh:
		if got.Receiver != "carol" {
			t.Errorf("receiver = %s, want carol", got.Receiver)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for carol's message")
	}

	select {
	case got := <-bobCh:
		t.Errorf("bob received %s -> %s, want nothing", got.Sender, got.Receiver)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBusObserverMirrorsDeliveries(t *testing.T) {
	b := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx, "bob")
	time.Sleep(100 * time.Millisecond)

	b.OnMessage(message.New("alice", "bob", message.Text("observed")), true)

	select {
	case got := <-ch:
		if got.Sender != "alice" {
			t.Errorf("sender = %s, want alice", got.Sender)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for mirrored message")
	}
}

func TestBusSubscribeClosesOnCancel(t *testing.T) {
	b := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx, "bob")
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Error("expected channel to close without delivering")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("channel did not close after cancel")
	}
}

func TestBusRejectsBadURL(t *testing.T) {
	if _, err := New("not-a-url", zap.NewNop()); err == nil {
		t.Error("expected error for malformed redis url")
	}
}

// The miniredis tests above cover the logic; this one runs the same
// round trip against a real server's blocking XREAD.
func TestBusRoundTripRealServer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate redis: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	b, err := New(url, zap.NewNop())
	if err != nil {
		t.Fatalf("create bus: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch := b.Subscribe(subCtx, "bob")
	time.Sleep(200 * time.Millisecond)

	if err := b.Publish(ctx, message.New("alice", "bob", message.Text("over the wire"))); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-ch:
		if text, ok := got.Content.(message.Text); !ok || text != "over the wire" {
			t.Errorf("content = %#v, want Text(\"over the wire\")", got.Content)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
