package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/milgram/internal/agent"
	"github.com/nidhogg/milgram/internal/command"
	"github.com/nidhogg/milgram/internal/provider"
	"github.com/nidhogg/milgram/internal/world"
)

type fakeAdapter struct {
	platform      string
	handler       MessageHandler
	sent          []*OutboundMessage
	broadcasts    []*BroadcastMessage
	failBroadcast bool
	connected     bool
}

func (f *fakeAdapter) Platform() string { return f.platform }

func (f *fakeAdapter) Connect(context.Context) error {
	f.connected = true
	return nil
}

func (f *fakeAdapter) Send(_ context.Context, m *OutboundMessage) error {
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeAdapter) OnMessage(h MessageHandler) { f.handler = h }

func (f *fakeAdapter) Broadcast(_ context.Context, m *BroadcastMessage) error {
	if f.failBroadcast {
		return fmt.Errorf("broadcast down")
	}
	f.broadcasts = append(f.broadcasts, m)
	return nil
}

func (f *fakeAdapter) Status() AdapterStatus {
	return AdapterStatus{Platform: f.platform, Connected: f.connected}
}

func (f *fakeAdapter) Close() error { return nil }

type scriptedCapability struct {
	reply string
}

func (s *scriptedCapability) Attached() bool { return true }

func (s *scriptedCapability) Generate(_ context.Context, prompt string) (*provider.Response, error) {
	return &provider.Response{Content: s.reply, Provider: "scripted"}, nil
}

func TestGatewayRoutesInbound(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	fake := &fakeAdapter{platform: "test"}
	gw.Register(fake)

	var got *InboundMessage
	gw.SetHandler(func(msg *InboundMessage) { got = msg })

	fake.handler(&InboundMessage{Platform: "test", Content: "hello"})
	if got == nil || got.Content != "hello" {
		t.Fatalf("handler did not receive message: %+v", got)
	}
}

func TestGatewaySendRoutesByPlatform(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	slack := &fakeAdapter{platform: "slack"}
	discord := &fakeAdapter{platform: "discord"}
	gw.Register(slack)
	gw.Register(discord)

	ctx := context.Background()
	if err := gw.Send(ctx, &OutboundMessage{Platform: "slack", Content: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(slack.sent) != 1 || len(discord.sent) != 0 {
		t.Errorf("slack=%d discord=%d, want 1/0", len(slack.sent), len(discord.sent))
	}

	if err := gw.Send(ctx, &OutboundMessage{Platform: "telegram"}); err == nil {
		t.Error("expected error for unknown platform")
	}
}

func TestGatewayBroadcastPlatformFilter(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	slack := &fakeAdapter{platform: "slack"}
	discord := &fakeAdapter{platform: "discord"}
	gw.Register(slack)
	gw.Register(discord)

	msg := &BroadcastMessage{
		Type:      BroadcastWorldEvent,
		Title:     "storm",
		Platforms: []string{"slack"},
	}
	if err := gw.Broadcast(context.Background(), msg); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(slack.broadcasts) != 1 || len(discord.broadcasts) != 0 {
		t.Errorf("slack=%d discord=%d, want 1/0", len(slack.broadcasts), len(discord.broadcasts))
	}
}

func TestGatewayBroadcastReportsFailures(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	gw.Register(&fakeAdapter{platform: "slack", failBroadcast: true})
	gw.Register(&fakeAdapter{platform: "discord"})

	err := gw.Broadcast(context.Background(), &BroadcastMessage{Type: BroadcastAnnouncement})
	if err == nil || !strings.Contains(err.Error(), "1 platform(s)") {
		t.Errorf("expected one-platform failure, got %v", err)
	}
}

func TestGatewayStatusAllSorted(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	gw.Register(&fakeAdapter{platform: "slack", connected: true})
	gw.Register(&fakeAdapter{platform: "discord"})

	statuses := gw.StatusAll()
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	if statuses[0].Platform != "discord" || statuses[1].Platform != "slack" {
		t.Errorf("unexpected order: %s, %s", statuses[0].Platform, statuses[1].Platform)
	}
	if !statuses[1].Connected {
		t.Error("expected slack to report connected")
	}
}

func TestBroadcasterHistory(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	gw.Register(&fakeAdapter{platform: "slack"})
	b := NewBroadcaster(gw, zap.NewNop())
	ctx := context.Background()

	if err := b.Send(ctx, &BroadcastMessage{Title: "untyped"}); err == nil {
		t.Error("expected error for missing type")
	}

	if err := b.Send(ctx, &BroadcastMessage{Type: BroadcastAnnouncement, Title: "first"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := b.Send(ctx, &BroadcastMessage{Type: BroadcastAnnouncement, Title: "second"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	recent := b.History(1)
	if len(recent) != 1 || recent[0].Message.Title != "second" {
		t.Errorf("unexpected history: %+v", recent)
	}
	if len(recent[0].Targets) != 1 || recent[0].Targets[0] != "slack" {
		t.Errorf("unexpected targets: %v", recent[0].Targets)
	}
}

func newBridgeFixture(t *testing.T, agents ...*agent.Agent) (*fakeAdapter, *world.Environment) {
	t.Helper()

	env := world.NewEnvironment(zap.NewNop())
	for _, a := range agents {
		env.Register(a)
	}

	gw := NewGateway(zap.NewNop())
	fake := &fakeAdapter{platform: "test"}
	gw.Register(fake)

	reg := command.NewRegistry()
	command.RegisterBuiltins(reg, CommandStatus(gw))

	bridge := NewBridge(env, gw, reg, zap.NewNop())
	gw.SetHandler(bridge.Handle)
	return fake, env
}

func mkAgent(t *testing.T, name string, opts ...agent.Option) *agent.Agent {
	t.Helper()
	a, err := agent.New(name, agent.Demographics{}, agent.Personality{}, opts...)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return a
}

func TestBridgeDispatchesCommands(t *testing.T) {
	fake, _ := newBridgeFixture(t, mkAgent(t, "alice"))

	fake.handler(&InboundMessage{Platform: "test", ChannelID: "c1", Content: "/agents"})

	if len(fake.sent) != 1 {
		t.Fatalf("got %d replies, want 1", len(fake.sent))
	}
	if !strings.Contains(fake.sent[0].Content, "alice") {
		t.Errorf("expected alice in command reply:\n%s", fake.sent[0].Content)
	}
}

func TestBridgeRoutesToMentionedAgent(t *testing.T) {
	alice := mkAgent(t, "alice", agent.WithReasoner(&scriptedCapability{reply: "good to meet you"}))
	bob := mkAgent(t, "bob")
	fake, env := newBridgeFixture(t, alice, bob)

	fake.handler(&InboundMessage{
		Platform: "test",
		UserName: "visitor-7",
		Content:  "hello @alice, how are you?",
	})

	if len(fake.sent) != 1 {
		t.Fatalf("got %d replies, want 1", len(fake.sent))
	}
	reply := fake.sent[0]
	if reply.AgentName != "alice" {
		t.Errorf("reply agent = %q, want alice", reply.AgentName)
	}
	if reply.Content != "good to meet you" {
		t.Errorf("reply = %q", reply.Content)
	}

	history := env.History(0)
	if len(history) != 2 {
		t.Fatalf("got %d history entries, want 2", len(history))
	}
	if history[0].Sender != "visitor-7" || history[0].Receiver != "alice" {
		t.Errorf("first entry %s -> %s", history[0].Sender, history[0].Receiver)
	}
	if history[1].Sender != "alice" || history[1].Receiver != "visitor-7" {
		t.Errorf("second entry %s -> %s", history[1].Sender, history[1].Receiver)
	}
}

func TestBridgeDetachedAgentFallback(t *testing.T) {
	fake, _ := newBridgeFixture(t, mkAgent(t, "alice"), mkAgent(t, "bob"))

	fake.handler(&InboundMessage{Platform: "test", Content: "@bob say something"})

	if len(fake.sent) != 1 {
		t.Fatalf("got %d replies, want 1", len(fake.sent))
	}
	if fake.sent[0].Content != "bob has nothing to say right now." {
		t.Errorf("reply = %q", fake.sent[0].Content)
	}
}

func TestBridgeSingleAgentDefault(t *testing.T) {
	fake, env := newBridgeFixture(t, mkAgent(t, "alice"))

	fake.handler(&InboundMessage{Platform: "test", UserName: "guest", Content: "anyone here?"})

	if len(fake.sent) != 1 {
		t.Fatalf("got %d replies, want 1", len(fake.sent))
	}
	if fake.sent[0].AgentName != "alice" {
		t.Errorf("reply agent = %q, want alice", fake.sent[0].AgentName)
	}
	if env.History(0)[0].Receiver != "alice" {
		t.Error("expected visitor message delivered to alice")
	}
}

func TestBridgeNoMatchReply(t *testing.T) {
	fake, _ := newBridgeFixture(t, mkAgent(t, "alice"), mkAgent(t, "bob"))

	fake.handler(&InboundMessage{Platform: "test", Content: "hello everyone"})

	if len(fake.sent) != 1 {
		t.Fatalf("got %d replies, want 1", len(fake.sent))
	}
	if !strings.Contains(fake.sent[0].Content, "No agent matched") {
		t.Errorf("reply = %q", fake.sent[0].Content)
	}
}

func TestRESTAdapterRoundTrip(t *testing.T) {
	env := world.NewEnvironment(zap.NewNop())
	env.Register(mkAgent(t, "ada", agent.WithReasoner(&scriptedCapability{reply: "welcome in"})))

	gw := NewGateway(zap.NewNop())
	rest := NewRESTAdapter(zap.NewNop())
	gw.Register(rest)

	reg := command.NewRegistry()
	command.RegisterBuiltins(reg, CommandStatus(gw))
	bridge := NewBridge(env, gw, reg, zap.NewNop())
	gw.SetHandler(bridge.Handle)

	srv := httptest.NewServer(rest.Routes())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{
		"user_name": "visitor",
		"content":   "hello @ada",
	})
	resp, err := http.Post(srv.URL+"/message", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out OutboundMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Content != "welcome in" {
		t.Errorf("content = %q, want %q", out.Content, "welcome in")
	}
	if out.AgentName != "ada" {
		t.Errorf("agent = %q, want ada", out.AgentName)
	}
}

func TestRESTAdapterRejectsEmptyContent(t *testing.T) {
	rest := NewRESTAdapter(zap.NewNop())
	srv := httptest.NewServer(rest.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/message", "application/json", strings.NewReader(`{"content":""}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
