package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/milgram/internal/agent"
	"github.com/nidhogg/milgram/internal/command"
	"github.com/nidhogg/milgram/internal/message"
	"github.com/nidhogg/milgram/internal/world"
)

const replyTimeout = 30 * time.Second

// Bridge routes inbound platform messages to agents in the world.
// Visitors address an agent with @Name; slash commands are intercepted
// before any routing.
type Bridge struct {
	env      *world.Environment
	gw       *Gateway
	commands *command.Registry
	logger   *zap.Logger
}

// NewBridge creates a bridge between the gateway and the environment.
func NewBridge(env *world.Environment, gw *Gateway, commands *command.Registry, logger *zap.Logger) *Bridge {
	return &Bridge{
		env:      env,
		gw:       gw,
		commands: commands,
		logger:   logger,
	}
}

// Handle routes one inbound message.
// Signature matches MessageHandler.
func (b *Bridge) Handle(msg *InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	b.logger.Info("routing message",
		zap.String("platform", msg.Platform),
		zap.String("channel", msg.ChannelID),
		zap.String("user", msg.UserName),
	)

	// Intercept slash commands before any agent routing
	if strings.HasPrefix(msg.Content, "/") {
		inv := &command.Invocation{
			Platform:  msg.Platform,
			ChannelID: msg.ChannelID,
			UserID:    msg.UserID,
			UserName:  msg.UserName,
			Env:       b.env,
		}
		result, err := b.commands.Dispatch(ctx, msg.Content, inv)
		if err != nil {
			b.logger.Error("slash command failed", zap.Error(err))
			b.sendReply(ctx, msg, "", "Command error: "+err.Error())
			return
		}
		b.sendReply(ctx, msg, "", result.Content)
		return
	}

	target, clean := b.resolveAgent(msg.Content)
	if target == nil {
		b.sendReply(ctx, msg, "", "No agent matched that message. Address one with @Name.")
		return
	}

	visitor := msg.UserName
	if visitor == "" {
		visitor = "visitor"
	}

	// Record the visitor's message in the world
	b.env.Deliver(message.New(visitor, target.Name, message.Text(clean)))

	reply := b.compose(ctx, target, visitor, clean)
	b.env.Deliver(message.New(target.Name, visitor, message.Text(reply)))

	b.sendReply(ctx, msg, target.Name, reply)
}

// compose asks the agent for a spoken reply, falling back to a stock
// line when no reasoning backend is attached.
func (b *Bridge) compose(ctx context.Context, a *agent.Agent, visitor, content string) string {
	if !a.Attached() {
		return fmt.Sprintf("%s has nothing to say right now.", a.Name)
	}

	situation := fmt.Sprintf("%s says to you: %q", visitor, content)
	resp, err := a.Think(ctx, situation)
	if err != nil {
		b.logger.Error("agent think failed",
			zap.String("agent", a.Name), zap.Error(err))
		return fmt.Sprintf("Agent error: %s", err.Error())
	}
	return resp.Content
}

// resolveAgent finds the @Name mention in content and picks that agent.
// Returns the agent and content with the mention stripped.
func (b *Bridge) resolveAgent(content string) (*agent.Agent, string) {
	agents := b.env.Agents()
	for _, a := range agents {
		mention := "@" + a.Name
		if strings.Contains(content, mention) {
			clean := strings.TrimSpace(strings.Replace(content, mention, "", 1))
			return a, clean
		}
	}
	// No mention found — if only one agent exists, use it as default
	if len(agents) == 1 {
		return agents[0], content
	}
	return nil, content
}

// statusAdapter exposes gateway status to slash commands.
type statusAdapter struct {
	gw *Gateway
}

func (s statusAdapter) StatusAll() []command.AdapterStatus {
	src := s.gw.StatusAll()
	out := make([]command.AdapterStatus, 0, len(src))
	for _, st := range src {
		out = append(out, command.AdapterStatus{
			Platform:  st.Platform,
			Connected: st.Connected,
			Details:   st.Details,
		})
	}
	return out
}

// CommandStatus returns a status provider for the command registry.
func CommandStatus(gw *Gateway) command.StatusProvider {
	return statusAdapter{gw: gw}
}

// sendReply pushes text back to the channel the message came from.
func (b *Bridge) sendReply(ctx context.Context, orig *InboundMessage, agentName, text string) {
	err := b.gw.Send(ctx, &OutboundMessage{
		Platform:  orig.Platform,
		ChannelID: orig.ChannelID,
		AgentName: agentName,
		Content:   text,
		ReplyTo:   orig.ReplyTo,
	})
	if err != nil {
		b.logger.Error("reply delivery failed", zap.Error(err))
	}
}
