package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"
)

// SlackAdapter connects agents to Slack over Socket Mode. Replies are
// threaded: the adapter remembers the thread each visitor last spoke
// in and keeps the conversation there.
type SlackAdapter struct {
	mu          sync.RWMutex
	botToken    string
	appToken    string
	client      *slack.Client
	socket      *socketmode.Client
	handler     MessageHandler
	personas    map[string]*AgentPersona
	threads     map[string]string // threadKey -> thread_ts
	connected   bool
	connectedAt time.Time
	logger      *zap.Logger
}

// NewSlackAdapter creates a Slack gateway adapter. botToken is the Bot
// User OAuth Token (xoxb-...), appToken the App-Level Token (xapp-...)
// required for Socket Mode.
func NewSlackAdapter(botToken, appToken string, logger *zap.Logger) *SlackAdapter {
	client := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	socket := socketmode.New(client, socketmode.OptionLog(zap.NewStdLog(logger)))

	return &SlackAdapter{
		botToken: botToken,
		appToken: appToken,
		client:   client,
		socket:   socket,
		personas: make(map[string]*AgentPersona),
		threads:  make(map[string]string),
		logger:   logger,
	}
}

func (a *SlackAdapter) Platform() string { return "slack" }

func (a *SlackAdapter) OnMessage(h MessageHandler) { a.handler = h }

// SetPersona sets the name and icon an agent speaks with on Slack.
func (a *SlackAdapter) SetPersona(agentName string, persona *AgentPersona) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.personas[agentName] = persona
}

// Connect starts the Socket Mode event loop in the background.
func (a *SlackAdapter) Connect(ctx context.Context) error {
	go a.eventLoop(ctx)
	go func() {
		if err := a.socket.RunContext(ctx); err != nil {
			a.logger.Error("slack socket loop exited", zap.Error(err))
		}
	}()

	a.mu.Lock()
	a.connected = true
	a.connectedAt = time.Now()
	a.mu.Unlock()

	a.logger.Info("slack socket mode online")
	return nil
}

func (a *SlackAdapter) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.socket.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			a.socket.Ack(*evt.Request)
			a.dispatchCallback(apiEvent)
		}
	}
}

func (a *SlackAdapter) dispatchCallback(evt slackevents.EventsAPIEvent) {
	if evt.Type != slackevents.CallbackEvent {
		return
	}
	switch inner := evt.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Bot messages echo back through the events API; drop them
		// or the bridge loops.
		if inner.BotID != "" {
			return
		}
		a.onMessageEvent(inner)
	}
}

func threadKey(channel, user string) string {
	return channel + ":" + user
}

func (a *SlackAdapter) onMessageEvent(ev *slackevents.MessageEvent) {
	if a.handler == nil {
		return
	}

	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}
	a.mu.Lock()
	a.threads[threadKey(ev.Channel, ev.User)] = threadTS
	a.mu.Unlock()

	a.handler(&InboundMessage{
		Platform:  "slack",
		ChannelID: ev.Channel,
		UserID:    ev.User,
		UserName:  ev.User,
		Content:   ev.Text,
		Timestamp: time.Now(),
		ReplyTo:   threadTS,
	})
}

// Send posts msg to its Slack channel, threading the reply and styling
// it with the agent persona when one is registered.
func (a *SlackAdapter) Send(_ context.Context, msg *OutboundMessage) error {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if msg.ReplyTo != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ReplyTo))
	}
	opts = append(opts, a.personaOpts(msg.AgentName)...)

	if _, _, err := a.client.PostMessage(msg.ChannelID, opts...); err != nil {
		a.logger.Error("slack post failed",
			zap.String("channel", msg.ChannelID), zap.Error(err))
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

// personaOpts builds the username and icon options for an agent.
func (a *SlackAdapter) personaOpts(agentName string) []slack.MsgOption {
	if agentName == "" {
		return nil
	}
	a.mu.RLock()
	p, ok := a.personas[agentName]
	a.mu.RUnlock()
	if !ok {
		return nil
	}

	opts := []slack.MsgOption{slack.MsgOptionUsername(p.Name)}
	switch {
	case p.IconURL != "":
		opts = append(opts, slack.MsgOptionIconURL(p.IconURL))
	case p.Emoji != "":
		opts = append(opts, slack.MsgOptionIconEmoji(p.Emoji))
	}
	return opts
}

// Broadcast posts the announcement to every channel the bot belongs to.
func (a *SlackAdapter) Broadcast(_ context.Context, msg *BroadcastMessage) error {
	text := fmt.Sprintf("*[%s] %s*\n%s", msg.Type, msg.Title, msg.Content)
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	opts = append(opts, a.personaOpts(msg.AgentName)...)

	channels, _, err := a.client.GetConversationsForUser(&slack.GetConversationsForUserParameters{
		Types: []string{"public_channel", "private_channel"},
		Limit: 200,
	})
	if err != nil {
		return fmt.Errorf("list slack conversations: %w", err)
	}

	for _, ch := range channels {
		if _, _, err := a.client.PostMessage(ch.ID, opts...); err != nil {
			a.logger.Warn("slack channel broadcast failed",
				zap.String("channel", ch.ID), zap.Error(err))
		}
	}
	return nil
}

// Status reports the adapter's connection state.
func (a *SlackAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := AdapterStatus{
		Platform:  "slack",
		Connected: a.connected,
	}
	if a.connected {
		t := a.connectedAt
		s.ConnectedAt = &t
		s.Details = "socket mode"
	}
	return s
}

// Close is a no-op; cancelling the Connect context stops the socket.
func (a *SlackAdapter) Close() error {
	return nil
}
