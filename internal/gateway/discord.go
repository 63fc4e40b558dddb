package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordAdapter connects agents to Discord through the bot gateway.
// With a webhook configured for a channel, replies carry the agent's
// persona name and avatar instead of the bot identity.
type DiscordAdapter struct {
	mu          sync.RWMutex
	token       string
	session     *discordgo.Session
	handler     MessageHandler
	personas    map[string]*AgentPersona
	hooks       map[string]string // channelID -> webhook reference
	connected   bool
	connectedAt time.Time
	lastError   string
	logger      *zap.Logger
}

// NewDiscordAdapter creates the Discord adapter. Connect opens the session.
func NewDiscordAdapter(token string, logger *zap.Logger) *DiscordAdapter {
	return &DiscordAdapter{
		token:    token,
		personas: make(map[string]*AgentPersona),
		hooks:    make(map[string]string),
		logger:   logger,
	}
}

func (a *DiscordAdapter) Platform() string { return "discord" }

func (a *DiscordAdapter) OnMessage(h MessageHandler) { a.handler = h }

// SetPersona sets the webhook identity an agent posts under.
func (a *DiscordAdapter) SetPersona(agentName string, persona *AgentPersona) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.personas[agentName] = persona
}

// SetWebhook registers a webhook URL for a channel so replies on it can
// carry agent personas.
func (a *DiscordAdapter) SetWebhook(channelID, webhookURL string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks[channelID] = webhookURL
}

// Connect opens the bot session and the gateway websocket.
func (a *DiscordAdapter) Connect(_ context.Context) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		a.fail(fmt.Sprintf("session create: %v", err))
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages
	session.AddHandler(a.onMessageCreate)

	if err := session.Open(); err != nil {
		a.fail(fmt.Sprintf("open failed: %v", err))
		return fmt.Errorf("discord open: %w", err)
	}

	a.mu.Lock()
	a.session = session
	a.connected = true
	a.connectedAt = time.Now()
	a.lastError = ""
	a.mu.Unlock()

	guilds := len(session.State.Guilds)
	if guilds == 0 {
		a.logger.Warn("discord bot belongs to no guild, invite it before chatting")
	}
	a.logger.Info("discord session open",
		zap.String("user", session.State.User.Username),
		zap.Int("guilds", guilds))
	return nil
}

func (a *DiscordAdapter) fail(reason string) {
	a.mu.Lock()
	a.lastError = reason
	a.connected = false
	a.mu.Unlock()
}

func (a *DiscordAdapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// The bot sees its own replies; drop them or the bridge loops.
	if m.Author.ID == s.State.User.ID {
		return
	}
	if a.handler == nil {
		return
	}

	a.handler(&InboundMessage{
		Platform:  "discord",
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		UserName:  m.Author.Username,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		ReplyTo:   m.ChannelID,
	})
}

// Send posts msg to its Discord channel. A configured webhook plus a
// known persona gets the agent's own name and avatar; otherwise the
// bot posts with the persona name prefixed.
func (a *DiscordAdapter) Send(_ context.Context, msg *OutboundMessage) error {
	a.mu.RLock()
	hook := a.hooks[msg.ChannelID]
	persona, hasPersona := a.personas[msg.AgentName]
	session := a.session
	a.mu.RUnlock()

	if session == nil {
		return fmt.Errorf("discord adapter not connected")
	}
	if hook != "" && hasPersona {
		return a.postAsPersona(session, hook, persona, msg.Content)
	}

	content := msg.Content
	if hasPersona {
		content = fmt.Sprintf("**[%s]** %s", persona.Name, msg.Content)
	}
	if _, err := session.ChannelMessageSend(msg.ChannelID, content); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// postAsPersona executes the channel webhook with the persona's name
// and avatar.
func (a *DiscordAdapter) postAsPersona(session *discordgo.Session, hook string, persona *AgentPersona, content string) error {
	id, token := splitWebhook(hook)
	params := &discordgo.WebhookParams{
		Content:  content,
		Username: persona.Name,
	}
	if persona.IconURL != "" {
		params.AvatarURL = persona.IconURL
	}
	if _, err := session.WebhookExecute(id, token, false, params); err != nil {
		return fmt.Errorf("execute persona webhook: %w", err)
	}
	return nil
}

// splitWebhook takes the id and token from a webhook URL
// (".../webhooks/{id}/{token}").
func splitWebhook(ref string) (id, token string) {
	parts := strings.Split(strings.Trim(ref, "/"), "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2], parts[len(parts)-1]
	}
	return ref, ""
}

// Broadcast posts the announcement to the first writable text channel
// of every guild the bot is in.
func (a *DiscordAdapter) Broadcast(_ context.Context, msg *BroadcastMessage) error {
	a.mu.RLock()
	session := a.session
	a.mu.RUnlock()
	if session == nil {
		return fmt.Errorf("discord adapter not connected")
	}

	content := fmt.Sprintf("**[%s] %s**\n%s", msg.Type, msg.Title, msg.Content)
	for _, guild := range session.State.Guilds {
		channels, err := session.GuildChannels(guild.ID)
		if err != nil {
			a.logger.Warn("discord channel listing failed",
				zap.String("guild", guild.ID), zap.Error(err))
			continue
		}
		for _, ch := range channels {
			if ch.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			if _, err := session.ChannelMessageSend(ch.ID, content); err == nil {
				break
			}
		}
	}
	return nil
}

// Close ends the Discord session if one is open.
func (a *DiscordAdapter) Close() error {
	a.mu.RLock()
	session := a.session
	a.mu.RUnlock()
	if session != nil {
		return session.Close()
	}
	return nil
}

// Status reports the adapter's connection state.
func (a *DiscordAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := AdapterStatus{
		Platform:  "discord",
		Connected: a.connected,
		Error:     a.lastError,
	}
	if a.connected && a.session != nil {
		t := a.connectedAt
		s.ConnectedAt = &t
		s.Details = fmt.Sprintf("bot=%s, guilds=%d",
			a.session.State.User.Username, len(a.session.State.Guilds))
	}
	return s
}
