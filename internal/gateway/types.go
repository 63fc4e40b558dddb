package gateway

import (
	"context"
	"time"
)

// InboundMessage is a visitor message normalized from any platform.
type InboundMessage struct {
	Platform  string    `json:"platform"`
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ReplyTo   string    `json:"reply_to,omitempty"`
}

// OutboundMessage is an agent reply addressed to one platform channel.
type OutboundMessage struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	AgentName string `json:"agent_name,omitempty"`
	Content   string `json:"content"`
	ReplyTo   string `json:"reply_to,omitempty"`
}

// MessageHandler consumes inbound messages from any platform.
type MessageHandler func(msg *InboundMessage)

// Adapter is one chat platform connection. Adapters normalize inbound
// traffic to InboundMessage and render OutboundMessage for their
// platform.
type Adapter interface {
	Platform() string
	Connect(ctx context.Context) error
	Send(ctx context.Context, msg *OutboundMessage) error
	OnMessage(handler MessageHandler)
	Broadcast(ctx context.Context, msg *BroadcastMessage) error
	Status() AdapterStatus
	Close() error
}

// AgentPersona defines how an agent appears on chat platforms.
type AgentPersona struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url"`
	Emoji   string `json:"emoji"` // used when IconURL is empty, ":robot_face:" style
}

// BroadcastType tells adapters how to render an announcement.
type BroadcastType string

const (
	BroadcastAnnouncement BroadcastType = "announcement"
	BroadcastWorldEvent   BroadcastType = "world_event"
	BroadcastSimUpdate    BroadcastType = "simulation_update"
)

// BroadcastMessage is sent to multiple platforms simultaneously. An
// empty Platforms list targets every registered adapter.
type BroadcastMessage struct {
	Type      BroadcastType `json:"type"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	AgentName string        `json:"agent_name"`
	Priority  int           `json:"priority"`
	Platforms []string      `json:"platforms,omitempty"`
}

// AdapterStatus is a point-in-time report of one adapter's connection.
type AdapterStatus struct {
	Platform    string     `json:"platform"`
	Connected   bool       `json:"connected"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Details     string     `json:"details,omitempty"`
}
