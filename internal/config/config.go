package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/nidhogg/milgram/internal/agent"
)

// Config is everything milgram reads from its JSON config file.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Storage    StorageConfig    `json:"storage"`
	Graph      GraphConfig      `json:"graph"`
	Bus        BusConfig        `json:"bus"`
	Archive    ArchiveConfig    `json:"archive"`
	Reasoning  []BackendConfig  `json:"reasoning"`
	Gateway    GatewayConfig    `json:"gateway"`
	Simulation SimulationConfig `json:"simulation"`
	Population []AgentSeed      `json:"population"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// StorageConfig selects the memory store backend. Driver is "sqlite"
// or "postgres"; DSN is a file path for sqlite and a connection URL
// for postgres.
type StorageConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	Cache  bool   `json:"cache"`
}

// GraphConfig points at the Neo4j mirror. An empty URI disables it.
type GraphConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// BusConfig points at the Redis stream mirror. An empty URL disables it.
type BusConfig struct {
	URL string `json:"url"`
}

type ArchiveConfig struct {
	Enabled bool `json:"enabled"`
}

// BackendConfig describes one reasoning backend. Type is "anthropic"
// or "openai".
type BackendConfig struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Endpoint  string `json:"endpoint,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	Default   bool   `json:"default,omitempty"`
}

type GatewayConfig struct {
	Slack   SlackGatewayConfig   `json:"slack"`
	Discord DiscordGatewayConfig `json:"discord"`
}

type SlackGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	AppToken string `json:"app_token"`
}

type DiscordGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
}

type SimulationConfig struct {
	TickSeconds    int     `json:"tick_seconds"`
	Speed          float64 `json:"speed"`
	DecayRate      float64 `json:"decay_rate"`
	ReflectMinutes int     `json:"reflect_minutes"`
	ReflectRecall  int     `json:"reflect_recall"`
}

// AgentSeed describes one agent created at startup.
type AgentSeed struct {
	Name         string             `json:"name"`
	Demographics agent.Demographics `json:"demographics"`
	Personality  agent.Personality  `json:"personality"`
	Beliefs      map[string]float64 `json:"beliefs,omitempty"`
	Values       map[string]float64 `json:"values,omitempty"`
	Focus        string             `json:"focus,omitempty"`
	Peers        []string           `json:"peers,omitempty"`
	Reasoner     string             `json:"reasoner,omitempty"`
	Influence    *float64           `json:"influence,omitempty"`
}

// envVarRe captures ${VAR} and ${VAR:default} references.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load parses the JSON config at path, expanding environment references first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Expand ${VAR} and ${VAR:default} before decoding.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Driver == "sqlite" && c.Storage.DSN == "" {
		c.Storage.DSN = "milgram.db"
	}
	if c.Simulation.TickSeconds <= 0 {
		c.Simulation.TickSeconds = 60
	}
	if c.Simulation.Speed <= 0 {
		c.Simulation.Speed = 1.0
	}
	if c.Simulation.ReflectMinutes <= 0 {
		c.Simulation.ReflectMinutes = 30
	}
	if c.Simulation.ReflectRecall <= 0 {
		c.Simulation.ReflectRecall = 10
	}
}
