package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("MILGRAM_PORT", "9090")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-123")

	path := writeConfig(t, `{
		"server": {"port": ${MILGRAM_PORT:8080}},
		"storage": {"driver": "postgres", "dsn": "${DATABASE_URL:postgres://localhost/milgram}"},
		"reasoning": [
			{"id": "claude", "type": "anthropic", "api_key": "${ANTHROPIC_API_KEY}"}
		]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090 from environment", cfg.Server.Port)
	}
	if cfg.Storage.DSN != "postgres://localhost/milgram" {
		t.Errorf("dsn = %q, want the inline default", cfg.Storage.DSN)
	}
	if len(cfg.Reasoning) != 1 || cfg.Reasoning[0].APIKey != "sk-test-123" {
		t.Errorf("reasoning = %+v, want substituted api key", cfg.Reasoning)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "milgram.db" {
		t.Errorf("storage = %+v, want sqlite defaults", cfg.Storage)
	}
	if cfg.Simulation.TickSeconds != 60 || cfg.Simulation.Speed != 1.0 {
		t.Errorf("simulation = %+v, want tick 60 at speed 1.0", cfg.Simulation)
	}
	if cfg.Simulation.ReflectMinutes != 30 || cfg.Simulation.ReflectRecall != 10 {
		t.Errorf("simulation = %+v, want reflection defaults", cfg.Simulation)
	}
}

func TestLoadPopulation(t *testing.T) {
	path := writeConfig(t, `{
		"population": [
			{
				"name": "ada",
				"demographics": {"age": 34, "occupation": "librarian"},
				"personality": {"openness": 0.8, "agreeableness": 0.7},
				"peers": ["bill"],
				"focus": "cataloguing",
				"influence": 0.9,
				"reasoner": "claude"
			}
		]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Population) != 1 {
		t.Fatalf("population = %d seeds, want 1", len(cfg.Population))
	}
	seed := cfg.Population[0]
	if seed.Name != "ada" || seed.Demographics.Occupation != "librarian" {
		t.Errorf("seed = %+v, want ada the librarian", seed)
	}
	if seed.Personality.Openness != 0.8 {
		t.Errorf("openness = %v, want 0.8", seed.Personality.Openness)
	}
	if seed.Influence == nil || *seed.Influence != 0.9 {
		t.Errorf("influence = %v, want 0.9", seed.Influence)
	}
	if seed.Reasoner != "claude" {
		t.Errorf("reasoner = %q, want claude", seed.Reasoner)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"server": `)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
