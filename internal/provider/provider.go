package provider

import (
	"context"
	"fmt"
	"time"
)

// ErrUnavailable marks reasoning backend failures: the backend exists
// but could not produce a response. A deliberately absent backend is
// not an error; see Detached.
var ErrUnavailable = fmt.Errorf("reasoning unavailable")

// Response is one completed reasoning exchange.
type Response struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Provider string            `json:"provider"`
}

// Capability produces free-text completions for an agent. Attached
// reports whether a real backend sits behind the capability; callers
// treat a detached capability as a normal operating mode, never as a
// failure.
type Capability interface {
	Attached() bool
	Generate(ctx context.Context, prompt string) (*Response, error)
}

// Backend is a named, registerable reasoning provider.
type Backend interface {
	Capability
	ID() string
}

// Config holds settings for one backend instance.
type Config struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Name      string        `json:"name"`
	Endpoint  string        `json:"endpoint"`
	APIKey    string        `json:"api_key"`
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

// Detached is the capability of an agent with no reasoning backend.
type Detached struct{}

// Attached reports false: there is nothing behind this capability.
func (Detached) Attached() bool { return false }

// Generate always fails; callers are expected to check Attached first
// and fall back to their non-reasoning behavior.
func (Detached) Generate(ctx context.Context, prompt string) (*Response, error) {
	return nil, fmt.Errorf("generate: %w", ErrUnavailable)
}
