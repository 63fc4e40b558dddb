package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nidhogg/milgram/internal/world"
)

// HandlerFunc executes one slash command. args is everything after the
// command name, already trimmed.
type HandlerFunc func(ctx context.Context, args string, inv *Invocation) (*Result, error)

// Command is one slash command with its help text.
type Command struct {
	Name        string
	Description string
	Usage       string
	Run         HandlerFunc
}

// Invocation carries who issued a command, from where, and the world it
// operates on. Env may be nil when no world is attached.
type Invocation struct {
	Platform  string
	ChannelID string
	UserID    string
	UserName  string
	Env       *world.Environment
}

// Result is what a command hands back to the platform. Content is the
// text shown to the user; Data optionally carries a structured payload.
type Result struct {
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// Registry maps command names to handlers.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

// NewRegistry returns a registry with no commands.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

// Register adds cmd, replacing any command with the same name.
func (r *Registry) Register(cmd *Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Name] = cmd
}

// Dispatch runs the command named in input ("/name args"). Unknown
// names produce a help hint, not an error; errors are reserved for
// handlers that actually failed.
func (r *Registry) Dispatch(ctx context.Context, input string, inv *Invocation) (*Result, error) {
	name, args, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")
	args = strings.TrimSpace(args)

	r.mu.RLock()
	cmd, ok := r.commands[name]
	r.mu.RUnlock()

	if !ok {
		return &Result{
			Content: fmt.Sprintf("Unknown command /%s. Try /help.", name),
		}, nil
	}
	return cmd.Run(ctx, args, inv)
}

// List returns every registered command sorted by name.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
