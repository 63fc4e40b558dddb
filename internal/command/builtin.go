package command

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nidhogg/milgram/internal/message"
)

// StatusProvider reports platform connection state for /status.
type StatusProvider interface {
	StatusAll() []AdapterStatus
}

// AdapterStatus mirrors the gateway's view of one platform.
type AdapterStatus struct {
	Platform  string
	Connected bool
	Details   string
}

// RegisterBuiltins wires up the built-in slash commands.
func RegisterBuiltins(reg *Registry, status StatusProvider) {
	reg.Register(helpCommand(reg))
	reg.Register(agentsCommand())
	reg.Register(networkCommand())
	reg.Register(memoriesCommand())
	reg.Register(historyCommand())
	reg.Register(statusCommand(status))
}

func helpCommand(reg *Registry) *Command {
	return &Command{
		Name:        "help",
		Description: "Show every command and its usage",
		Usage:       "/help",
		Run: func(_ context.Context, _ string, _ *Invocation) (*Result, error) {
			var b strings.Builder
			b.WriteString("Available commands:\n")
			for _, c := range reg.List() {
				fmt.Fprintf(&b, "  /%s — %s\n", c.Name, c.Description)
				if c.Usage != "" {
					fmt.Fprintf(&b, "    Usage: %s\n", c.Usage)
				}
			}
			return &Result{Content: b.String()}, nil
		},
	}
}

func agentsCommand() *Command {
	return &Command{
		Name:        "agents",
		Description: "List agents living in the world",
		Usage:       "/agents",
		Run: func(_ context.Context, _ string, inv *Invocation) (*Result, error) {
			if inv.Env == nil {
				return &Result{Content: "No environment attached."}, nil
			}
			agents := inv.Env.Agents()
			if len(agents) == 0 {
				return &Result{Content: "No agents live in the world yet."}, nil
			}
			var b strings.Builder
			b.WriteString("Agents:\n")
			for _, a := range agents {
				state := "detached"
				if a.Attached() {
					state = "attached"
				}
				fmt.Fprintf(&b, "  %s — %s, influence %.2f, knows %d\n",
					a.Name, state, a.Influence, a.Network.Len())
			}
			return &Result{Content: b.String()}, nil
		},
	}
}

func networkCommand() *Command {
	return &Command{
		Name:        "network",
		Description: "Show who an agent can reach through acquaintances",
		Usage:       "/network <agent> [depth]",
		Run: func(_ context.Context, args string, inv *Invocation) (*Result, error) {
			if inv.Env == nil {
				return &Result{Content: "No environment attached."}, nil
			}
			name, depth := splitNameAndCount(args, 2)
			if name == "" {
				return &Result{Content: "Usage: /network <agent> [depth]"}, nil
			}

			reached := inv.Env.SocialNetwork(name, depth)
			if len(reached) == 0 {
				return &Result{Content: fmt.Sprintf("%s reaches no one within depth %d.", name, depth)}, nil
			}

			names := make([]string, 0, len(reached))
			for n := range reached {
				names = append(names, n)
			}
			sort.Strings(names)
			return &Result{
				Content: fmt.Sprintf("%s reaches (depth %d): %s", name, depth, strings.Join(names, ", ")),
				Data:    names,
			}, nil
		},
	}
}

func memoriesCommand() *Command {
	return &Command{
		Name:        "memories",
		Description: "Show an agent's most recent memories",
		Usage:       "/memories <agent> [limit]",
		Run: func(ctx context.Context, args string, inv *Invocation) (*Result, error) {
			if inv.Env == nil {
				return &Result{Content: "No environment attached."}, nil
			}
			name, limit := splitNameAndCount(args, 5)
			if name == "" {
				return &Result{Content: "Usage: /memories <agent> [limit]"}, nil
			}

			a, ok := inv.Env.Get(name)
			if !ok {
				return &Result{Content: fmt.Sprintf("Unknown agent: %s.", name)}, nil
			}
			records, err := a.RetrieveMemories(ctx, limit)
			if err != nil {
				return nil, fmt.Errorf("retrieve memories for %s: %w", name, err)
			}
			if len(records) == 0 {
				return &Result{Content: fmt.Sprintf("%s remembers nothing yet.", name)}, nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Recent memories of %s:\n", name)
			for _, rec := range records {
				fmt.Fprintf(&b, "  [%+.1f] %s\n", rec.Sentiment, rec.Event)
			}
			return &Result{Content: b.String()}, nil
		},
	}
}

func historyCommand() *Command {
	return &Command{
		Name:        "history",
		Description: "Show recent world messages",
		Usage:       "/history [limit]",
		Run: func(_ context.Context, args string, inv *Invocation) (*Result, error) {
			if inv.Env == nil {
				return &Result{Content: "No environment attached."}, nil
			}
			limit := 10
			if n, err := strconv.Atoi(args); err == nil && n > 0 {
				limit = n
			}

			msgs := inv.Env.History(limit)
			if len(msgs) == 0 {
				return &Result{Content: "No messages yet."}, nil
			}
			var b strings.Builder
			b.WriteString("Recent messages:\n")
			for _, m := range msgs {
				fmt.Fprintf(&b, "  %s -> %s: %s\n", m.Sender, m.Receiver, message.Render(m.Content))
			}
			return &Result{Content: b.String()}, nil
		},
	}
}

func statusCommand(provider StatusProvider) *Command {
	return &Command{
		Name:        "status",
		Description: "Report platform connection health",
		Usage:       "/status",
		Run: func(_ context.Context, _ string, _ *Invocation) (*Result, error) {
			if provider == nil {
				return &Result{Content: "No adapters configured."}, nil
			}
			adapters := provider.StatusAll()
			if len(adapters) == 0 {
				return &Result{Content: "No adapters configured."}, nil
			}
			var b strings.Builder
			b.WriteString("Adapter status:\n")
			for _, a := range adapters {
				state := "disconnected"
				if a.Connected {
					state = "connected"
				}
				fmt.Fprintf(&b, "  %s: %s", a.Platform, state)
				if a.Details != "" {
					fmt.Fprintf(&b, " (%s)", a.Details)
				}
				b.WriteByte('\n')
			}
			return &Result{Content: b.String()}, nil
		},
	}
}

// splitNameAndCount parses "name [n]" arguments.
func splitNameAndCount(args string, def int) (string, int) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", def
	}
	count := def
	if len(parts) > 1 {
		if n, err := strconv.Atoi(parts[1]); err == nil && n > 0 {
			count = n
		}
	}
	return parts[0], count
}
