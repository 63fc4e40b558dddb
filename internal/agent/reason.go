package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nidhogg/milgram/internal/provider"
)

// ErrNoOptions is returned by Decide when there is nothing to choose
// between, regardless of reasoning attachment.
var ErrNoOptions = fmt.Errorf("no options to decide between")

// Think produces free-form thoughts about situation. A detached
// reasoner yields (nil, nil): having no inner voice is a normal mode,
// not a failure. An attached reasoner that fails surfaces the error.
func (a *Agent) Think(ctx context.Context, situation string) (*provider.Response, error) {
	if !a.reasoner.Attached() {
		return nil, nil
	}

	resp, err := a.reasoner.Generate(ctx, a.thinkPrompt(situation))
	if err != nil {
		return nil, fmt.Errorf("think: %w", err)
	}
	return resp, nil
}

// Decide picks one of options. An empty list is always ErrNoOptions.
// Detached agents take the first option; attached agents answer with
// the reasoner's choice, trimmed.
func (a *Agent) Decide(ctx context.Context, options []string, situation string) (string, error) {
	if len(options) == 0 {
		return "", ErrNoOptions
	}
	if !a.reasoner.Attached() {
		return options[0], nil
	}

	resp, err := a.reasoner.Generate(ctx, a.decidePrompt(options, situation))
	if err != nil {
		return "", fmt.Errorf("decide: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

func (a *Agent) thinkPrompt(situation string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "As %s, with the following traits:\n", a.Name)
	fmt.Fprintf(&b, "- Personality: %s\n", formatPersonality(a.Personality))
	fmt.Fprintf(&b, "- Beliefs: %s\n", formatScores(a.beliefs))
	fmt.Fprintf(&b, "- Values: %s\n", formatScores(a.values))
	fmt.Fprintf(&b, "- Current focus: %s\n\n", a.Focus())
	fmt.Fprintf(&b, "Given this context: %s\n\n", situation)
	b.WriteString("What are your thoughts and how would you respond?")
	return b.String()
}

func (a *Agent) decidePrompt(options []string, situation string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "As %s, given these options:\n", a.Name)
	for _, opt := range options {
		fmt.Fprintf(&b, "- %s\n", opt)
	}
	fmt.Fprintf(&b, "\nAnd this context:\n%s\n\n", situation)
	b.WriteString("Which option would you choose and why? Consider your:\n")
	b.WriteString("- Personality traits\n")
	b.WriteString("- Current beliefs and values\n")
	b.WriteString("- Past experiences and goals\n\n")
	b.WriteString("Respond with just the chosen option.")
	return b.String()
}

func formatPersonality(p Personality) string {
	return fmt.Sprintf(
		"openness=%.2f, conscientiousness=%.2f, extraversion=%.2f, agreeableness=%.2f, neuroticism=%.2f",
		p.Openness, p.Conscientiousness, p.Extraversion, p.Agreeableness, p.Neuroticism)
}

func formatScores(scores map[string]float64) string {
	if len(scores) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.2f", k, scores[k]))
	}
	return strings.Join(parts, ", ")
}
