package memory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Defaults applied when callers pass non-positive limits.
const (
	DefaultRetrieveLimit = 100
	DefaultKeepLast      = 1000
)

// ErrUnavailable marks storage backend failures. Callers may retry;
// the input itself was acceptable.
var ErrUnavailable = fmt.Errorf("memory storage unavailable")

// ValidationError reports input that can never be stored, regardless of
// backend state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Record is one persisted memory.
type Record struct {
	ID         int64     `json:"id"`
	AgentID    uuid.UUID `json:"agent_id"`
	Timestamp  time.Time `json:"timestamp"`
	Event      string    `json:"event"`
	Sentiment  float64   `json:"sentiment"`
	Importance float64   `json:"importance"`
}

// Store persists agent memories. Retrieve returns the most recent first,
// ties broken by insertion order; Prune keeps only the keepLast most
// recent records for the agent and reports how many were removed.
type Store interface {
	Store(ctx context.Context, agentID uuid.UUID, event string, sentiment, importance float64) (int64, error)
	Retrieve(ctx context.Context, agentID uuid.UUID, limit int) ([]Record, error)
	Prune(ctx context.Context, agentID uuid.UUID, keepLast int) (int64, error)
	Close() error
}

// Validate checks a candidate memory against the accepted ranges:
// non-empty event, sentiment within [-1, 1], importance within [0, 1].
func Validate(event string, sentiment, importance float64) error {
	if strings.TrimSpace(event) == "" {
		return &ValidationError{Field: "event", Reason: "must not be empty"}
	}
	if math.IsNaN(sentiment) || sentiment < -1 || sentiment > 1 {
		return &ValidationError{Field: "sentiment", Reason: "must be within [-1, 1]"}
	}
	if math.IsNaN(importance) || importance < 0 || importance > 1 {
		return &ValidationError{Field: "importance", Reason: "must be within [0, 1]"}
	}
	return nil
}

func validateKeepLast(keepLast int) error {
	if keepLast < 0 {
		return &ValidationError{Field: "keep_last", Reason: "must not be negative"}
	}
	return nil
}

// unavailable wraps a backend error so callers can match ErrUnavailable
// while the driver detail stays in the message.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}
