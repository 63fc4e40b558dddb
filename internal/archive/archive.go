package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nidhogg/milgram/internal/message"
)

// DefaultRecentLimit bounds Recent and ForAgent when the caller passes
// a non-positive limit.
const DefaultRecentLimit = 50

// Entry is one archived message row.
type Entry struct {
	ID         int64            `json:"id"`
	Message    *message.Message `json:"message"`
	Delivered  bool             `json:"delivered"`
	ArchivedAt time.Time        `json:"archived_at"`
}

// Archive persists every routed message to PostgreSQL for later audit.
// It shares the memory store's connection pool.
type Archive struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates an archive over an existing pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Archive {
	return &Archive{pool: pool, logger: logger}
}

// Record inserts one message and returns the row id.
func (a *Archive) Record(ctx context.Context, msg *message.Message, delivered bool) (int64, error) {
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return 0, fmt.Errorf("encode content: %w", err)
	}
	meta, err := json.Marshal(msg.Metadata)
	if err != nil {
		return 0, fmt.Errorf("encode metadata: %w", err)
	}

	var id int64
	err = a.pool.QueryRow(ctx,
		`INSERT INTO archived_messages (message_id, sender, receiver, content, metadata, sent_at, delivered)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		msg.ID.String(), msg.Sender, msg.Receiver, content, meta, msg.Timestamp, delivered,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("archive message: %w", err)
	}
	return id, nil
}

// OnMessage records one routed message; failures are logged, never
// propagated, so a dead database cannot stall delivery.
func (a *Archive) OnMessage(msg *message.Message, delivered bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := a.Record(ctx, msg, delivered); err != nil {
		a.logger.Warn("message archive failed",
			zap.String("sender", msg.Sender),
			zap.String("receiver", msg.Receiver),
			zap.Error(err))
	}
}

// Recent returns the newest entries across all agents.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return a.query(ctx,
		`SELECT id, message_id, sender, receiver, content, metadata, sent_at, delivered, archived_at
		 FROM archived_messages ORDER BY archived_at DESC, id DESC LIMIT $1`,
		limit)
}

// ForAgent returns the newest entries sent to or by one agent.
func (a *Archive) ForAgent(ctx context.Context, name string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return a.query(ctx,
		`SELECT id, message_id, sender, receiver, content, metadata, sent_at, delivered, archived_at
		 FROM archived_messages WHERE receiver = $1 OR sender = $1
		 ORDER BY archived_at DESC, id DESC LIMIT $2`,
		name, limit)
}

func (a *Archive) query(ctx context.Context, sql string, args ...interface{}) ([]Entry, error) {
	rows, err := a.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			rawID   string
			msg     message.Message
			content []byte
			meta    []byte
		)
		if err := rows.Scan(&e.ID, &rawID, &msg.Sender, &msg.Receiver, &content, &meta, &msg.Timestamp, &e.Delivered, &e.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}

		parsed, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("parse message id: %w", err)
		}
		msg.ID = parsed

		if msg.Content, err = message.DecodeContent(content); err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
		if msg.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}

		e.Message = &msg
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive: %w", err)
	}
	return entries, nil
}

func decodeMetadata(data []byte) (map[string]message.Content, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	meta := make(map[string]message.Content, len(raw))
	for k, v := range raw {
		c, err := message.DecodeContent(v)
		if err != nil {
			return nil, err
		}
		meta[k] = c
	}
	return meta, nil
}
