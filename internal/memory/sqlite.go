package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	event TEXT NOT NULL,
	sentiment REAL NOT NULL CHECK (sentiment >= -1 AND sentiment <= 1),
	importance REAL NOT NULL CHECK (importance >= 0 AND importance <= 1)
);
CREATE INDEX IF NOT EXISTS idx_memories_agent_id ON memories(agent_id);
`

// SQLiteStore is the embedded Store backend. Use ":memory:" as the path
// for an ephemeral database.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens or creates the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create memories schema: %w", err)
	}

	logger.Info("sqlite memory store ready", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Store validates and inserts one memory, returning its id.
func (s *SQLiteStore) Store(ctx context.Context, agentID uuid.UUID, event string, sentiment, importance float64) (int64, error) {
	if err := Validate(event, sentiment, importance); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (agent_id, timestamp, event, sentiment, importance) VALUES (?, ?, ?, ?, ?)`,
		agentID.String(), time.Now().UTC(), event, sentiment, importance)
	if err != nil {
		return 0, unavailable("store memory", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable("store memory id", err)
	}

	s.logger.Debug("memory stored",
		zap.String("agent_id", agentID.String()),
		zap.Int64("id", id),
		zap.Float64("importance", importance))
	return id, nil
}

// Retrieve returns up to limit memories for the agent, most recent first.
// A non-positive limit falls back to DefaultRetrieveLimit.
func (s *SQLiteStore) Retrieve(ctx context.Context, agentID uuid.UUID, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultRetrieveLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, timestamp, event, sentiment, importance
		 FROM memories WHERE agent_id = ?
		 ORDER BY timestamp DESC, id DESC LIMIT ?`,
		agentID.String(), limit)
	if err != nil {
		return nil, unavailable("retrieve memories", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		var rawID string
		if err := rows.Scan(&rec.ID, &rawID, &rec.Timestamp, &rec.Event, &rec.Sentiment, &rec.Importance); err != nil {
			return nil, unavailable("scan memory", err)
		}
		parsed, err := uuid.Parse(rawID)
		if err != nil {
			return nil, unavailable("parse agent id", err)
		}
		rec.AgentID = parsed
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate memories", err)
	}
	return records, nil
}

// Prune deletes everything outside the agent's keepLast most recent
// memories in a single statement and returns the number removed.
func (s *SQLiteStore) Prune(ctx context.Context, agentID uuid.UUID, keepLast int) (int64, error) {
	if err := validateKeepLast(keepLast); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories
		 WHERE agent_id = ?
		   AND id NOT IN (
		     SELECT id FROM memories WHERE agent_id = ?
		     ORDER BY timestamp DESC, id DESC LIMIT ?
		   )`,
		agentID.String(), agentID.String(), keepLast)
	if err != nil {
		return 0, unavailable("prune memories", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("prune memories count", err)
	}

	if removed > 0 {
		s.logger.Debug("memories pruned",
			zap.String("agent_id", agentID.String()),
			zap.Int64("removed", removed),
			zap.Int("kept", keepLast))
	}
	return removed, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
