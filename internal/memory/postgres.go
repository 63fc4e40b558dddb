package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore is the shared-database Store backend.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects to PostgreSQL and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Pool exposes the connection pool for components sharing the database.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Migrate applies all .up.sql files in dir in lexical order.
func (s *PostgresStore) Migrate(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.pool.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply migration %s: %w", f, err)
		}
		s.logger.Info("applied migration", zap.String("file", f))
	}
	return nil
}

// Store validates and inserts one memory, returning its id.
func (s *PostgresStore) Store(ctx context.Context, agentID uuid.UUID, event string, sentiment, importance float64) (int64, error) {
	if err := Validate(event, sentiment, importance); err != nil {
		return 0, err
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO memories (agent_id, timestamp, event, sentiment, importance)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		agentID.String(), time.Now().UTC(), event, sentiment, importance).Scan(&id)
	if err != nil {
		return 0, unavailable("store memory", err)
	}

	s.logger.Debug("memory stored",
		zap.String("agent_id", agentID.String()),
		zap.Int64("id", id),
		zap.Float64("importance", importance))
	return id, nil
}

// Retrieve returns up to limit memories for the agent, most recent first.
// A non-positive limit falls back to DefaultRetrieveLimit.
func (s *PostgresStore) Retrieve(ctx context.Context, agentID uuid.UUID, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultRetrieveLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, timestamp, event, sentiment, importance
		 FROM memories WHERE agent_id = $1
		 ORDER BY timestamp DESC, id DESC LIMIT $2`,
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
func (s *PostgresStore) Prune(ctx context.Context, agentID uuid.UUID, keepLast int) (int64, error) {
	if err := validateKeepLast(keepLast); err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM memories
		 WHERE agent_id = $1
		   AND id NOT IN (
		     SELECT id FROM memories WHERE agent_id = $1
		     ORDER BY timestamp DESC, id DESC LIMIT $2
		   )`,
		agentID.String(), keepLast)
	if err != nil {
		return 0, unavailable("prune memories", err)
	}
	removed := tag.RowsAffected()

	if removed > 0 {
		s.logger.Debug("memories pruned",
			zap.String("agent_id", agentID.String()),
			zap.Int64("removed", removed),
			zap.Int("kept", keepLast))
	}
	return removed, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
