// File: internal/store/store.go
// Description: PostgreSQL run journal. Every terminal task outcome is appended
// to task_runs together with the links discovered while the task ran.

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/internal/task"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateRuns = `
        CREATE TABLE IF NOT EXISTS task_runs (
            run_id      UUID PRIMARY KEY,
            task_id     TEXT NOT NULL,
            parent_id   TEXT,
            type        TEXT NOT NULL,
            status      TEXT NOT NULL,
            url         TEXT,
            prompt      TEXT NOT NULL,
            result      JSONB,
            error       TEXT,
            commands    JSONB NOT NULL,
            elapsed_ms  BIGINT NOT NULL,
            recorded_at TIMESTAMPTZ NOT NULL
        );`
	sqlCreateURLs = `
        CREATE TABLE IF NOT EXISTS task_discovered_urls (
            run_id      UUID NOT NULL REFERENCES task_runs (run_id) ON DELETE CASCADE,
            position    INTEGER NOT NULL,
            url         TEXT NOT NULL,
            description TEXT NOT NULL,
            PRIMARY KEY (run_id, position)
        );`
	sqlInsertRun = `
        INSERT INTO task_runs (run_id, task_id, parent_id, type, status, url, prompt, result, error, commands, elapsed_ms, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);`
)

var urlColumns = []string{"run_id", "position", "url", "description"}

// Store appends task outcomes to PostgreSQL.
type Store struct {
	pool  DBPool
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

// New creates a store on top of an already connected pool.
func New(pool DBPool, logger *zap.Logger) *Store {
	return &Store{
		pool:  pool,
		log:   logger.Named("store"),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// EnsureSchema creates the journal tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{sqlCreateRuns, sqlCreateURLs} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create journal schema: %w", err)
		}
	}
	return nil
}

// RecordTask writes one run row for snap plus its discovered URLs in a single
// transaction. Timestamps are stored in UTC.
func (s *Store) RecordTask(ctx context.Context, snap task.Snapshot, elapsed time.Duration) error {
	runID := s.newID()

	var result []byte
	if snap.Result != nil {
		b, err := json.Marshal(snap.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal result for task %s: %w", snap.ID, err)
		}
		result = b
	}
	commands := snap.Commands
	if commands == nil {
		commands = []string{}
	}
	commandsJSON, err := json.Marshal(commands)
	if err != nil {
		return fmt.Errorf("failed to marshal commands for task %s: %w", snap.ID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	_, err = tx.Exec(ctx, sqlInsertRun,
		runID,
		snap.ID,
		nullable(snap.ParentID),
		string(snap.Type),
		string(snap.Status),
		nullable(snap.URL),
		snap.InitialPrompt,
		result,
		nullable(snap.Error),
		commandsJSON,
		elapsed.Milliseconds(),
		s.now().UTC(),
	)
	if err != nil {
		s.rollback(ctx, tx)
		return fmt.Errorf("failed to insert run for task %s: %w", snap.ID, err)
	}

	if len(snap.DiscoveredURLs) > 0 {
		rows := make([][]any, 0, len(snap.DiscoveredURLs))
		for i, u := range snap.DiscoveredURLs {
			rows = append(rows, []any{runID, i, u.URL, u.Description})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"task_discovered_urls"}, urlColumns, pgx.CopyFromRows(rows)); err != nil {
			s.rollback(ctx, tx)
			return fmt.Errorf("failed to copy discovered urls for task %s: %w", snap.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run for task %s: %w", snap.ID, err)
	}

	s.log.Debug("Recorded task run.",
		zap.String("run_id", runID),
		zap.String("task_id", snap.ID),
		zap.String("status", string(snap.Status)),
		zap.Int("discovered_urls", len(snap.DiscoveredURLs)),
	)
	return nil
}

func (s *Store) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.log.Error("Failed to rollback transaction", zap.Error(err))
	}
}

// nullable maps the empty string onto SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
