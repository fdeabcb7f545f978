package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/kosha-fin/kosha/internal/model"
)

// SaveSyncRun records the aggregate summary of one sync pass.
func (s *SQLiteStorage) SaveSyncRun(ctx context.Context, run model.SyncRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if run.StartedAt.IsZero() {
		return fmt.Errorf("%w: sync run started_at", ErrInvalidParameter)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (started_at, duration_ms, examined, created, skipped, flushed, queued)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UTC(), run.Duration.Milliseconds(),
		run.Examined, run.Created, run.Skipped, run.Flushed, run.Queued)
	if err != nil {
		return fmt.Errorf("failed to save sync run: %w", err)
	}
	return nil
}

// ListSyncRuns returns the most recent sync summaries, newest first.
func (s *SQLiteStorage) ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT started_at, duration_ms, examined, created, skipped, flushed, queued
		FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.SyncRun
	for rows.Next() {
		var run model.SyncRun
		var durationMs int64
		if err := rows.Scan(&run.StartedAt, &durationMs,
			&run.Examined, &run.Created, &run.Skipped, &run.Flushed, &run.Queued); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
