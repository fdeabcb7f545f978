package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kosha-fin/kosha/internal/common"
	"github.com/kosha-fin/kosha/internal/model"
)

// EnqueuePending appends a creation payload to the pending queue. Entries
// carrying a non-empty reference id are deduplicated: a payload whose
// reference id is already queued is dropped and (false, nil) is returned.
func (s *SQLiteStorage) EnqueuePending(ctx context.Context, entry model.PendingEntry) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validatePendingEntry(&entry); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	refID := strings.TrimSpace(entry.Payload.ReferenceID)
	if refID != "" {
		var existing int
		err := tx.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM pending_queue WHERE reference_id = ? COLLATE NOCASE",
			refID).Scan(&existing)
		if err != nil {
			return false, fmt.Errorf("failed to check queued reference id: %w", err)
		}
		if existing > 0 {
			return false, nil
		}
	}

	payloadJSON, err := json.Marshal(entry.Payload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal pending payload: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO pending_queue (id, reference_id, payload, queued_at) VALUES (?, ?, ?, ?)",
		entry.ID, refID, string(payloadJSON), entry.QueuedAt.UTC()); err != nil {
		return false, fmt.Errorf("failed to enqueue pending entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ListPending returns queued entries in enqueue order.
func (s *SQLiteStorage) ListPending(ctx context.Context) ([]model.PendingEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, payload, queued_at FROM pending_queue ORDER BY queued_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to list pending queue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.PendingEntry
	for rows.Next() {
		var entry model.PendingEntry
		var payloadJSON string
		if err := rows.Scan(&entry.ID, &payloadJSON, &entry.QueuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending entry: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &entry.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending payload %s: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// RemovePending deletes a queued entry by identity.
func (s *SQLiteStorage) RemovePending(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM pending_queue WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to remove pending entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check removed rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: pending entry %s", common.ErrNotFound, id)
	}
	return nil
}

// IsNotFound reports whether err indicates a missing row. Callers flushing
// the queue treat a missing entry as already removed.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}
