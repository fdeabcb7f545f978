package storage

import (
	"context"
	"fmt"
)

// IsProcessed reports whether a fingerprint has already been through the
// pipeline. Membership means the message will never be classified or
// submitted again, regardless of the outcome it had.
func (s *SQLiteStorage) IsProcessed(ctx context.Context, fingerprint string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return false, err
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM processed_sms WHERE fingerprint = ?", fingerprint).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check processed fingerprint: %w", err)
	}
	return exists > 0, nil
}

// MarkProcessed inserts a fingerprint into the processed set. The insert is
// idempotent, and the set is trimmed to capacity by evicting the oldest
// entries first.
func (s *SQLiteStorage) MarkProcessed(ctx context.Context, fingerprint string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO processed_sms (fingerprint, seen_at) VALUES (?, CURRENT_TIMESTAMP)",
		fingerprint); err != nil {
		return fmt.Errorf("failed to mark fingerprint processed: %w", err)
	}

	// Evict oldest entries beyond capacity. rowid breaks seen_at ties so
	// eviction order stays deterministic within one second.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM processed_sms WHERE fingerprint NOT IN (
			SELECT fingerprint FROM processed_sms
			ORDER BY seen_at DESC, rowid DESC
			LIMIT ?
		)`, s.processedCapacity); err != nil {
		return fmt.Errorf("failed to evict processed fingerprints: %w", err)
	}

	return tx.Commit()
}

// ProcessedCount returns the current size of the processed set.
func (s *SQLiteStorage) ProcessedCount(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM processed_sms").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count processed fingerprints: %w", err)
	}
	return count, nil
}
