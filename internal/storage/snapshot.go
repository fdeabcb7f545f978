package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kosha-fin/kosha/internal/model"
)

// ReplaceSnapshot overwrites the cached remote transaction list wholesale.
// The snapshot is never merged incrementally; each successful fetch is the
// new truth.
func (s *SQLiteStorage) ReplaceSnapshot(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cached_transactions"); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO cached_transactions (position, payload) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, txn := range transactions {
		payloadJSON, marshalErr := json.Marshal(txn)
		if marshalErr != nil {
			return fmt.Errorf("failed to marshal transaction %s: %w", txn.ID, marshalErr)
		}
		if _, err := stmt.ExecContext(ctx, i, string(payloadJSON)); err != nil {
			return fmt.Errorf("failed to insert snapshot row: %w", err)
		}
	}

	return tx.Commit()
}

// GetSnapshot returns the last-known-good remote transaction list in the
// order it was fetched.
func (s *SQLiteStorage) GetSnapshot(ctx context.Context) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM cached_transactions ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		var payloadJSON string
		if err := rows.Scan(&payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		var txn model.Transaction
		if err := json.Unmarshal([]byte(payloadJSON), &txn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot row: %w", err)
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}
