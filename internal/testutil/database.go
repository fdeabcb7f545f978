// Package testutil provides shared helpers for package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kosha-fin/kosha/internal/model"
	"github.com/kosha-fin/kosha/internal/storage"
)

// SetupTestDB creates an in-memory migrated store with automatic cleanup.
func SetupTestDB(t *testing.T, opts ...storage.Option) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:", opts...)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

// BankAlert builds a plausible debit-alert raw message.
func BankAlert(sender, refID string, amount string, receivedAt time.Time) model.RawMessage {
	return model.RawMessage{
		Sender:     sender,
		Body:       "Rs." + amount + " debited from A/c XX1234 for Swiggy. Ref " + refID,
		ReceivedAt: receivedAt,
	}
}

// Candidate builds a valid extraction result for tests.
func Candidate(refID, amount string, occurredAt time.Time) *model.Candidate {
	return &model.Candidate{
		Amount:      decimal.RequireFromString(amount),
		Name:        "Swiggy",
		Category:    model.CategoryFood,
		Direction:   model.DirectionDebit,
		ReferenceID: refID,
		OccurredAt:  occurredAt,
		Confidence:  0.92,
	}
}
