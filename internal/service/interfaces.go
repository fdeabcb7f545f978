// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/kosha-fin/kosha/internal/model"
)

// Storage defines the contract for the local durable store. It is the only
// resource shared between the foreground listener and headless invocations,
// so every method must be safe to call from a fresh process.
type Storage interface {
	// Processed fingerprint set
	IsProcessed(ctx context.Context, fingerprint string) (bool, error)
	MarkProcessed(ctx context.Context, fingerprint string) error
	ProcessedCount(ctx context.Context) (int, error)

	// Pending queue
	EnqueuePending(ctx context.Context, entry model.PendingEntry) (bool, error)
	ListPending(ctx context.Context) ([]model.PendingEntry, error)
	RemovePending(ctx context.Context, id string) error

	// Cached remote snapshot
	ReplaceSnapshot(ctx context.Context, transactions []model.Transaction) error
	GetSnapshot(ctx context.Context) ([]model.Transaction, error)

	// Sync history
	SaveSyncRun(ctx context.Context, run model.SyncRun) error
	ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// Classifier is the external extraction oracle: given a raw message it
// returns a structured candidate or ErrNotTransaction. Its output is never
// trusted blindly; the amount gate and dedup checks run downstream.
type Classifier interface {
	Extract(ctx context.Context, msg model.RawMessage) (*model.Candidate, error)
}

// TransactionAPI is the remote backend this core creates transactions in.
type TransactionAPI interface {
	CreateTransaction(ctx context.Context, payload model.TransactionPayload) (*model.Transaction, error)
	ListTransactions(ctx context.Context) ([]model.Transaction, error)
}

// TokenSource resolves a bearer token. Token returns the current token;
// Refresh forces the external refresh collaborator and returns the new one.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// MessageSource is the platform messaging subsystem boundary.
type MessageSource interface {
	// Watch emits live raw messages until ctx is canceled.
	Watch(ctx context.Context) (<-chan model.RawMessage, error)
	// Recent returns the bounded historical window used by sync backfill.
	Recent(ctx context.Context, daysBack int) ([]model.RawMessage, error)
}

// Notifier is the fire-and-forget output port for "ask the user to confirm
// the category" requests. Implementations must not block ingestion.
type Notifier interface {
	CategoryReview(ctx context.Context, candidate model.Candidate) error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
