package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is the durable remote record, owned by the backend. This core
// only ever creates transactions; it never mutates or deletes them.
type Transaction struct {
	OccurredAt    time.Time       `json:"occurredAt"`
	CreatedAt     time.Time       `json:"createdAt"`
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	ReferenceID   string          `json:"referenceId,omitempty"`
	Institution   string          `json:"institution,omitempty"`
	Category      Category        `json:"category"`
	Direction     Direction       `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
}

// TransactionPayload is the creation request body sent to the backend.
type TransactionPayload struct {
	OccurredAt    time.Time       `json:"occurredAt"`
	Name          string          `json:"name"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	ReferenceID   string          `json:"referenceId,omitempty"`
	Institution   string          `json:"institution,omitempty"`
	Source        string          `json:"source,omitempty"`
	Category      Category        `json:"category"`
	Direction     Direction       `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
}

// PendingEntry is a transaction-creation payload parked locally because
// submission could not complete (no token, or the create call failed).
type PendingEntry struct {
	QueuedAt time.Time          `json:"queuedAt"`
	ID       string             `json:"id"`
	Payload  TransactionPayload `json:"payload"`
}

// NewPendingEntry wraps a payload for queueing with a fresh identity.
// Entries are tracked by ID rather than queue position because the queue
// may mutate concurrently with other ingestion.
func NewPendingEntry(payload TransactionPayload, now time.Time) PendingEntry {
	return PendingEntry{
		ID:       uuid.NewString(),
		Payload:  payload,
		QueuedAt: now,
	}
}

// SyncRun records the aggregate outcome of one manual reconciliation pass.
type SyncRun struct {
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Examined  int           `json:"examined"`
	Created   int           `json:"created"`
	Skipped   int           `json:"skipped"`
	Flushed   int           `json:"flushed"`
	Queued    int           `json:"queued"`
}
