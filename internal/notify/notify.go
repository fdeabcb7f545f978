// Package notify implements the category review output port. Requests are
// fire-and-forget: a failed notification is logged, never retried, and
// never blocks the ingestion path that emitted it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kosha-fin/kosha/internal/model"
)

// reviewRequest is one line in the notification spool file.
type reviewRequest struct {
	RequestedAt time.Time       `json:"requestedAt"`
	Name        string          `json:"name"`
	Amount      string          `json:"amount"`
	Category    model.Category  `json:"category"`
	Direction   model.Direction `json:"direction"`
	ReferenceID string          `json:"referenceId,omitempty"`
	Confidence  float64         `json:"confidence"`
}

// SpoolNotifier appends review requests as JSON lines to a spool file that
// the platform notification bridge tails.
type SpoolNotifier struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewSpoolNotifier creates a notifier writing to path.
func NewSpoolNotifier(path string, logger *slog.Logger) (*SpoolNotifier, error) {
	if path == "" {
		return nil, fmt.Errorf("notification spool path not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create notification directory: %w", err)
	}
	return &SpoolNotifier{path: path, logger: logger}, nil
}

// CategoryReview appends one review request line. Errors are returned for
// the caller to log; they carry no retry semantics.
func (n *SpoolNotifier) CategoryReview(_ context.Context, candidate model.Candidate) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	line, err := json.Marshal(reviewRequest{
		RequestedAt: time.Now(),
		Name:        candidate.Name,
		Amount:      candidate.Amount.StringFixed(2),
		Category:    candidate.Category,
		Direction:   candidate.Direction,
		ReferenceID: candidate.ReferenceID,
		Confidence:  candidate.Confidence,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal review request: %w", err)
	}

	file, err := os.OpenFile(n.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open notification spool: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write review request: %w", err)
	}

	n.logger.Debug("category review requested",
		"name", candidate.Name,
		"category", candidate.Category)
	return nil
}

// LogNotifier is the fallback when no spool path is configured: review
// requests surface only in the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

// CategoryReview logs the request and succeeds.
func (n *LogNotifier) CategoryReview(_ context.Context, candidate model.Candidate) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("category review requested",
		"name", candidate.Name,
		"amount", candidate.Amount.StringFixed(2),
		"category", candidate.Category,
		"confidence", candidate.Confidence)
	return nil
}
