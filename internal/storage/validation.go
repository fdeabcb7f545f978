package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kosha-fin/kosha/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validatePendingEntry ensures a queue entry is persistable.
func validatePendingEntry(entry *model.PendingEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry", ErrInvalidParameter)
	}
	if entry.ID == "" {
		return fmt.Errorf("%w: entry missing id", ErrInvalidParameter)
	}
	if entry.QueuedAt.IsZero() {
		return fmt.Errorf("%w: entry missing queued_at", ErrInvalidParameter)
	}
	if !entry.Payload.Amount.IsPositive() {
		return fmt.Errorf("%w: entry payload amount must be positive", ErrInvalidParameter)
	}
	return nil
}
