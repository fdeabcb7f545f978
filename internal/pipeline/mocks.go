package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/kosha-fin/kosha/internal/common"
	"github.com/kosha-fin/kosha/internal/model"
)

// MockClassifier is a test implementation of service.Classifier. It parses
// the well-formed alert bodies the tests use, records every call, and can
// be scripted to fail.
type MockClassifier struct {
	Err        error
	Result     *model.Candidate
	Confidence float64
	Category   model.Category
	calls      []model.RawMessage
	mu         sync.Mutex
}

// NewMockClassifier creates a mock classifier with sensible defaults.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{Category: model.CategoryFood, Confidence: 0.9}
}

// Extract derives a candidate from the message body with a tiny
// deterministic parser: "Rs.<amount> ... Ref <id>" bodies become valid
// candidates, anything else is not a transaction.
func (m *MockClassifier) Extract(_ context.Context, msg model.RawMessage) (*model.Candidate, error) {
	m.mu.Lock()
	m.calls = append(m.calls, msg)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}

	fields := strings.Fields(msg.Body)
	var amount decimal.Decimal
	var refID string
	for i, field := range fields {
		if strings.HasPrefix(field, "Rs.") {
			parsed, err := decimal.NewFromString(strings.TrimPrefix(field, "Rs."))
			if err == nil {
				amount = parsed
			}
		}
		if field == "Ref" && i+1 < len(fields) {
			refID = strings.TrimRight(fields[i+1], ".")
		}
	}

	if amount.IsZero() {
		return nil, common.ErrNotTransaction
	}

	return &model.Candidate{
		Amount:      amount,
		Name:        "Swiggy",
		Category:    m.Category,
		Direction:   model.DirectionDebit,
		ReferenceID: refID,
		OccurredAt:  msg.ReceivedAt,
		Confidence:  m.Confidence,
		RawText:     msg.Body,
	}, nil
}

// Calls returns the messages extraction was attempted for.
func (m *MockClassifier) Calls() []model.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.RawMessage(nil), m.calls...)
}

// MockAPI is a test implementation of service.TransactionAPI.
type MockAPI struct {
	CreateErr error
	ListErr   error
	Remote    []model.Transaction
	created   []model.TransactionPayload
	mu        sync.Mutex
}

// CreateTransaction records the payload and fabricates a remote record.
func (m *MockAPI) CreateTransaction(_ context.Context, payload model.TransactionPayload) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return nil, m.CreateErr
	}

	m.created = append(m.created, payload)
	txn := model.Transaction{
		ID:          "remote-" + payload.ReferenceID,
		Amount:      payload.Amount,
		Name:        payload.Name,
		Category:    payload.Category,
		Direction:   payload.Direction,
		ReferenceID: payload.ReferenceID,
		OccurredAt:  payload.OccurredAt,
	}
	m.Remote = append(m.Remote, txn)
	return &txn, nil
}

// ListTransactions returns the scripted remote state.
func (m *MockAPI) ListTransactions(_ context.Context) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return append([]model.Transaction(nil), m.Remote...), nil
}

// Created returns the payloads successfully submitted so far.
func (m *MockAPI) Created() []model.TransactionPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TransactionPayload(nil), m.created...)
}

// MockNotifier records category-review requests.
type MockNotifier struct {
	requests []model.Candidate
	mu       sync.Mutex
}

// CategoryReview records the request.
func (m *MockNotifier) CategoryReview(_ context.Context, candidate model.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, candidate)
	return nil
}

// Requests returns the recorded review requests.
func (m *MockNotifier) Requests() []model.Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Candidate(nil), m.requests...)
}
