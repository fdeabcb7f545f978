package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosha-fin/kosha/internal/common"
	"github.com/kosha-fin/kosha/internal/model"
)

// scriptedClient returns canned responses in order.
type scriptedClient struct {
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedClient) Complete(_ context.Context, _, _ string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func rawMsg() model.RawMessage {
	return model.RawMessage{
		Sender:     "HDFCBK",
		Body:       "Rs.500 debited from A/c XX1234 for Swiggy. Ref 12345",
		ReceivedAt: time.Date(2025, 8, 15, 12, 30, 0, 0, time.UTC),
	}
}

func TestExtract_Success(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"TRANSACTION: yes\nAMOUNT: 500\nNAME: Swiggy\nCATEGORY: Food\nDIRECTION: debit\nREFERENCE: 12345\nCONFIDENCE: 0.9",
	}}
	extractor := NewExtractorWithClient(client, nil)
	defer func() { _ = extractor.Close() }()

	candidate, err := extractor.Extract(context.Background(), rawMsg())
	require.NoError(t, err)
	assert.True(t, candidate.Amount.Equal(decimal.RequireFromString("500")))
	assert.Equal(t, "12345", candidate.ReferenceID)
	assert.Equal(t, 1, client.calls)
}

func TestExtract_NotTransactionIsTerminal(t *testing.T) {
	client := &scriptedClient{responses: []string{"TRANSACTION: no"}}
	extractor := NewExtractorWithClient(client, nil)
	defer func() { _ = extractor.Close() }()

	_, err := extractor.Extract(context.Background(), rawMsg())
	assert.ErrorIs(t, err, common.ErrNotTransaction)
	assert.Equal(t, 1, client.calls, "a definitive negative must not be retried")
}

func TestExtract_ProviderErrorWrapped(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("upstream 500")}}
	extractor := NewExtractorWithClient(client, nil)
	defer func() { _ = extractor.Close() }()

	_, err := extractor.Extract(context.Background(), rawMsg())
	assert.ErrorIs(t, err, common.ErrExtractionFailed)
}

func TestExtract_RetriesTransientFailure(t *testing.T) {
	client := &scriptedClient{
		errs: []error{errors.New("connection reset"), nil},
		responses: []string{
			"",
			"TRANSACTION: yes\nAMOUNT: 500",
		},
	}
	extractor := NewExtractorWithClient(client, nil)
	extractor.retryOpts.MaxAttempts = 2
	extractor.retryOpts.InitialDelay = time.Millisecond
	defer func() { _ = extractor.Close() }()

	candidate, err := extractor.Extract(context.Background(), rawMsg())
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
	assert.True(t, candidate.Amount.Equal(decimal.RequireFromString("500")))
}

func TestNewExtractor_UnsupportedProvider(t *testing.T) {
	_, err := NewExtractor(Config{Provider: "oracle-of-delphi"}, nil)
	assert.Error(t, err)
}
