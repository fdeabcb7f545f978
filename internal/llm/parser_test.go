package llm

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosha-fin/kosha/internal/common"
	"github.com/kosha-fin/kosha/internal/model"
)

func testMsg() model.RawMessage {
	return model.RawMessage{
		Sender:     "HDFCBK",
		Body:       "Rs.500 debited from A/c XX1234 for Swiggy. Ref 12345",
		ReceivedAt: time.Date(2025, 8, 15, 12, 30, 0, 0, time.UTC),
	}
}

func TestParseExtraction_FullResponse(t *testing.T) {
	content := `TRANSACTION: yes
AMOUNT: 500.00
NAME: Swiggy
CATEGORY: Food
DIRECTION: debit
PAYMENT_METHOD: UPI
REFERENCE: 12345
DATE: 2025-08-15
INSTITUTION: HDFC Bank
CONFIDENCE: 0.92`

	candidate, err := parseExtraction(content, testMsg())
	require.NoError(t, err)

	assert.True(t, candidate.Amount.Equal(decimal.RequireFromString("500")))
	assert.Equal(t, "Swiggy", candidate.Name)
	assert.Equal(t, model.CategoryFood, candidate.Category)
	assert.Equal(t, model.DirectionDebit, candidate.Direction)
	assert.Equal(t, "UPI", candidate.PaymentMethod)
	assert.Equal(t, "12345", candidate.ReferenceID)
	assert.Equal(t, "HDFC Bank", candidate.Institution)
	assert.InDelta(t, 0.92, candidate.Confidence, 0.001)
	assert.Equal(t, testMsg().Body, candidate.RawText)
}

func TestParseExtraction_NotATransaction(t *testing.T) {
	_, err := parseExtraction("TRANSACTION: no", testMsg())
	assert.ErrorIs(t, err, common.ErrNotTransaction)
}

func TestParseExtraction_MissingVerdictIsMalformed(t *testing.T) {
	_, err := parseExtraction("AMOUNT: 500", testMsg())
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrNotTransaction)
}

func TestParseExtraction_RecoversSlips(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		amount     string
		confidence float64
	}{
		{
			name: "currency prefix and thousand separator",
			content: `TRANSACTION: yes
AMOUNT: Rs.1,250.50
DIRECTION: debit`,
			amount: "1250.50",
		},
		{
			name: "percentage confidence",
			content: `TRANSACTION: yes
AMOUNT: 100
CONFIDENCE: 85%`,
			amount:     "100",
			confidence: 0.85,
		},
		{
			name: "confidence on 0-100 scale without percent sign",
			content: `TRANSACTION: yes
AMOUNT: 100
CONFIDENCE: 85`,
			amount:     "100",
			confidence: 0.85,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate, err := parseExtraction(tt.content, testMsg())
			require.NoError(t, err)
			assert.True(t, candidate.Amount.Equal(decimal.RequireFromString(tt.amount)),
				"got amount %s", candidate.Amount)
			assert.InDelta(t, tt.confidence, candidate.Confidence, 0.001)
		})
	}
}

func TestParseExtraction_NoAmountIsError(t *testing.T) {
	content := `TRANSACTION: yes
NAME: Swiggy`
	_, err := parseExtraction(content, testMsg())
	assert.Error(t, err)
}

func TestParseExtraction_DateFallsBackToReceivedAt(t *testing.T) {
	content := `TRANSACTION: yes
AMOUNT: 42
DATE: yesterday-ish`
	candidate, err := parseExtraction(content, testMsg())
	require.NoError(t, err)
	assert.Equal(t, testMsg().ReceivedAt, candidate.OccurredAt)
}

func TestParseExtraction_UnknownCategoryBecomesOther(t *testing.T) {
	content := `TRANSACTION: yes
AMOUNT: 42
CATEGORY: Miscellaneous Whimsy`
	candidate, err := parseExtraction(content, testMsg())
	require.NoError(t, err)
	assert.Equal(t, model.CategoryOther, candidate.Category)
}
