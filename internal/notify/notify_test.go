package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosha-fin/kosha/internal/model"
)

func TestSpoolNotifierAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify", "reviews.jsonl")
	notifier, err := NewSpoolNotifier(path, nil)
	require.NoError(t, err)

	first := model.Candidate{
		Name:       "Swiggy",
		Amount:     decimal.NewFromInt(250),
		Category:   model.CategoryOther,
		Direction:  model.DirectionDebit,
		Confidence: 0.4,
	}
	second := model.Candidate{
		Name:        "Metro",
		Amount:      decimal.RequireFromString("45.50"),
		Category:    model.CategoryTravel,
		Direction:   model.DirectionDebit,
		ReferenceID: "REF-9",
		Confidence:  0.55,
	}

	require.NoError(t, notifier.CategoryReview(context.Background(), first))
	require.NoError(t, notifier.CategoryReview(context.Background(), second))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = file.Close() }()

	var lines []reviewRequest
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var req reviewRequest
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &req))
		lines = append(lines, req)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, lines, 2)
	assert.Equal(t, "Swiggy", lines[0].Name)
	assert.Equal(t, "250.00", lines[0].Amount)
	assert.Equal(t, model.CategoryOther, lines[0].Category)
	assert.Equal(t, "Metro", lines[1].Name)
	assert.Equal(t, "45.50", lines[1].Amount)
	assert.Equal(t, "REF-9", lines[1].ReferenceID)
}

func TestSpoolNotifierRequiresPath(t *testing.T) {
	_, err := NewSpoolNotifier("", nil)
	assert.Error(t, err)
}

func TestLogNotifierNeverFails(t *testing.T) {
	notifier := &LogNotifier{}

	err := notifier.CategoryReview(context.Background(), model.Candidate{
		Name:   "Chai Point",
		Amount: decimal.NewFromInt(30),
	})
	assert.NoError(t, err)
}
