package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosha-fin/kosha/internal/model"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T, opts ...Option) *SQLiteStorage {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath, opts...)
	require.NoError(t, err, "failed to create storage")

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx), "failed to migrate")

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testPayload(refID string, amount string) model.TransactionPayload {
	return model.TransactionPayload{
		Amount:      decimal.RequireFromString(amount),
		Name:        "Swiggy",
		Category:    model.CategoryFood,
		Direction:   model.DirectionDebit,
		ReferenceID: refID,
		OccurredAt:  time.Date(2025, 8, 15, 12, 30, 0, 0, time.UTC),
		Source:      "sms",
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store := createTestStorage(t)

	// Migrating an already-current database is a no-op.
	require.NoError(t, store.Migrate(context.Background()))
}

func TestProcessedSet_MarkAndCheck(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	seen, err := store.IsProcessed(ctx, "fp-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.MarkProcessed(ctx, "fp-1"))

	seen, err = store.IsProcessed(ctx, "fp-1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Marking again is idempotent.
	require.NoError(t, store.MarkProcessed(ctx, "fp-1"))
	count, err := store.ProcessedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcessedSet_CapacityEvictsOldestFirst(t *testing.T) {
	store := createTestStorage(t, WithProcessedCapacity(5))
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, store.MarkProcessed(ctx, fmt.Sprintf("fp-%d", i)))
	}

	count, err := store.ProcessedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count, "set must never exceed capacity")

	// The oldest three were evicted, the newest five remain.
	for i := 0; i < 3; i++ {
		seen, checkErr := store.IsProcessed(ctx, fmt.Sprintf("fp-%d", i))
		require.NoError(t, checkErr)
		assert.False(t, seen, "fp-%d should have been evicted", i)
	}
	for i := 3; i < 8; i++ {
		seen, checkErr := store.IsProcessed(ctx, fmt.Sprintf("fp-%d", i))
		require.NoError(t, checkErr)
		assert.True(t, seen, "fp-%d should still be present", i)
	}
}

func TestPendingQueue_DedupByReferenceID(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	added, err := store.EnqueuePending(ctx, model.NewPendingEntry(testPayload("R1", "500"), now))
	require.NoError(t, err)
	assert.True(t, added)

	// Same reference id, different amount: dropped, not duplicated.
	added, err = store.EnqueuePending(ctx, model.NewPendingEntry(testPayload("r1", "750"), now))
	require.NoError(t, err)
	assert.False(t, added, "case-insensitive reference id match must dedupe")

	entries, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "R1", entries[0].Payload.ReferenceID)
	assert.True(t, entries[0].Payload.Amount.Equal(decimal.RequireFromString("500")))
}

func TestPendingQueue_NoReferenceIDNeverDeduped(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		added, err := store.EnqueuePending(ctx, model.NewPendingEntry(testPayload("", "120"), now))
		require.NoError(t, err)
		assert.True(t, added)
	}

	entries, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestPendingQueue_RemoveByIdentity(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	entry := model.NewPendingEntry(testPayload("R9", "42.50"), time.Now())
	added, err := store.EnqueuePending(ctx, entry)
	require.NoError(t, err)
	require.True(t, added)

	require.NoError(t, store.RemovePending(ctx, entry.ID))

	entries, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	err = store.RemovePending(ctx, entry.ID)
	assert.True(t, IsNotFound(err), "second removal should report not found")
}

func TestSnapshot_ReplacedWholesale(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	first := []model.Transaction{
		{ID: "t1", Name: "Swiggy", Amount: decimal.RequireFromString("500"),
			Category: model.CategoryFood, Direction: model.DirectionDebit,
			ReferenceID: "12345", OccurredAt: time.Now().UTC()},
		{ID: "t2", Name: "Uber", Amount: decimal.RequireFromString("230"),
			Category: model.CategoryTravel, Direction: model.DirectionDebit,
			OccurredAt: time.Now().UTC()},
	}
	require.NoError(t, store.ReplaceSnapshot(ctx, first))

	got, err := store.GetSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, "12345", got[0].ReferenceID)

	second := []model.Transaction{
		{ID: "t3", Name: "BigBasket", Amount: decimal.RequireFromString("900"),
			Category: model.CategoryGroceries, Direction: model.DirectionDebit,
			OccurredAt: time.Now().UTC()},
	}
	require.NoError(t, store.ReplaceSnapshot(ctx, second))

	got, err = store.GetSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1, "snapshot is overwritten, never merged")
	assert.Equal(t, "t3", got[0].ID)
}

func TestSyncRuns_SaveAndList(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	base := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := model.SyncRun{
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Duration:  90 * time.Second,
			Examined:  10 + i,
			Created:   i,
			Skipped:   2,
			Flushed:   1,
		}
		require.NoError(t, store.SaveSyncRun(ctx, run))
	}

	runs, err := store.ListSyncRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 12, runs[0].Examined, "newest run first")
	assert.Equal(t, 90*time.Second, runs[0].Duration)
}
