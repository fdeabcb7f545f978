package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosha-fin/kosha/internal/common"
	"github.com/kosha-fin/kosha/internal/dedup"
	"github.com/kosha-fin/kosha/internal/model"
	"github.com/kosha-fin/kosha/internal/pipeline"
	"github.com/kosha-fin/kosha/internal/storage"
	"github.com/kosha-fin/kosha/internal/testutil"
)

// fakeSource is a scripted message source.
type fakeSource struct {
	messages []model.RawMessage
	err      error
}

func (f *fakeSource) Watch(_ context.Context) (<-chan model.RawMessage, error) {
	ch := make(chan model.RawMessage)
	close(ch)
	return ch, nil
}

func (f *fakeSource) Recent(_ context.Context, _ int) ([]model.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}

type fixture struct {
	syncer     *Syncer
	store      *storage.SQLiteStorage
	dedup      *dedup.Engine
	classifier *pipeline.MockClassifier
	api        *pipeline.MockAPI
	source     *fakeSource
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	store := testutil.SetupTestDB(t)
	engine := dedup.New(store, dedup.Config{}, nil)
	classifier := pipeline.NewMockClassifier()
	api := &pipeline.MockAPI{}
	source := &fakeSource{}

	if opts.ItemDelay == 0 {
		opts.ItemDelay = time.Millisecond
	}

	return &fixture{
		syncer:     New(store, engine, classifier, api, source, opts, nil),
		store:      store,
		dedup:      engine,
		classifier: classifier,
		api:        api,
		source:     source,
	}
}

func backlog(n int) []model.RawMessage {
	base := time.Date(2025, 8, 15, 9, 0, 0, 0, time.UTC)
	messages := make([]model.RawMessage, n)
	for i := range messages {
		messages[i] = testutil.BankAlert("HDFCBK",
			fmt.Sprintf("REF%03d", i),
			fmt.Sprintf("%d", 100+i),
			base.Add(time.Duration(i)*time.Minute))
	}
	return messages
}

func TestRun_FlushesPendingQueue(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		entry := model.NewPendingEntry(model.TransactionPayload{
			Amount:      decimal.RequireFromString("75"),
			Name:        "Chai Point",
			Category:    model.CategoryFood,
			Direction:   model.DirectionDebit,
			ReferenceID: fmt.Sprintf("Q%d", i),
			OccurredAt:  time.Now().UTC(),
		}, time.Now())
		added, err := f.store.EnqueuePending(ctx, entry)
		require.NoError(t, err)
		require.True(t, added)
	}

	run, err := f.syncer.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, run.Flushed)
	assert.Len(t, f.api.Created(), 3)

	entries, err := f.store.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_FlushFailureLeavesEntriesQueued(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	entry := model.NewPendingEntry(model.TransactionPayload{
		Amount:      decimal.RequireFromString("75"),
		Name:        "Chai Point",
		Category:    model.CategoryFood,
		Direction:   model.DirectionDebit,
		ReferenceID: "Q1",
		OccurredAt:  time.Now().UTC(),
	}, time.Now())
	_, err := f.store.EnqueuePending(ctx, entry)
	require.NoError(t, err)

	f.api.CreateErr = errors.New("backend down")

	run, err := f.syncer.Run(ctx)
	require.NoError(t, err, "flush failures are logged, not fatal")
	assert.Equal(t, 0, run.Flushed)

	entries, err := f.store.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "failed entry stays queued for the next run")
}

func TestRun_CapLeavesOverflowEligible(t *testing.T) {
	f := newFixture(t, Options{MaxPerRun: 30})
	ctx := context.Background()

	messages := backlog(40)
	f.source.messages = messages

	run, err := f.syncer.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 30, run.Examined)
	assert.Len(t, f.classifier.Calls(), 30, "exactly the capped count is classified")

	// The overflow retains unmarked fingerprints, eligible for a future run.
	unmarked := 0
	for _, msg := range messages {
		seen, checkErr := f.store.IsProcessed(ctx, msg.Fingerprint())
		require.NoError(t, checkErr)
		if !seen {
			unmarked++
		}
	}
	assert.Equal(t, 10, unmarked)
}

func TestRun_RepeatedMessageInBatchCreatedOnce(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	// Two spool files carrying the same physical alert: identical sender,
	// body, and receipt time, so identical fingerprints. Both pass the
	// prefilter because neither is seen when the batch is built.
	msg := testutil.BankAlert("HDFCBK", "REF000", "100",
		time.Date(2025, 8, 15, 9, 0, 0, 0, time.UTC))
	f.source.messages = []model.RawMessage{msg, msg}

	run, err := f.syncer.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, run.Created)
	assert.Equal(t, 1, run.Skipped)
	assert.Len(t, f.classifier.Calls(), 1, "second copy must not be re-classified")
	assert.Len(t, f.api.Created(), 1, "same fingerprint must be created at most once per batch")
}

func TestRun_PrefilterSkipsProcessed(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	messages := backlog(5)
	f.source.messages = messages
	for _, msg := range messages[:3] {
		require.NoError(t, f.store.MarkProcessed(ctx, msg.Fingerprint()))
	}

	run, err := f.syncer.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, run.Examined)
	assert.Len(t, f.classifier.Calls(), 2, "processed messages must not spend classifier budget")
}

func TestRun_SkipsCandidatesAlreadyOnServer(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	messages := backlog(2)
	f.source.messages = messages

	// The server already knows REF000 (different amount; reference wins).
	f.api.Remote = []model.Transaction{{
		ID:          "t1",
		Amount:      decimal.RequireFromString("9999"),
		ReferenceID: "REF000",
		OccurredAt:  time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	}}

	run, err := f.syncer.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, run.Created)
	assert.Equal(t, 1, run.Skipped)
	created := f.api.Created()
	require.Len(t, created, 1)
	assert.Equal(t, "REF001", created[0].ReferenceID)
}

func TestRun_DegradesToLocalSnapshotWhenListFails(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	// Local cache knows REF000; the remote list call is down.
	require.NoError(t, f.store.ReplaceSnapshot(ctx, []model.Transaction{{
		ID:          "cached-1",
		Amount:      decimal.RequireFromString("100"),
		ReferenceID: "REF000",
		OccurredAt:  time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	}}))
	f.api.ListErr = errors.New("list endpoint down")
	f.source.messages = backlog(2)

	run, err := f.syncer.Run(ctx)
	require.NoError(t, err, "snapshot fetch failure must not abort the batch")

	assert.Equal(t, 1, run.Skipped, "cached snapshot still catches the duplicate")
	assert.Equal(t, 1, run.Created)
}

func TestRun_ItemFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	messages := backlog(3)
	// Poison one message so the mock classifier rejects it.
	messages[1].Body = "unparseable gibberish"
	f.source.messages = messages

	run, err := f.syncer.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, run.Created)
	assert.Equal(t, 1, run.Skipped)

	// The failed message is consumed, consistent with the no-retry policy.
	seen, err := f.store.IsProcessed(ctx, messages[1].Fingerprint())
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRun_NoTokenQueuesBackfill(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.api.CreateErr = common.ErrNoToken
	f.source.messages = backlog(2)

	run, err := f.syncer.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, run.Created)
	assert.Equal(t, 2, run.Queued)

	entries, err := f.store.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRun_RecordsSummary(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.source.messages = backlog(2)

	run, err := f.syncer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Created)

	history, err := f.store.ListSyncRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 2, history[0].Created)
	assert.Equal(t, 2, history[0].Examined)
}

func TestRun_ProgressCallback(t *testing.T) {
	var calls []int
	f := newFixture(t, Options{Progress: func(done, _ int) { calls = append(calls, done) }})
	f.source.messages = backlog(3)

	_, err := f.syncer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, calls)
}
