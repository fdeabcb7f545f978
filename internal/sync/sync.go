// Package sync implements the manual reconciliation flow: flush the
// pending queue, then backfill a bounded recent window of messages the
// live listener may have missed.
package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kosha-fin/kosha/internal/common"
	"github.com/kosha-fin/kosha/internal/dedup"
	"github.com/kosha-fin/kosha/internal/model"
	"github.com/kosha-fin/kosha/internal/service"
)

// Defaults for one sync run. The candidate cap bounds worst-case classifier
// cost for a single manual tap; candidates beyond it stay unmarked and
// eligible for the next run.
const (
	DefaultDaysBack        = 7
	DefaultMaxPerRun       = 30
	DefaultItemDelay       = 2 * time.Second
	DefaultClassifyTimeout = 30 * time.Second
)

// Options tunes a sync run.
type Options struct {
	DaysBack        int
	MaxPerRun       int
	ItemDelay       time.Duration
	ClassifyTimeout time.Duration
	// Progress, when set, is called after each backfill candidate is
	// resolved. Used by the CLI progress bar.
	Progress func(done, total int)
}

func (o *Options) applyDefaults() {
	if o.DaysBack <= 0 {
		o.DaysBack = DefaultDaysBack
	}
	if o.MaxPerRun <= 0 {
		o.MaxPerRun = DefaultMaxPerRun
	}
	if o.ItemDelay <= 0 {
		o.ItemDelay = DefaultItemDelay
	}
	if o.ClassifyTimeout <= 0 {
		o.ClassifyTimeout = DefaultClassifyTimeout
	}
}

// Syncer runs the reconciliation flow.
type Syncer struct {
	store      service.Storage
	dedup      *dedup.Engine
	classifier service.Classifier
	api        service.TransactionAPI
	source     service.MessageSource
	logger     *slog.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	opts       Options
}

// New creates a syncer.
func New(store service.Storage, dedupEngine *dedup.Engine, classifier service.Classifier,
	api service.TransactionAPI, source service.MessageSource,
	opts Options, logger *slog.Logger) *Syncer {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		store:      store,
		dedup:      dedupEngine,
		classifier: classifier,
		api:        api,
		source:     source,
		logger:     logger,
		now:        time.Now,
		sleep:      sleepCtx,
		opts:       opts,
	}
}

// Run executes one reconciliation pass and returns the aggregate summary.
// Individual item failures never abort the run; only context cancellation
// or a failure to even enumerate candidates does.
func (s *Syncer) Run(ctx context.Context) (model.SyncRun, error) {
	run := model.SyncRun{StartedAt: s.now()}

	run.Flushed = s.flushQueue(ctx)

	candidates, err := s.backfillCandidates(ctx)
	if err != nil {
		run.Duration = s.now().Sub(run.StartedAt)
		s.saveRun(ctx, run)
		return run, err
	}
	run.Examined = len(candidates)

	// One snapshot for the whole batch: later items are judged against the
	// same known state as earlier ones.
	idx := s.fetchSnapshotIndex(ctx)

	for i, msg := range candidates {
		if err := ctx.Err(); err != nil {
			run.Duration = s.now().Sub(run.StartedAt)
			s.saveRun(ctx, run)
			return run, err
		}
		if i > 0 {
			// Serial with a fixed delay: latency traded for classifier
			// quota safety.
			if err := s.sleep(ctx, s.opts.ItemDelay); err != nil {
				run.Duration = s.now().Sub(run.StartedAt)
				s.saveRun(ctx, run)
				return run, err
			}
		}

		s.processCandidate(ctx, msg, idx, &run)

		if s.opts.Progress != nil {
			s.opts.Progress(i+1, len(candidates))
		}
	}

	run.Duration = s.now().Sub(run.StartedAt)
	s.saveRun(ctx, run)

	s.logger.Info("sync complete",
		"examined", run.Examined,
		"created", run.Created,
		"skipped", run.Skipped,
		"flushed", run.Flushed,
		"queued", run.Queued)
	return run, nil
}

// Flush submits the pending queue without running backfill. Returns how
// many entries were created remotely.
func (s *Syncer) Flush(ctx context.Context) int {
	return s.flushQueue(ctx)
}

// flushQueue attempts remote creation for every pending entry. Successes
// are removed by identity; failures stay queued for the next run and are
// logged, never fatal.
func (s *Syncer) flushQueue(ctx context.Context) int {
	entries, err := s.store.ListPending(ctx)
	if err != nil {
		s.logger.Warn("failed to read pending queue, skipping flush", "error", err)
		return 0
	}

	flushed := 0
	for _, entry := range entries {
		if _, err := s.api.CreateTransaction(ctx, entry.Payload); err != nil {
			s.logger.Warn("queued entry flush failed, leaving in queue",
				"entry_id", entry.ID,
				"reference_id", entry.Payload.ReferenceID,
				"error", err)
			continue
		}
		if err := s.store.RemovePending(ctx, entry.ID); err != nil {
			s.logger.Warn("flushed entry could not be removed from queue",
				"entry_id", entry.ID,
				"error", err)
			continue
		}
		flushed++
	}
	return flushed
}

// backfillCandidates pulls the recent window, drops already-processed
// messages, and caps the remainder. Overflow candidates are not marked
// seen, so they stay eligible for a future run.
func (s *Syncer) backfillCandidates(ctx context.Context) ([]model.RawMessage, error) {
	window, err := s.source.Recent(ctx, s.opts.DaysBack)
	if err != nil {
		return nil, common.NewUserError("could not read recent messages", err)
	}

	unprocessed := make([]model.RawMessage, 0, len(window))
	for _, msg := range window {
		if s.dedup.Seen(ctx, msg.Fingerprint()) {
			continue
		}
		unprocessed = append(unprocessed, msg)
	}

	if len(unprocessed) > s.opts.MaxPerRun {
		s.logger.Info("capping backfill batch",
			"candidates", len(unprocessed),
			"cap", s.opts.MaxPerRun)
		unprocessed = unprocessed[:s.opts.MaxPerRun]
	}
	return unprocessed, nil
}

// fetchSnapshotIndex fetches remote transactions once for the run. A fetch
// failure degrades dedup to the locally cached snapshot instead of
// aborting the batch.
func (s *Syncer) fetchSnapshotIndex(ctx context.Context) *dedup.Index {
	remote, err := s.api.ListTransactions(ctx)
	if err == nil {
		if saveErr := s.store.ReplaceSnapshot(ctx, remote); saveErr != nil {
			s.logger.Warn("failed to cache remote snapshot", "error", saveErr)
		}
		return s.dedup.NewIndex(remote)
	}

	s.logger.Warn("remote snapshot unavailable, deduplicating against local cache", "error", err)
	cached, cacheErr := s.store.GetSnapshot(ctx)
	if cacheErr != nil {
		s.logger.Warn("local snapshot unavailable too", "error", cacheErr)
		return s.dedup.NewIndex(nil)
	}
	return s.dedup.NewIndex(cached)
}

// processCandidate runs one backfill message to a terminal outcome and
// updates the run counters. Mirrors the live pipeline's branches, with a
// per-call classification timeout.
func (s *Syncer) processCandidate(ctx context.Context, msg model.RawMessage, idx *dedup.Index, run *model.SyncRun) {
	fingerprint := msg.Fingerprint()

	// The prefilter ran before any item was processed. Re-check here so a
	// second copy of the same message inside one batch is caught once its
	// first copy has been marked.
	if s.dedup.Seen(ctx, fingerprint) {
		run.Skipped++
		return
	}

	classifyCtx, cancel := context.WithTimeout(ctx, s.opts.ClassifyTimeout)
	candidate, err := s.classifier.Extract(classifyCtx, msg)
	cancel()

	if err != nil {
		if !errors.Is(err, common.ErrNotTransaction) {
			s.logger.Warn("backfill classification failed, dropping message",
				"sender", msg.Sender,
				"error", err)
		}
		s.dedup.MarkSeen(ctx, fingerprint)
		run.Skipped++
		return
	}

	if !candidate.Valid() {
		s.dedup.MarkSeen(ctx, fingerprint)
		run.Skipped++
		return
	}

	if s.dedup.AlreadyRecorded(candidate, idx) {
		s.logger.Debug("backfill candidate already recorded",
			"reference_id", candidate.ReferenceID,
			"amount", candidate.Amount)
		s.dedup.MarkSeen(ctx, fingerprint)
		run.Skipped++
		return
	}

	switch s.submit(ctx, candidate) {
	case submitCreated:
		run.Created++
	case submitQueued:
		run.Queued++
	case submitFailed:
		// Neither created nor parked: leave the fingerprint unseen so
		// the message stays eligible for a later run.
		run.Skipped++
		return
	}
	s.dedup.MarkSeen(ctx, fingerprint)
}

type submitResult int

const (
	submitCreated submitResult = iota
	submitQueued
	submitFailed
)

// submit creates the transaction remotely, queueing on token or API
// failure. Token resolution lives in the API client.
func (s *Syncer) submit(ctx context.Context, candidate *model.Candidate) submitResult {
	_, err := s.api.CreateTransaction(ctx, candidate.Payload())
	if err == nil {
		return submitCreated
	}

	s.logger.Warn("backfill submission failed, queueing",
		"reference_id", candidate.ReferenceID,
		"error", err)
	entry := model.NewPendingEntry(candidate.Payload(), s.now())
	if _, queueErr := s.store.EnqueuePending(ctx, entry); queueErr != nil {
		s.logger.Error("failed to queue backfill transaction", "error", queueErr)
		return submitFailed
	}
	return submitQueued
}

func (s *Syncer) saveRun(ctx context.Context, run model.SyncRun) {
	// The summary should still be recorded when the run itself was
	// canceled partway.
	if err := s.store.SaveSyncRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("failed to record sync run", "error", err)
	}
}

// sleepCtx sleeps unless the context is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
