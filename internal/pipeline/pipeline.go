// Package pipeline turns raw messages into terminal ingestion outcomes.
// The same pipeline contract runs in the foreground listener and in
// headless invocations; the two differ only in how the API client's token
// source is backed and in whether any outcome listeners are registered.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kosha-fin/kosha/internal/common"
	"github.com/kosha-fin/kosha/internal/dedup"
	"github.com/kosha-fin/kosha/internal/model"
	"github.com/kosha-fin/kosha/internal/service"
)

// Status is the terminal state reached for one raw message. Exactly one
// terminal branch is taken per message.
type Status string

// Terminal statuses.
const (
	StatusDuplicate       Status = "DUPLICATE"
	StatusNotTransaction  Status = "NOT_A_TRANSACTION"
	StatusAlreadyRecorded Status = "ALREADY_RECORDED"
	StatusSubmitted       Status = "SUBMITTED"
	StatusQueued          Status = "QUEUED"
	// StatusFailed means the transaction could be neither submitted nor
	// parked in the queue. Unlike the other statuses it is not terminal:
	// the fingerprint stays unseen so a redelivery can try again.
	StatusFailed Status = "FAILED"
)

// Outcome describes how one raw message was resolved.
type Outcome struct {
	Err         error
	Candidate   *model.Candidate
	Transaction *model.Transaction
	Status      Status
	Fingerprint string
}

// Listener receives terminal outcomes. The foreground UI uses this to
// update its displayed list optimistically.
type Listener func(Outcome)

// DefaultConfidenceFloor is the category confidence below which the user
// is asked to review the assigned category.
const DefaultConfidenceFloor = 0.6

// Config holds pipeline tuning.
type Config struct {
	ConfidenceFloor float64
}

// Deps are the collaborators a pipeline needs. All are injected; the
// pipeline owns no ambient state.
type Deps struct {
	Store      service.Storage
	Dedup      *dedup.Engine
	Classifier service.Classifier
	API        service.TransactionAPI
	Notifier   service.Notifier
	Logger     *slog.Logger
}

// Pipeline orchestrates ingestion for a single process. Construct one
// instance at startup and share it; it is safe for concurrent use.
type Pipeline struct {
	store           service.Storage
	dedup           *dedup.Engine
	classifier      service.Classifier
	api             service.TransactionAPI
	notifier        service.Notifier
	logger          *slog.Logger
	listeners       map[int]Listener
	now             func() time.Time
	confidenceFloor float64
	nextListenerID  int
	mu              sync.Mutex
}

// New creates a pipeline with the given dependencies.
func New(deps Deps, cfg Config) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = DefaultConfidenceFloor
	}
	return &Pipeline{
		store:           deps.Store,
		dedup:           deps.Dedup,
		classifier:      deps.Classifier,
		api:             deps.API,
		notifier:        deps.Notifier,
		logger:          deps.Logger,
		listeners:       make(map[int]Listener),
		now:             time.Now,
		confidenceFloor: cfg.ConfidenceFloor,
	}
}

// AddListener registers an outcome listener and returns a remove function.
func (p *Pipeline) AddListener(fn Listener) (remove func()) {
	p.mu.Lock()
	id := p.nextListenerID
	p.nextListenerID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// HandleRawMessage runs one message to a terminal outcome. Every terminal
// branch except DUPLICATE marks the fingerprint seen, so the message is
// never classified or submitted again whatever happened, including a
// classifier failure. FAILED is the one non-terminal outcome: the queue
// write itself failed, so the message stays unseen and retryable.
func (p *Pipeline) HandleRawMessage(ctx context.Context, msg model.RawMessage) Outcome {
	if p.dedup.RecentlyDelivered(msg.Body) {
		p.logger.Debug("suppressed duplicate delivery", "sender", msg.Sender)
		return p.finish(Outcome{Status: StatusDuplicate})
	}

	fingerprint := msg.Fingerprint()
	if p.dedup.Seen(ctx, fingerprint) {
		p.logger.Debug("message already processed",
			"sender", msg.Sender,
			"fingerprint", fingerprint)
		return p.finish(Outcome{Status: StatusDuplicate, Fingerprint: fingerprint})
	}

	candidate, err := p.classifier.Extract(ctx, msg)
	if err != nil {
		// Classifier failures are terminal-and-silent, identical to a
		// negative verdict. The message is marked seen and never retried.
		p.dedup.MarkSeen(ctx, fingerprint)
		outcome := Outcome{Status: StatusNotTransaction, Fingerprint: fingerprint}
		if !errors.Is(err, common.ErrNotTransaction) {
			p.logger.Warn("classification failed, dropping message",
				"sender", msg.Sender,
				"error", err)
			outcome.Err = err
		}
		return p.finish(outcome)
	}

	if !candidate.Valid() {
		// The amount gate: a candidate with no positive amount is not a
		// transaction and must produce zero side effects beyond MarkSeen.
		p.dedup.MarkSeen(ctx, fingerprint)
		p.logger.Debug("candidate failed amount gate", "sender", msg.Sender)
		return p.finish(Outcome{Status: StatusNotTransaction, Fingerprint: fingerprint})
	}

	if p.alreadyRecorded(ctx, candidate) {
		p.dedup.MarkSeen(ctx, fingerprint)
		p.logger.Info("candidate already recorded remotely",
			"reference_id", candidate.ReferenceID,
			"amount", candidate.Amount)
		return p.finish(Outcome{
			Status:      StatusAlreadyRecorded,
			Fingerprint: fingerprint,
			Candidate:   candidate,
		})
	}

	outcome := p.submitOrQueue(ctx, candidate)
	outcome.Fingerprint = fingerprint
	if outcome.Status != StatusFailed {
		p.dedup.MarkSeen(ctx, fingerprint)
	}
	p.maybeRequestReview(ctx, outcome)
	return p.finish(outcome)
}

// alreadyRecorded checks the candidate against the cached remote snapshot.
// A snapshot read failure degrades to "not recorded" rather than blocking
// ingestion.
func (p *Pipeline) alreadyRecorded(ctx context.Context, candidate *model.Candidate) bool {
	known, err := p.store.GetSnapshot(ctx)
	if err != nil {
		p.logger.Warn("snapshot unavailable, skipping transaction-level dedup", "error", err)
		return false
	}
	return p.dedup.AlreadyRecorded(candidate, p.dedup.NewIndex(known))
}

// submitOrQueue attempts remote creation, falling back to the pending
// queue when no token is resolvable or the create call fails. Token
// resolution is the API client's job; ErrNoToken surfaces through it.
func (p *Pipeline) submitOrQueue(ctx context.Context, candidate *model.Candidate) Outcome {
	txn, err := p.api.CreateTransaction(ctx, candidate.Payload())
	if err != nil {
		if errors.Is(err, common.ErrNoToken) {
			p.logger.Info("no auth token, queueing transaction",
				"reference_id", candidate.ReferenceID,
				"error", err)
		} else {
			p.logger.Warn("remote create failed, queueing transaction",
				"reference_id", candidate.ReferenceID,
				"error", err)
		}
		return p.queue(ctx, candidate, err)
	}

	p.logger.Info("transaction submitted",
		"transaction_id", txn.ID,
		"amount", txn.Amount,
		"category", txn.Category)
	return Outcome{Status: StatusSubmitted, Candidate: candidate, Transaction: txn}
}

func (p *Pipeline) queue(ctx context.Context, candidate *model.Candidate, cause error) Outcome {
	entry := model.NewPendingEntry(candidate.Payload(), p.now())
	added, err := p.store.EnqueuePending(ctx, entry)
	if err != nil {
		// Neither submitted nor parked. Reporting QUEUED here would
		// silently lose the transaction once the fingerprint is marked.
		p.logger.Error("failed to queue transaction",
			"reference_id", candidate.ReferenceID,
			"error", err)
		return Outcome{Status: StatusFailed, Candidate: candidate, Err: err}
	}
	if !added {
		p.logger.Debug("payload already queued under same reference id",
			"reference_id", candidate.ReferenceID)
	}
	return Outcome{Status: StatusQueued, Candidate: candidate, Err: cause}
}

// maybeRequestReview fires the category-review notification port at most
// once per terminal outcome, and only for outcomes that produced or queued
// a transaction with a shaky category.
func (p *Pipeline) maybeRequestReview(ctx context.Context, outcome Outcome) {
	if p.notifier == nil || outcome.Candidate == nil {
		return
	}
	if outcome.Status != StatusSubmitted && outcome.Status != StatusQueued {
		return
	}
	if !outcome.Candidate.NeedsCategoryReview(p.confidenceFloor) {
		return
	}
	if err := p.notifier.CategoryReview(ctx, *outcome.Candidate); err != nil {
		p.logger.Warn("category review notification failed", "error", err)
	}
}

func (p *Pipeline) finish(outcome Outcome) Outcome {
	p.mu.Lock()
	listeners := make([]Listener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(outcome)
	}
	return outcome
}
