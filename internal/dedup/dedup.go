// Package dedup decides whether a raw message or a classified candidate has
// already been recorded, at both the SMS and the transaction level.
package dedup

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kosha-fin/kosha/internal/model"
	"github.com/kosha-fin/kosha/internal/service"
)

// Defaults for the recent-delivery suppression window. The platform can
// fire multiple native events for one physical SMS within a second or two;
// the window absorbs those before any fingerprinting happens.
const (
	DefaultRecentWindow   = 5 * time.Second
	DefaultRecentCapacity = 16

	bodyPrefixLen = 48
)

// Config customizes an Engine.
type Config struct {
	RecentWindow   time.Duration
	RecentCapacity int
	// DayLocation is the timezone used to bucket dates for the amount+day
	// heuristic. The heuristic is known to be fuzzy at day boundaries, so
	// the bucket location is configurable rather than hardwired to UTC.
	DayLocation *time.Location
}

// Engine implements message- and transaction-level duplicate detection.
// One instance is constructed per process and holds the in-memory recent
// map; durable state lives in the store.
type Engine struct {
	store    service.Storage
	logger   *slog.Logger
	recent   map[string]time.Time
	dayLoc   *time.Location
	window   time.Duration
	capacity int
	mu       sync.Mutex
	now      func() time.Time
}

// New creates a dedup engine backed by the given durable store.
func New(store service.Storage, cfg Config, logger *slog.Logger) *Engine {
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = DefaultRecentWindow
	}
	if cfg.RecentCapacity <= 0 {
		cfg.RecentCapacity = DefaultRecentCapacity
	}
	if cfg.DayLocation == nil {
		cfg.DayLocation = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		logger:   logger,
		recent:   make(map[string]time.Time),
		window:   cfg.RecentWindow,
		capacity: cfg.RecentCapacity,
		dayLoc:   cfg.DayLocation,
		now:      time.Now,
	}
}

// RecentlyDelivered reports whether a body prefix was seen within the
// rolling window, and records this delivery. It treats a match as a
// duplicate platform event for the same SMS, before any fingerprinting.
func (e *Engine) RecentlyDelivered(body string) bool {
	prefix := body
	if len(prefix) > bodyPrefixLen {
		prefix = prefix[:bodyPrefixLen]
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if last, ok := e.recent[prefix]; ok && now.Sub(last) < e.window {
		e.recent[prefix] = now
		return true
	}

	e.recent[prefix] = now
	e.prune(now)
	return false
}

// prune drops expired entries, then oldest entries beyond capacity.
// Caller holds e.mu.
func (e *Engine) prune(now time.Time) {
	for prefix, last := range e.recent {
		if now.Sub(last) >= e.window {
			delete(e.recent, prefix)
		}
	}
	for len(e.recent) > e.capacity {
		var oldestKey string
		var oldest time.Time
		for prefix, last := range e.recent {
			if oldestKey == "" || last.Before(oldest) {
				oldestKey, oldest = prefix, last
			}
		}
		delete(e.recent, oldestKey)
	}
}

// Seen checks durable fingerprint membership. A storage failure fails open:
// a glitch must not silently drop a real transaction, at the accepted cost
// of a possible duplicate submission.
func (e *Engine) Seen(ctx context.Context, fingerprint string) bool {
	seen, err := e.store.IsProcessed(ctx, fingerprint)
	if err != nil {
		e.logger.Warn("processed-set read failed, treating as unseen",
			"fingerprint", fingerprint,
			"error", err)
		return false
	}
	return seen
}

// MarkSeen records a fingerprint as terminally handled. Failures are logged
// and swallowed: marking is best-effort and must not fail the pipeline.
func (e *Engine) MarkSeen(ctx context.Context, fingerprint string) {
	if err := e.store.MarkProcessed(ctx, fingerprint); err != nil {
		e.logger.Warn("failed to mark fingerprint processed",
			"fingerprint", fingerprint,
			"error", err)
	}
}

// Index holds the lookup sets for one batch of known server transactions.
// Sync builds it once per run so every item in a batch is judged against
// the same snapshot.
type Index struct {
	refs       map[string]struct{}
	amountDays map[string]struct{}
}

// NewIndex builds the reference-id and amount+day lookup sets.
func (e *Engine) NewIndex(known []model.Transaction) *Index {
	idx := &Index{
		refs:       make(map[string]struct{}, len(known)),
		amountDays: make(map[string]struct{}, len(known)),
	}
	for _, txn := range known {
		if ref := strings.TrimSpace(txn.ReferenceID); ref != "" {
			idx.refs[strings.ToLower(ref)] = struct{}{}
		}
		idx.amountDays[e.amountDayKey(txn.Amount, txn.OccurredAt)] = struct{}{}
	}
	return idx
}

// AlreadyRecorded reports whether a candidate matches a known server
// transaction. Reference-id match is authoritative and checked first;
// the amount+calendar-day fallback is an accepted heuristic.
func (e *Engine) AlreadyRecorded(candidate *model.Candidate, idx *Index) bool {
	if candidate == nil || idx == nil {
		return false
	}

	if ref := strings.TrimSpace(candidate.ReferenceID); ref != "" {
		if _, ok := idx.refs[strings.ToLower(ref)]; ok {
			return true
		}
		// A reference id that matches nothing is decisive evidence of a
		// new transaction only at this tier; fall through to the heuristic.
	}

	_, ok := idx.amountDays[e.amountDayKey(candidate.Amount, candidate.OccurredAt)]
	return ok
}

// amountDayKey canonicalizes amounts to two decimal places so 500 and
// 500.00 collide as intended.
func (e *Engine) amountDayKey(amount decimal.Decimal, at time.Time) string {
	return amount.StringFixed(2) + "|" + at.In(e.dayLoc).Format("2006-01-02")
}
