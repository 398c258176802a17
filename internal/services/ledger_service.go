package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"billbuddy/internal/amqp"
	"billbuddy/internal/cache"
	"billbuddy/internal/core"
	"billbuddy/internal/extract"
	applog "billbuddy/internal/log"
	"billbuddy/internal/store"

	"github.com/google/uuid"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrExtractorUnavailable = errors.New("audio extraction is not configured")
)

const (
	reportCacheSize = 16
	reportCacheTTL  = 10 * time.Minute
)

// Publisher announces that the entry lists changed.
type Publisher interface {
	PublishEntriesChanged(ctx context.Context, kind amqp.ChangeKind, entryID string, revision int64) error
}

// LedgerService orchestrates entry storage, change notifications and the
// settlement report.
type LedgerService struct {
	store     store.Store
	publisher Publisher
	extractor extract.Extractor
	reports   *cache.LRU[int64, core.Report]
	newID     func() string
}

// NewLedgerService wires the service. publisher and extractor may be nil.
func NewLedgerService(st store.Store, publisher Publisher, extractor extract.Extractor) *LedgerService {
	return &LedgerService{
		store:     st,
		publisher: publisher,
		extractor: extractor,
		reports:   cache.NewLRU[int64, core.Report](reportCacheSize, reportCacheTTL),
		newID:     uuid.NewString,
	}
}

// ReportCache exposes the report cache so it can be registered for cleanup.
func (s *LedgerService) ReportCache() cache.Cleaner {
	return s.reports
}

func (s *LedgerService) ExtractionEnabled() bool {
	return s.extractor != nil
}

// AddEqual validates and stores a confirmed equal-split entry. An ID is
// assigned when e has none.
func (s *LedgerService) AddEqual(ctx context.Context, e core.EqualSplitEntry) (core.EqualSplitEntry, error) {
	if err := e.Validate(); err != nil {
		return e, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.SharedWith == nil {
		e.SharedWith = []string{}
	}

	rev, err := s.store.AddEqual(ctx, e)
	if err != nil {
		return e, fmt.Errorf("save equal entry: %w", err)
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).
		LogEntryCreated(ctx, "equal", e.ID, e.Label, e.Amount, e.Payer)
	s.publish(ctx, amqp.ChangeEqualAdded, e.ID, rev)
	return e, nil
}

func (s *LedgerService) AddItemized(ctx context.Context, e core.ItemizedSplitEntry) (core.ItemizedSplitEntry, error) {
	if err := e.Validate(); err != nil {
		return e, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.Costs == nil {
		e.Costs = []core.ItemizedCost{}
	}

	rev, err := s.store.AddItemized(ctx, e)
	if err != nil {
		return e, fmt.Errorf("save itemized entry: %w", err)
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).
		LogEntryCreated(ctx, "itemized", e.ID, e.Label, e.Amount, e.Payer)
	s.publish(ctx, amqp.ChangeItemizedAdded, e.ID, rev)
	return e, nil
}

func (s *LedgerService) DeleteEqual(ctx context.Context, id string) error {
	rev, err := s.store.DeleteEqual(ctx, id)
	if err != nil {
		return fmt.Errorf("delete equal entry %s: %w", id, err)
	}
	s.publish(ctx, amqp.ChangeEqualDeleted, id, rev)
	return nil
}

func (s *LedgerService) DeleteItemized(ctx context.Context, id string) error {
	rev, err := s.store.DeleteItemized(ctx, id)
	if err != nil {
		return fmt.Errorf("delete itemized entry %s: %w", id, err)
	}
	s.publish(ctx, amqp.ChangeItemizedDeleted, id, rev)
	return nil
}

// AddSharer adds name to an equal-split entry and to the roster.
func (s *LedgerService) AddSharer(ctx context.Context, entryID, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, core.ErrEmptyPerson)
	}
	rev, err := s.store.AddSharer(ctx, entryID, name)
	if err != nil {
		return fmt.Errorf("add sharer to %s: %w", entryID, err)
	}
	s.publish(ctx, amqp.ChangeSharersChanged, entryID, rev)
	return nil
}

func (s *LedgerService) RemoveSharer(ctx context.Context, entryID, name string) error {
	rev, err := s.store.RemoveSharer(ctx, entryID, name)
	if err != nil {
		return fmt.Errorf("remove sharer from %s: %w", entryID, err)
	}
	s.publish(ctx, amqp.ChangeSharersChanged, entryID, rev)
	return nil
}

// Entries returns a consistent copy of both entry lists.
func (s *LedgerService) Entries(ctx context.Context) (store.State, error) {
	st, err := s.store.Snapshot(ctx)
	if err != nil {
		return st, fmt.Errorf("snapshot: %w", err)
	}
	return st, nil
}

func (s *LedgerService) Participants(ctx context.Context) ([]string, error) {
	people, err := s.store.Participants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return people, nil
}

// Report computes the ledger, balances, settlements and summary from one
// snapshot. Reports are cached per store revision.
func (s *LedgerService) Report(ctx context.Context) (core.Report, int64, error) {
	st, err := s.store.Snapshot(ctx)
	if err != nil {
		return core.Report{}, 0, fmt.Errorf("snapshot: %w", err)
	}
	return s.ReportFor(st), st.Revision, nil
}

// ReportFor builds (or reuses) the report for an already loaded snapshot.
func (s *LedgerService) ReportFor(st store.State) core.Report {
	if r, ok := s.reports.Get(st.Revision); ok {
		return r
	}
	r := core.BuildReport(st.Equal, st.Itemized)
	s.reports.Set(st.Revision, r)
	return r
}

// Extract runs the configured extractor over one recording. The returned
// draft is not stored.
func (s *LedgerService) Extract(ctx context.Context, audio extract.Audio, mode extract.Mode) (extract.Draft, error) {
	if s.extractor == nil {
		return extract.Draft{}, ErrExtractorUnavailable
	}
	d, err := s.extractor.Extract(ctx, audio, mode)
	if err != nil {
		applog.NewStructuredLogger(applog.FromContext(ctx)).
			LogError(ctx, "Audio extraction failed", err, applog.OpExtract, applog.NewFields().WithComponent(applog.ComponentExtract))
		return extract.Draft{}, err
	}
	return d, nil
}

func (s *LedgerService) publish(ctx context.Context, kind amqp.ChangeKind, entryID string, rev int64) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not configured, skipping change message", "kind", kind)
		return
	}
	// The entry is already stored; a lost message is repaired by the worker's resync.
	if err := s.publisher.PublishEntriesChanged(ctx, kind, entryID, rev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish entries changed message",
			"kind", kind, "entry_id", entryID, "revision", rev, "error", err)
	}
}

func (s *LedgerService) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}
	return nil
}
