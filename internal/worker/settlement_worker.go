package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"billbuddy/internal/amqp"
	"billbuddy/internal/core"

	"golang.org/x/sync/errgroup"
)

// ReportSource yields the settlement report for the current store revision.
type ReportSource interface {
	Report(ctx context.Context) (core.Report, int64, error)
}

// ReportExporter publishes a report somewhere outside the service.
type ReportExporter interface {
	Export(ctx context.Context, report core.Report, revision int64) error
}

// Consumer delivers change notifications.
type Consumer interface {
	ConsumeEntriesChanged(ctx context.Context, handler func(context.Context, *amqp.EntriesChangedMessage) error) error
}

// SettlementWorker recomputes the settlement report whenever entries change
// and hands it to an exporter. Each revision is exported at most once.
type SettlementWorker struct {
	source   ReportSource
	exporter ReportExporter
	interval time.Duration

	mu       sync.Mutex
	exported int64
}

func NewSettlementWorker(source ReportSource, exporter ReportExporter, resyncInterval time.Duration) *SettlementWorker {
	return &SettlementWorker{
		source:   source,
		exporter: exporter,
		interval: resyncInterval,
		exported: -1,
	}
}

// LastExported returns the last exported revision, or -1.
func (w *SettlementWorker) LastExported() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exported
}

// HandleEntriesChanged processes a single change message from AMQP.
func (w *SettlementWorker) HandleEntriesChanged(ctx context.Context, msg *amqp.EntriesChangedMessage) error {
	if msg.Revision <= w.LastExported() {
		slog.DebugContext(ctx, "Skipping already exported revision",
			"kind", msg.Kind,
			"revision", msg.Revision)
		return nil
	}
	return w.Sync(ctx)
}

// Sync exports the report for the current revision unless it was already
// exported.
func (w *SettlementWorker) Sync(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	report, rev, err := w.source.Report(ctx)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	if rev <= w.exported {
		return nil
	}

	start := time.Now()
	if err := w.exporter.Export(ctx, report, rev); err != nil {
		return fmt.Errorf("export revision %d: %w", rev, err)
	}
	w.exported = rev

	slog.InfoContext(ctx, "Exported settlement report",
		"revision", rev,
		"people", report.Ledger.Len(),
		"settlements", len(report.Settlements),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Run performs a startup sync, then consumes change messages and resyncs
// periodically until ctx is cancelled. consumer may be nil, in which case
// only the periodic resync runs.
func (w *SettlementWorker) Run(ctx context.Context, consumer Consumer) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := w.Sync(ctx); err != nil {
			slog.ErrorContext(ctx, "Startup sync failed", "error", err)
		}

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := w.Sync(ctx); err != nil {
					slog.ErrorContext(ctx, "Periodic resync failed", "error", err)
				}
			}
		}
	})

	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeEntriesChanged(ctx, w.HandleEntriesChanged)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// LogExporter writes the report to the log. It is used when no spreadsheet
// is configured.
type LogExporter struct {
	Logger *slog.Logger
}

func (e LogExporter) Export(ctx context.Context, report core.Report, revision int64) error {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, s := range report.Settlements {
		logger.InfoContext(ctx, "Settlement",
			"revision", revision,
			"from", s.From,
			"to", s.To,
			"amount", core.FormatAmount(s.Amount))
	}
	logger.InfoContext(ctx, "Report summary",
		"revision", revision,
		"total", core.FormatAmount(report.Summary.TotalAmount),
		"entries", report.Summary.EntryCount,
		"participants", report.Summary.ParticipantCount)
	return nil
}
