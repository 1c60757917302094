package threatintel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/4ndersonLin/scamledger/internal/address"
	"github.com/4ndersonLin/scamledger/internal/metrics"
	"github.com/4ndersonLin/scamledger/internal/risk"
	"github.com/4ndersonLin/scamledger/internal/traces"
)

// importBatchSize bounds how many records go into one import statement.
const importBatchSize = 50

// recentWindow mirrors the scorer's 7-day frequency signal.
const recentWindow = 7 * 24 * time.Hour

// ReportCounter exposes the report store's recent-count query to the
// rescore sweep without importing the report package.
type ReportCounter interface {
	CountRecentByAggregate(ctx context.Context, aggregateID string, since time.Time) (int, error)
}

// StatsInvalidator drops cached statistics after the sweep so externally
// sourced score changes surface immediately, same as ingestion-driven ones.
type StatsInvalidator interface {
	InvalidateStats(ctx context.Context) error
}

// Engine runs one feed source through a full sync transition:
// fetch -> import -> link -> rescore sweep -> record state.
//
// Runs are at-least-once: a crash mid-import leaves partial data and the
// next run redoes the idempotent work. Errors are recorded in SyncState and
// never propagate to the scheduler.
type Engine struct {
	store       Store
	addresses   address.Store
	reports     ReportCounter
	invalidator StatsInvalidator
	fetchers    map[string]Fetcher
	order       []string
	logger      *slog.Logger
}

// NewEngine creates a sync engine. Feed sources are added with Register.
func NewEngine(store Store, addresses address.Store, reports ReportCounter, invalidator StatsInvalidator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:       store,
		addresses:   addresses,
		reports:     reports,
		invalidator: invalidator,
		fetchers:    make(map[string]Fetcher),
		logger:      logger,
	}
}

// Register adds a feed source. Registering the same source twice replaces
// the earlier fetcher.
func (e *Engine) Register(f Fetcher) {
	name := f.Source()
	if _, exists := e.fetchers[name]; !exists {
		e.order = append(e.order, name)
	}
	e.fetchers[name] = f
}

// Sources returns the registered source names in registration order.
func (e *Engine) Sources() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Run executes one full sync transition for the named source.
// Fire-and-forget: failures are logged and recorded in SyncState, never
// returned.
func (e *Engine) Run(ctx context.Context, source string) {
	ctx, span := traces.StartSpan(ctx, "threatintel.Run", traces.SyncSource(source))
	defer span.End()

	f, ok := e.fetchers[source]
	if !ok {
		e.logger.Error("sync requested for unregistered source", "source", source)
		return
	}

	timer := time.Now()
	imported, etag, err := e.runOnce(ctx, f)
	metrics.SyncRunDuration.WithLabelValues(source).Observe(time.Since(timer).Seconds())

	if err != nil {
		e.logger.Error("threat intel sync failed", "source", source, "error", err)
		metrics.SyncRunsTotal.WithLabelValues(source, "failure").Inc()
		if stateErr := e.store.RecordSyncResult(ctx, source, nil, 0, err); stateErr != nil {
			e.logger.Error("failed to record sync failure", "source", source, "error", stateErr)
		}
		return
	}

	metrics.SyncRunsTotal.WithLabelValues(source, "success").Inc()
	metrics.SyncRecordsImportedTotal.WithLabelValues(source).Add(float64(imported))
	if stateErr := e.store.RecordSyncResult(ctx, source, etag, imported, nil); stateErr != nil {
		e.logger.Error("failed to record sync result", "source", source, "error", stateErr)
	}

	e.logger.Info("threat intel sync completed", "source", source, "imported", imported)
}

// RunAll syncs every registered source, one after another. A failing
// source never blocks the rest.
func (e *Engine) RunAll(ctx context.Context) {
	for _, source := range e.order {
		e.Run(ctx, source)
	}
}

func (e *Engine) runOnce(ctx context.Context, f Fetcher) (imported int, etag *string, err error) {
	state, err := e.store.GetSyncState(ctx, f.Source())
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load sync state: %w", err)
	}

	result, err := f.Fetch(ctx, state)
	if err != nil {
		return 0, nil, fmt.Errorf("fetch failed: %w", err)
	}
	if result.NewETag != "" {
		etag = &result.NewETag
	}

	imported, err = e.importRecords(ctx, result.Records)
	if err != nil {
		return 0, etag, fmt.Errorf("import failed: %w", err)
	}

	// Link and sweep run even for a zero-record import: earlier runs may
	// have left unlinked records, and reports that arrived since the last
	// run must still re-trigger the sanction path.
	if err := e.link(ctx); err != nil {
		return imported, etag, fmt.Errorf("link failed: %w", err)
	}
	if err := e.sweep(ctx); err != nil {
		return imported, etag, fmt.Errorf("rescore sweep failed: %w", err)
	}

	if e.invalidator != nil {
		if err := e.invalidator.InvalidateStats(ctx); err != nil {
			e.logger.Warn("stats cache invalidation failed after sync", "error", err)
		}
	}
	return imported, etag, nil
}

// importRecords submits fixed-size batches sequentially. The insert-or-
// ignore keyed on the natural key makes re-imports free: only rows actually
// inserted count.
func (e *Engine) importRecords(ctx context.Context, records []*Record) (int, error) {
	imported := 0
	for start := 0; start < len(records); start += importBatchSize {
		end := start + importBatchSize
		if end > len(records) {
			end = len(records)
		}
		n, err := e.store.ImportBatch(ctx, records[start:end])
		if err != nil {
			return imported, err
		}
		imported += n
	}
	return imported, nil
}

// link resolves unlinked records to their aggregates, creating aggregates
// with zero counters for addresses no one has reported yet, and sets the
// monotonic has_threat_intel flag.
func (e *Engine) link(ctx context.Context) error {
	unlinked, err := e.store.Unlinked(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, record := range unlinked {
		agg, err := e.addresses.EnsureForIntel(ctx, record.Chain, record.Address, now)
		if err != nil {
			return err
		}
		if err := e.store.SetAggregateID(ctx, record.ID, agg.ID); err != nil {
			return err
		}
		if err := e.addresses.MarkThreatIntel(ctx, agg.ID, now); err != nil {
			return err
		}
	}
	return nil
}

// sweep recomputes the score of every flagged aggregate, not only newly
// linked ones: a report that arrived on an already-sanctioned address since
// the last run must re-trigger the sanction path, and the scorer is cheap.
func (e *Engine) sweep(ctx context.Context) error {
	flagged, err := e.addresses.ListFlagged(ctx)
	if err != nil {
		return err
	}
	metrics.FlaggedAddresses.Set(float64(len(flagged)))

	now := time.Now().UTC()
	for _, agg := range flagged {
		recent := 0
		if e.reports != nil {
			recent, err = e.reports.CountRecentByAggregate(ctx, agg.ID, now.Add(-recentWindow))
			if err != nil {
				return err
			}
		}

		count, sanctioned, err := e.store.SignalsFor(ctx, agg.ID)
		if err != nil {
			return err
		}

		score := risk.ScoreAt(risk.Inputs{
			ReportCount:          agg.ReportCount,
			RecentReportCount7d:  recent,
			TotalLostUSD:         agg.TotalLostUSD,
			LastReportedAt:       agg.LastReportedAt,
			ThreatIntelCount:     count,
			HasConfirmedSanction: sanctioned,
		}, now)

		if err := e.addresses.UpdateRiskScore(ctx, agg.ID, score, now); err != nil {
			return err
		}
	}
	return nil
}
