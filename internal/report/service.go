package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/4ndersonLin/scamledger/internal/address"
	"github.com/4ndersonLin/scamledger/internal/idgen"
	"github.com/4ndersonLin/scamledger/internal/metrics"
	"github.com/4ndersonLin/scamledger/internal/risk"
	"github.com/4ndersonLin/scamledger/internal/traces"
	"github.com/4ndersonLin/scamledger/internal/validation"
)

// IntelSource exposes an aggregate's threat-intel signals to the rescore
// step. Satisfied by the threatintel stores.
type IntelSource interface {
	SignalsFor(ctx context.Context, aggregateID string) (count int, confirmedSanction bool, err error)
}

// StatsInvalidator drops cached statistics after a score-affecting write.
// Satisfied by stats.Invalidator; shared with the sync engine so both
// pipelines surface immediately.
type StatsInvalidator interface {
	InvalidateStats(ctx context.Context) error
}

// Service is the ingestion gateway: validate, dedup, persist, rescore,
// invalidate.
type Service struct {
	reports     Store
	addresses   address.Store
	intel       IntelSource
	invalidator StatsInvalidator
	logger      *slog.Logger
}

// NewService wires the ingestion gateway. intel and invalidator may be nil
// in tests; the corresponding steps are skipped.
func NewService(reports Store, addresses address.Store, intel IntelSource, invalidator StatsInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		reports:     reports,
		addresses:   addresses,
		intel:       intel,
		invalidator: invalidator,
		logger:      logger,
	}
}

// Submit runs one report through the full ingestion pipeline and returns
// the stored report with reporter-identifying fields stripped.
//
// Returns *ValidationErrors with every violation collected, or
// ErrDuplicateReport when the reporter already submitted this address
// within the last 24 hours. All validation happens before any persistence;
// a failure after persistence starts is logged, not rolled back.
func (s *Service) Submit(ctx context.Context, in *Input, reporterID, userAgent string, source Source, apiKeyID string) (*Public, error) {
	ctx, span := traces.StartSpan(ctx, "report.Submit",
		traces.Chain(in.Chain), traces.ReportSource(string(source)))
	defer span.End()

	in.Description = validation.SanitizeString(in.Description)
	in.Address = validation.SanitizeAddress(validation.Chain(in.Chain), in.Address)

	if verr := ValidateInput(in); verr != nil {
		metrics.ReportsTotal.WithLabelValues("invalid").Inc()
		return nil, verr
	}

	chain := validation.Chain(in.Chain)
	now := time.Now().UTC()

	// Dedup guard: read-only, nothing is mutated on the duplicate path.
	fingerprints := DedupFingerprints(reporterID, now)
	dup, err := s.reports.HasRecentByFingerprint(ctx, fingerprints, chain, in.Address, now.Add(-DedupWindow))
	if err != nil {
		return nil, fmt.Errorf("dedup check failed: %w", err)
	}
	if dup {
		metrics.ReportsTotal.WithLabelValues("duplicate").Inc()
		return nil, ErrDuplicateReport
	}

	loss := 0.0
	if in.LossAmount != nil {
		loss = *in.LossAmount
	}

	agg, err := s.addresses.ApplyReport(ctx, chain, in.Address, loss, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update aggregate: %w", err)
	}

	rpt := &Report{
		ID:           idgen.WithPrefix("rpt_"),
		AggregateID:  agg.ID,
		Chain:        chain,
		Address:      in.Address,
		ScamType:     in.ScamType,
		Description:  in.Description,
		LossAmount:   in.LossAmount,
		LossCurrency: in.LossCurrency,
		EvidenceURL:  in.EvidenceURL,
		TxHash:       in.TxHash,
		Fingerprint:  fingerprints[0],
		UserAgent:    userAgent,
		Source:       source,
		CreatedAt:    now,
	}
	if apiKeyID != "" {
		rpt.APIKeyID = &apiKeyID
	}

	if err := s.reports.Insert(ctx, rpt); err != nil {
		// The aggregate bump already landed; see the error handling notes
		// in the package doc. Logged and surfaced, not compensated.
		s.logger.Error("report insert failed after aggregate update",
			"chain", chain, "aggregate_id", agg.ID, "error", err)
		return nil, fmt.Errorf("failed to insert report: %w", err)
	}

	if err := s.rescore(ctx, agg, now); err != nil {
		s.logger.Warn("risk rescore failed", "aggregate_id", agg.ID, "error", err)
	}

	if s.invalidator != nil {
		if err := s.invalidator.InvalidateStats(ctx); err != nil {
			s.logger.Warn("stats cache invalidation failed", "error", err)
		}
	}

	metrics.ReportsTotal.WithLabelValues("accepted").Inc()
	return rpt.ToPublic(), nil
}

// rescore recomputes the aggregate's risk score wholesale from its current
// signals. Never patched incrementally; the scorer has no memory.
func (s *Service) rescore(ctx context.Context, agg *address.Aggregate, now time.Time) error {
	recent, err := s.reports.CountRecentByAggregate(ctx, agg.ID, now.Add(-RecentWindow))
	if err != nil {
		return fmt.Errorf("failed to count recent reports: %w", err)
	}

	var intelCount int
	var sanctioned bool
	if s.intel != nil {
		intelCount, sanctioned, err = s.intel.SignalsFor(ctx, agg.ID)
		if err != nil {
			return fmt.Errorf("failed to load intel signals: %w", err)
		}
	}

	score := risk.ScoreAt(risk.Inputs{
		ReportCount:          agg.ReportCount,
		RecentReportCount7d:  recent,
		TotalLostUSD:         agg.TotalLostUSD,
		LastReportedAt:       agg.LastReportedAt,
		ThreatIntelCount:     intelCount,
		HasConfirmedSanction: sanctioned,
	}, now)

	return s.addresses.UpdateRiskScore(ctx, agg.ID, score, now)
}

// GetRecent returns the newest public reports across all addresses.
func (s *Service) GetRecent(ctx context.Context, limit int) ([]*Public, error) {
	reports, err := s.reports.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent reports: %w", err)
	}
	public := make([]*Public, 0, len(reports))
	for _, r := range reports {
		public = append(public, r.ToPublic())
	}
	return public, nil
}
