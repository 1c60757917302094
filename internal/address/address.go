// Package address maintains the per-(chain,address) aggregate rollup.
//
// Each aggregate carries exact counters (report_count, total_lost_usd are
// always the sum over that address's reports) plus the current risk score
// and the monotonic has_threat_intel flag. Aggregates are created on the
// first report for an address, or by the threat-intel linker when an
// external feed names an address nobody has reported yet. They are never
// deleted.
package address

import (
	"context"
	"errors"
	"time"

	"github.com/4ndersonLin/scamledger/internal/risk"
	"github.com/4ndersonLin/scamledger/internal/validation"
)

// ErrNotFound is returned when no aggregate exists for a (chain,address).
var ErrNotFound = errors.New("address not found")

// Aggregate is the rollup for one (chain,address) pair.
type Aggregate struct {
	ID              string           `json:"id"`
	Chain           validation.Chain `json:"chain"`
	Address         string           `json:"address"`
	ReportCount     int              `json:"report_count"`
	TotalLostUSD    float64          `json:"total_lost_usd"`
	RiskScore       int              `json:"risk_score"`
	RiskLevel       risk.Level       `json:"risk_level"`
	HasThreatIntel  bool             `json:"has_threat_intel"`
	FirstReportedAt *time.Time       `json:"first_reported_at"`
	LastReportedAt  *time.Time       `json:"last_reported_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Store persists address aggregates.
//
// ApplyReport and EnsureForIntel are the only ways an aggregate comes into
// existence. ApplyReport must bump counters atomically in a single
// statement so concurrent submissions never lose an increment.
type Store interface {
	// ApplyReport creates the aggregate if absent, then atomically applies
	// one report: report_count+1, total_lost_usd+loss, last_reported_at=now.
	// Returns the aggregate as of after the update.
	ApplyReport(ctx context.Context, chain validation.Chain, addr string, lossUSD float64, now time.Time) (*Aggregate, error)

	// EnsureForIntel returns the aggregate for (chain,addr), creating it
	// with zero counters when an external feed names an address nobody has
	// reported yet.
	EnsureForIntel(ctx context.Context, chain validation.Chain, addr string, now time.Time) (*Aggregate, error)

	// Get returns the aggregate or ErrNotFound.
	Get(ctx context.Context, chain validation.Chain, addr string) (*Aggregate, error)

	// MarkThreatIntel sets has_threat_intel. The flag is monotonic and is
	// never cleared.
	MarkThreatIntel(ctx context.Context, id string, now time.Time) error

	// UpdateRiskScore persists a freshly computed score.
	UpdateRiskScore(ctx context.Context, id string, score int, now time.Time) error

	// ListFlagged returns every aggregate with has_threat_intel set.
	ListFlagged(ctx context.Context) ([]*Aggregate, error)

	// ListHighRisk returns up to limit aggregates with a positive score,
	// highest score first.
	ListHighRisk(ctx context.Context, limit int) ([]*Aggregate, error)

	// CountHighRisk counts aggregates scoring at or above minScore.
	CountHighRisk(ctx context.Context, minScore int) (int, error)

	// SumTotalLost returns the total reported losses across all aggregates.
	SumTotalLost(ctx context.Context) (float64, error)
}
