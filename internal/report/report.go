// Package report implements the ingestion pipeline for scam reports.
//
// A submission is validated, checked against the 24h per-reporter dedup
// window, folded into the address aggregate, and triggers a wholesale risk
// rescore. Reports are append-only: once written they are never mutated or
// deleted. Reporter-identifying data never leaves this package: only the
// salted fingerprint is stored, and public projections strip even that.
package report

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/4ndersonLin/scamledger/internal/validation"
)

// Source records which surface a report arrived through.
type Source string

const (
	SourceWeb Source = "web"
	SourceAPI Source = "api"
)

// DedupWindow is the sliding window within which one reporter may submit
// at most one report per (chain,address).
const DedupWindow = 24 * time.Hour

// RecentWindow is the lookback used for the scorer's frequency signal.
const RecentWindow = 7 * 24 * time.Hour

// ErrDuplicateReport is returned when the same reporter re-submits an
// address within the dedup window.
var ErrDuplicateReport = errors.New("a report for this address was already submitted by this reporter in the last 24 hours")

// ValidationErrors carries every violation found in a submission. All
// checks run before any persistence; the caller gets the full list at once.
type ValidationErrors struct {
	Violations []string
}

func (e *ValidationErrors) Error() string {
	if len(e.Violations) == 0 {
		return "invalid report input"
	}
	return "invalid report input: " + strings.Join(e.Violations, "; ")
}

// Input is a report submission before validation.
type Input struct {
	Chain        string   `json:"chain"`
	Address      string   `json:"address"`
	ScamType     string   `json:"scam_type"`
	Description  string   `json:"description"`
	LossAmount   *float64 `json:"loss_amount"`
	LossCurrency *string  `json:"loss_currency"`
	EvidenceURL  *string  `json:"evidence_url"`
	TxHash       *string  `json:"tx_hash"`
}

// Report is the stored, immutable record of one submission.
type Report struct {
	ID           string           `json:"id"`
	AggregateID  string           `json:"aggregate_id"`
	Chain        validation.Chain `json:"chain"`
	Address      string           `json:"address"`
	ScamType     string           `json:"scam_type"`
	Description  string           `json:"description"`
	LossAmount   *float64         `json:"loss_amount"`
	LossCurrency *string          `json:"loss_currency"`
	EvidenceURL  *string          `json:"evidence_url"`
	TxHash       *string          `json:"tx_hash"`
	Fingerprint  string           `json:"-"`
	UserAgent    string           `json:"-"`
	Source       Source           `json:"source"`
	APIKeyID     *string          `json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Public is the outward projection of a Report with every
// reporter-identifying field stripped.
type Public struct {
	ID           string           `json:"id"`
	Chain        validation.Chain `json:"chain"`
	Address      string           `json:"address"`
	ScamType     string           `json:"scam_type"`
	Description  string           `json:"description"`
	LossAmount   *float64         `json:"loss_amount"`
	LossCurrency *string          `json:"loss_currency"`
	EvidenceURL  *string          `json:"evidence_url"`
	TxHash       *string          `json:"tx_hash"`
	Source       Source           `json:"source"`
	CreatedAt    time.Time        `json:"created_at"`
}

// ToPublic strips reporter-identifying fields.
func (r *Report) ToPublic() *Public {
	return &Public{
		ID:           r.ID,
		Chain:        r.Chain,
		Address:      r.Address,
		ScamType:     r.ScamType,
		Description:  r.Description,
		LossAmount:   r.LossAmount,
		LossCurrency: r.LossCurrency,
		EvidenceURL:  r.EvidenceURL,
		TxHash:       r.TxHash,
		Source:       r.Source,
		CreatedAt:    r.CreatedAt,
	}
}

// Store persists reports. Reports are insert-only.
type Store interface {
	// Insert writes one immutable report.
	Insert(ctx context.Context, r *Report) error

	// HasRecentByFingerprint reports whether any of the fingerprints
	// submitted a report for (chain,addr) since the given time. Read-only.
	HasRecentByFingerprint(ctx context.Context, fingerprints []string, chain validation.Chain, addr string, since time.Time) (bool, error)

	// CountRecentByAggregate counts reports for an aggregate created at or
	// after since. Feeds the scorer's frequency signal.
	CountRecentByAggregate(ctx context.Context, aggregateID string, since time.Time) (int, error)

	// ListByAggregate returns an aggregate's reports, newest first.
	ListByAggregate(ctx context.Context, aggregateID string) ([]*Report, error)

	// ListRecent returns the newest reports across all addresses.
	ListRecent(ctx context.Context, limit int) ([]*Report, error)

	// CountAll counts every report.
	CountAll(ctx context.Context) (int, error)

	// CountSince counts reports created at or after since.
	CountSince(ctx context.Context, since time.Time) (int, error)

	// CountByDay buckets report counts per UTC day, oldest first, for the
	// last days days.
	CountByDay(ctx context.Context, days int) (map[string]int, error)

	// CountByChain and CountByScamType aggregate counts per dimension.
	CountByChain(ctx context.Context) (map[string]int, error)
	CountByScamType(ctx context.Context) (map[string]int, error)
}
