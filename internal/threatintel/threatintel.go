// Package threatintel synchronizes external sanction and denylist feeds
// into the address ledger.
//
// Each feed source implements the Fetcher interface and is registered with
// the Engine. One sync run fetches incrementally (ETag-conditional),
// normalizes entries into a common record shape, imports them idempotently,
// links records to address aggregates, and re-scores every flagged
// aggregate. Records are insert-only, deduplicated by their natural key
// (source, chain, address, external_id); re-importing the same feed never
// double-counts.
package threatintel

import (
	"context"
	"time"

	"github.com/4ndersonLin/scamledger/internal/validation"
)

// Confidence grades an external record.
type Confidence string

const (
	ConfidenceTentative Confidence = "tentative"
	ConfidenceConfirmed Confidence = "confirmed"
)

// Categories that denote an official sanctions listing. A confirmed record
// in one of these categories triggers the scorer's sanction path. Both
// stores consult this list; a new sanction source only adds a row here.
var sanctionCategories = []string{"OFAC_SDN"}

func isSanctionCategory(category string) bool {
	for _, c := range sanctionCategories {
		if c == category {
			return true
		}
	}
	return false
}

// Record is one normalized external threat-intel entry.
type Record struct {
	ID          string           `json:"id"`
	Source      string           `json:"source"`
	Chain       validation.Chain `json:"chain"`
	Address     string           `json:"address"`
	ExternalID  string           `json:"external_id"`
	Category    string           `json:"category"`
	Description string           `json:"description"`
	Confidence  Confidence       `json:"confidence"`
	AggregateID *string          `json:"-"` // resolved lazily by the linker
	FetchedAt   time.Time        `json:"fetched_at"`
}

// IsConfirmedSanction reports whether this record denotes an official
// sanctions listing with confirmed confidence.
func (r *Record) IsConfirmedSanction() bool {
	return r.Confidence == ConfidenceConfirmed && isSanctionCategory(r.Category)
}

// SyncState is the persisted bookkeeping for one feed source.
type SyncState struct {
	Source          string     `json:"source"`
	LastSyncAt      *time.Time `json:"last_sync_at"`
	LastCursor      *string    `json:"last_cursor"`
	LastETag        *string    `json:"last_etag"`
	RecordsImported int        `json:"records_imported"` // cumulative across runs
	LastError       *string    `json:"last_error"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Store persists threat-intel records and per-source sync state.
type Store interface {
	// ImportBatch inserts records, silently ignoring natural-key
	// duplicates. Returns the number of rows actually inserted. Records
	// arrive without IDs; the store assigns them.
	ImportBatch(ctx context.Context, records []*Record) (int, error)

	// Unlinked returns records whose aggregate link has not been resolved.
	Unlinked(ctx context.Context) ([]*Record, error)

	// SetAggregateID resolves one record's aggregate link.
	SetAggregateID(ctx context.Context, recordID, aggregateID string) error

	// SignalsFor returns the scorer inputs derived from an aggregate's
	// linked records: total count and whether any is a confirmed sanction.
	SignalsFor(ctx context.Context, aggregateID string) (count int, confirmedSanction bool, err error)

	// GetByAddress returns the records for a (chain,address), newest first.
	GetByAddress(ctx context.Context, chain validation.Chain, addr string) ([]*Record, error)

	// GetSyncState returns the state for a source, or nil when the source
	// has never synced.
	GetSyncState(ctx context.Context, source string) (*SyncState, error)

	// RecordSyncResult read-modify-writes the source's state after a run,
	// success or failure: stamps last_sync_at, keeps the newest ETag,
	// accumulates records_imported, and stores or clears last_error.
	RecordSyncResult(ctx context.Context, source string, etag *string, imported int, runErr error) error
}
