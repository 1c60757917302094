package threatintel

import "context"

// FetchResult is the outcome of one incremental fetch across a source's
// sub-feeds.
type FetchResult struct {
	// Records are normalized entries ready for import. Empty when every
	// sub-feed answered 304.
	Records []*Record
	// NewETag is the most recent ETag seen across sub-feeds, carried into
	// the next run's conditional requests. Empty means keep the old one.
	NewETag string
}

// Fetcher is the capability a feed source must provide. New sources plug in
// by implementing this and registering with the engine; the engine itself
// never branches on source names.
type Fetcher interface {
	// Source names the feed; it keys SyncState and the record natural key.
	Source() string

	// Fetch retrieves and normalizes new entries. state carries the
	// previous run's ETag/cursor and may be nil on the first run.
	// Sub-feed failures are handled inside Fetch (skip, keep going);
	// only a whole-run failure returns an error.
	Fetch(ctx context.Context, state *SyncState) (*FetchResult, error)
}
