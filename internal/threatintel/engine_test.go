package threatintel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4ndersonLin/scamledger/internal/address"
	"github.com/4ndersonLin/scamledger/internal/validation"
)

// stubFetcher replays canned batches, one per Fetch call.
type stubFetcher struct {
	source  string
	batches [][]*Record
	etags   []string
	err     error
	calls   int
	states  []*SyncState
}

func (f *stubFetcher) Source() string { return f.source }

func (f *stubFetcher) Fetch(ctx context.Context, state *SyncState) (*FetchResult, error) {
	f.states = append(f.states, state)
	if f.err != nil {
		return nil, f.err
	}
	result := &FetchResult{}
	if f.calls < len(f.batches) {
		result.Records = f.batches[f.calls]
	}
	if f.calls < len(f.etags) {
		result.NewETag = f.etags[f.calls]
	}
	f.calls++
	return result, nil
}

type stubCounter struct{ counts map[string]int }

func (c *stubCounter) CountRecentByAggregate(ctx context.Context, aggregateID string, since time.Time) (int, error) {
	return c.counts[aggregateID], nil
}

type stubInvalidator struct{ calls int }

func (i *stubInvalidator) InvalidateStats(ctx context.Context) error {
	i.calls++
	return nil
}

func sanctionRecord(chain validation.Chain, addr, externalID string) *Record {
	return &Record{
		Source:     SourceOFAC,
		Chain:      chain,
		Address:    addr,
		ExternalID: externalID,
		Category:   "OFAC_SDN",
		Confidence: ConfidenceConfirmed,
	}
}

func TestRunFlagsUnreportedSanctionedAddress(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	addresses := address.NewMemoryStore()
	invalidator := &stubInvalidator{}

	fetcher := &stubFetcher{
		source:  SourceOFAC,
		batches: [][]*Record{{sanctionRecord(validation.ChainETH, "0xsanctioned", "OFAC-1")}},
		etags:   []string{`"v1"`},
	}

	engine := NewEngine(store, addresses, &stubCounter{}, invalidator, nil)
	engine.Register(fetcher)
	engine.Run(ctx, SourceOFAC)

	// Nobody reported this address, yet it must now exist, flagged, with
	// the sanction floor score and untouched report counters.
	agg, err := addresses.Get(ctx, validation.ChainETH, "0xsanctioned")
	require.NoError(t, err)
	assert.True(t, agg.HasThreatIntel)
	assert.Equal(t, 40, agg.RiskScore)
	assert.Equal(t, 0, agg.ReportCount)
	assert.Nil(t, agg.FirstReportedAt)

	assert.Equal(t, 1, invalidator.calls)

	state, err := store.GetSyncState(ctx, SourceOFAC)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 1, state.RecordsImported)
	require.NotNil(t, state.LastETag)
	assert.Equal(t, `"v1"`, *state.LastETag)
	assert.Nil(t, state.LastError)
}

func TestRunRescoresReportedAddressOnSanction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	addresses := address.NewMemoryStore()

	now := time.Now().UTC()
	agg, err := addresses.ApplyReport(ctx, validation.ChainETH, "0xreported", 50000, now)
	require.NoError(t, err)
	agg, err = addresses.ApplyReport(ctx, validation.ChainETH, "0xreported", 0, now)
	require.NoError(t, err)

	fetcher := &stubFetcher{
		source:  SourceOFAC,
		batches: [][]*Record{{sanctionRecord(validation.ChainETH, "0xreported", "OFAC-2")}},
	}

	counter := &stubCounter{counts: map[string]int{agg.ID: 2}}
	engine := NewEngine(store, addresses, counter, &stubInvalidator{}, nil)
	engine.Register(fetcher)
	engine.Run(ctx, SourceOFAC)

	// 2 reports (30) + $50k lost (10) + report within 24h (10) + sanction (40).
	got, err := addresses.Get(ctx, validation.ChainETH, "0xreported")
	require.NoError(t, err)
	assert.True(t, got.HasThreatIntel)
	assert.Equal(t, 90, got.RiskScore)
	assert.Equal(t, 2, got.ReportCount)
}

func TestRunReimportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	addresses := address.NewMemoryStore()

	same := []*Record{
		sanctionRecord(validation.ChainETH, "0xsame", "OFAC-3"),
		sanctionRecord(validation.ChainBTC, "bc1qsame", "OFAC-4"),
	}
	fetcher := &stubFetcher{
		source:  SourceOFAC,
		batches: [][]*Record{same, same},
	}

	engine := NewEngine(store, addresses, &stubCounter{}, &stubInvalidator{}, nil)
	engine.Register(fetcher)
	engine.Run(ctx, SourceOFAC)
	engine.Run(ctx, SourceOFAC)

	state, err := store.GetSyncState(ctx, SourceOFAC)
	require.NoError(t, err)
	assert.Equal(t, 2, state.RecordsImported, "second run inserts nothing new")

	count, sanctioned, err := store.SignalsFor(ctx, mustAggregateID(t, addresses, validation.ChainETH, "0xsame"))
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-import must not double-count records")
	assert.True(t, sanctioned)
}

func TestRunRecordsFetchFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	addresses := address.NewMemoryStore()
	invalidator := &stubInvalidator{}

	fetcher := &stubFetcher{source: SourceOFAC, err: errors.New("feed unreachable")}
	engine := NewEngine(store, addresses, &stubCounter{}, invalidator, nil)
	engine.Register(fetcher)
	engine.Run(ctx, SourceOFAC)

	state, err := store.GetSyncState(ctx, SourceOFAC)
	require.NoError(t, err)
	require.NotNil(t, state)
	require.NotNil(t, state.LastError)
	assert.Contains(t, *state.LastError, "feed unreachable")
	assert.Equal(t, 0, state.RecordsImported)
	assert.NotNil(t, state.LastSyncAt)
	assert.Equal(t, 0, invalidator.calls, "no invalidation on a failed run")

	// A later successful run clears the recorded error.
	fetcher.err = nil
	engine.Run(ctx, SourceOFAC)
	state, err = store.GetSyncState(ctx, SourceOFAC)
	require.NoError(t, err)
	assert.Nil(t, state.LastError)
}

func TestRunPassesPreviousStateToFetcher(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	addresses := address.NewMemoryStore()

	fetcher := &stubFetcher{source: SourceOFAC, etags: []string{`"v1"`, `"v2"`}}
	engine := NewEngine(store, addresses, &stubCounter{}, &stubInvalidator{}, nil)
	engine.Register(fetcher)

	engine.Run(ctx, SourceOFAC)
	engine.Run(ctx, SourceOFAC)

	require.Len(t, fetcher.states, 2)
	assert.Nil(t, fetcher.states[0], "first run has no prior state")
	require.NotNil(t, fetcher.states[1])
	require.NotNil(t, fetcher.states[1].LastETag)
	assert.Equal(t, `"v1"`, *fetcher.states[1].LastETag)
}

func TestRunAllSyncsEverySourceInOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	addresses := address.NewMemoryStore()

	first := &stubFetcher{source: "feed_a", err: errors.New("down")}
	second := &stubFetcher{
		source:  "feed_b",
		batches: [][]*Record{{sanctionRecord(validation.ChainETH, "0xfeedb", "B-1")}},
	}

	engine := NewEngine(store, addresses, &stubCounter{}, &stubInvalidator{}, nil)
	engine.Register(first)
	engine.Register(second)
	require.Equal(t, []string{"feed_a", "feed_b"}, engine.Sources())

	engine.RunAll(ctx)

	// feed_a failing must not keep feed_b from syncing.
	assert.Equal(t, 1, second.calls)
	state, err := store.GetSyncState(ctx, "feed_b")
	require.NoError(t, err)
	assert.Equal(t, 1, state.RecordsImported)
}

func TestImportSplitsOverBatchSize(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	addresses := address.NewMemoryStore()

	records := make([]*Record, 0, importBatchSize+7)
	for i := 0; i < importBatchSize+7; i++ {
		records = append(records, &Record{
			Source:     SourceOFAC,
			Chain:      validation.ChainETH,
			Address:    "0xbulk",
			ExternalID: string(rune('a'+i%26)) + string(rune('0'+i/26)),
			Category:   "OFAC_SDN",
			Confidence: ConfidenceConfirmed,
		})
	}
	fetcher := &stubFetcher{source: SourceOFAC, batches: [][]*Record{records}}

	engine := NewEngine(store, addresses, &stubCounter{}, &stubInvalidator{}, nil)
	engine.Register(fetcher)
	engine.Run(ctx, SourceOFAC)

	state, err := store.GetSyncState(ctx, SourceOFAC)
	require.NoError(t, err)
	assert.Equal(t, importBatchSize+7, state.RecordsImported)
}

func mustAggregateID(t *testing.T, addresses address.Store, chain validation.Chain, addr string) string {
	t.Helper()
	agg, err := addresses.Get(context.Background(), chain, addr)
	require.NoError(t, err)
	return agg.ID
}
