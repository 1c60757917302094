//go:build integration

package address

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4ndersonLin/scamledger/internal/testutil"
	"github.com/4ndersonLin/scamledger/internal/validation"
)

const pgAddr = "0x1234567890abcdef1234567890abcdef12345678"

func TestPostgresApplyReport(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	agg, err := store.ApplyReport(ctx, validation.ChainETH, pgAddr, 100, now)
	require.NoError(t, err)
	assert.Equal(t, 1, agg.ReportCount)
	assert.Equal(t, 100.0, agg.TotalLostUSD)
	require.NotNil(t, agg.FirstReportedAt)

	later := now.Add(time.Hour)
	agg2, err := store.ApplyReport(ctx, validation.ChainETH, pgAddr, 50, later)
	require.NoError(t, err)
	assert.Equal(t, agg.ID, agg2.ID)
	assert.Equal(t, 2, agg2.ReportCount)
	assert.Equal(t, 150.0, agg2.TotalLostUSD)
	assert.Equal(t, agg.FirstReportedAt.Unix(), agg2.FirstReportedAt.Unix(),
		"first_reported_at never moves")
}

func TestPostgresApplyReportConcurrent(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ApplyReport(ctx, validation.ChainETH, pgAddr, 10, time.Now().UTC())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	agg, err := store.Get(ctx, validation.ChainETH, pgAddr)
	require.NoError(t, err)
	assert.Equal(t, workers, agg.ReportCount, "no increment may be lost")
	assert.Equal(t, float64(workers*10), agg.TotalLostUSD)
}

func TestPostgresEnsureForIntel(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	agg, err := store.EnsureForIntel(ctx, validation.ChainBTC, "bc1qsanctioned", now)
	require.NoError(t, err)
	assert.Equal(t, 0, agg.ReportCount)
	assert.Nil(t, agg.FirstReportedAt)

	// Ensure on an existing aggregate returns it untouched.
	reported, err := store.ApplyReport(ctx, validation.ChainETH, pgAddr, 100, now)
	require.NoError(t, err)
	same, err := store.EnsureForIntel(ctx, validation.ChainETH, pgAddr, now)
	require.NoError(t, err)
	assert.Equal(t, reported.ID, same.ID)
	assert.Equal(t, 1, same.ReportCount)
}

func TestPostgresMarkThreatIntelMonotonic(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	agg, err := store.EnsureForIntel(ctx, validation.ChainETH, pgAddr, now)
	require.NoError(t, err)

	require.NoError(t, store.MarkThreatIntel(ctx, agg.ID, now))
	require.NoError(t, store.MarkThreatIntel(ctx, agg.ID, now), "re-flagging is a no-op")

	got, err := store.Get(ctx, validation.ChainETH, pgAddr)
	require.NoError(t, err)
	assert.True(t, got.HasThreatIntel)

	flagged, err := store.ListFlagged(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
}

func TestPostgresHighRisk(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	low, err := store.ApplyReport(ctx, validation.ChainETH, pgAddr, 0, now)
	require.NoError(t, err)
	high, err := store.ApplyReport(ctx, validation.ChainBTC, "bc1qworse", 0, now)
	require.NoError(t, err)

	require.NoError(t, store.UpdateRiskScore(ctx, low.ID, 30, now))
	require.NoError(t, store.UpdateRiskScore(ctx, high.ID, 90, now))

	list, err := store.ListHighRisk(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, high.ID, list[0].ID)

	count, err := store.CountHighRisk(ctx, 76)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.Error(t, store.UpdateRiskScore(ctx, "addr_missing", 10, now))
}
