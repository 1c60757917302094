//go:build integration

package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4ndersonLin/scamledger/internal/address"
	"github.com/4ndersonLin/scamledger/internal/testutil"
	"github.com/4ndersonLin/scamledger/internal/validation"
)

func insertTestReport(t *testing.T, store *PostgresStore, aggID, fingerprint string, at time.Time) {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(), &Report{
		ID:          "rpt_" + fingerprint + at.Format("150405.000000000"),
		AggregateID: aggID,
		Chain:       validation.ChainETH,
		Address:     ethAddr,
		ScamType:    "phishing",
		Description: "integration seed",
		Fingerprint: fingerprint,
		Source:      SourceWeb,
		CreatedAt:   at,
	}))
}

func TestPostgresDedupWindow(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	addresses := address.NewPostgresStore(db)
	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	agg, err := addresses.ApplyReport(ctx, validation.ChainETH, ethAddr, 0, now)
	require.NoError(t, err)

	insertTestReport(t, store, agg.ID, "fp-a", now.Add(-2*time.Hour))
	insertTestReport(t, store, agg.ID, "fp-old", now.Add(-25*time.Hour))

	since := now.Add(-DedupWindow)

	dup, err := store.HasRecentByFingerprint(ctx, []string{"fp-a", "fp-b"}, validation.ChainETH, ethAddr, since)
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = store.HasRecentByFingerprint(ctx, []string{"fp-old"}, validation.ChainETH, ethAddr, since)
	require.NoError(t, err)
	assert.False(t, dup, "reports older than the window never match")

	dup, err = store.HasRecentByFingerprint(ctx, []string{"fp-a"}, validation.ChainBTC, "bc1qother", since)
	require.NoError(t, err)
	assert.False(t, dup, "dedup is scoped to one (chain,address)")
}

func TestPostgresCounts(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	addresses := address.NewPostgresStore(db)
	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	agg, err := addresses.ApplyReport(ctx, validation.ChainETH, ethAddr, 0, now)
	require.NoError(t, err)

	insertTestReport(t, store, agg.ID, "fp-1", now)
	insertTestReport(t, store, agg.ID, "fp-2", now.Add(-time.Hour))
	insertTestReport(t, store, agg.ID, "fp-3", now.AddDate(0, 0, -10))

	total, err := store.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	recent, err := store.CountRecentByAggregate(ctx, agg.ID, now.Add(-RecentWindow))
	require.NoError(t, err)
	assert.Equal(t, 2, recent)

	weekly, err := store.CountSince(ctx, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, 2, weekly)

	byChain, err := store.CountByChain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, byChain["ETH"])

	byDay, err := store.CountByDay(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, byDay[now.Format("2006-01-02")]+byDay[now.Add(-time.Hour).Format("2006-01-02")])

	listed, err := store.ListByAggregate(ctx, agg.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.True(t, listed[0].CreatedAt.After(listed[1].CreatedAt), "newest first")

	top, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
}
