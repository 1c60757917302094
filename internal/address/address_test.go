package address

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/4ndersonLin/scamledger/internal/validation"
)

func TestApplyReportCreatesAggregate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	agg, err := store.ApplyReport(ctx, validation.ChainETH, "0xabc", 0, now)
	if err != nil {
		t.Fatalf("ApplyReport failed: %v", err)
	}
	if agg.ReportCount != 1 {
		t.Errorf("expected report_count 1, got %d", agg.ReportCount)
	}
	if agg.TotalLostUSD != 0 {
		t.Errorf("expected zero losses, got %f", agg.TotalLostUSD)
	}
	if agg.FirstReportedAt == nil || !agg.FirstReportedAt.Equal(now) {
		t.Errorf("first_reported_at not set to now: %v", agg.FirstReportedAt)
	}
}

func TestApplyReportAccumulates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	_, _ = store.ApplyReport(ctx, validation.ChainETH, "0xabc", 0, now)
	later := now.Add(time.Minute)
	agg, err := store.ApplyReport(ctx, validation.ChainETH, "0xabc", 15000, later)
	if err != nil {
		t.Fatalf("ApplyReport failed: %v", err)
	}

	if agg.ReportCount != 2 {
		t.Errorf("expected report_count 2, got %d", agg.ReportCount)
	}
	if agg.TotalLostUSD != 15000 {
		t.Errorf("expected total_lost 15000, got %f", agg.TotalLostUSD)
	}
	if !agg.FirstReportedAt.Equal(now) {
		t.Errorf("first_reported_at moved: %v", agg.FirstReportedAt)
	}
	if !agg.LastReportedAt.Equal(later) {
		t.Errorf("last_reported_at not updated: %v", agg.LastReportedAt)
	}
}

func TestApplyReportConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.ApplyReport(ctx, validation.ChainBTC, "1A1zP1", 10, time.Now())
		}()
	}
	wg.Wait()

	agg, err := store.Get(ctx, validation.ChainBTC, "1A1zP1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if agg.ReportCount != n {
		t.Errorf("lost updates: expected %d reports, got %d", n, agg.ReportCount)
	}
	if agg.TotalLostUSD != float64(n*10) {
		t.Errorf("lost updates: expected %d lost, got %f", n*10, agg.TotalLostUSD)
	}
}

func TestGetNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), validation.ChainETH, "0xmissing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEnsureForIntelZeroCounters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	agg, err := store.EnsureForIntel(ctx, validation.ChainETH, "0xsanctioned", time.Now())
	if err != nil {
		t.Fatalf("EnsureForIntel failed: %v", err)
	}
	if agg.ReportCount != 0 || agg.TotalLostUSD != 0 {
		t.Errorf("intel-created aggregate must have zero counters: %+v", agg)
	}
	if agg.FirstReportedAt != nil {
		t.Errorf("intel-created aggregate must have nil first_reported_at")
	}

	// Ensure on an existing aggregate must not reset anything.
	_, _ = store.ApplyReport(ctx, validation.ChainETH, "0xsanctioned", 500, time.Now())
	again, err := store.EnsureForIntel(ctx, validation.ChainETH, "0xsanctioned", time.Now())
	if err != nil {
		t.Fatalf("EnsureForIntel failed: %v", err)
	}
	if again.ID != agg.ID {
		t.Errorf("EnsureForIntel created a second aggregate")
	}
	if again.ReportCount != 1 {
		t.Errorf("EnsureForIntel reset counters: %+v", again)
	}
}

func TestMarkThreatIntelMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	agg, _ := store.EnsureForIntel(ctx, validation.ChainETH, "0xflag", time.Now())

	if err := store.MarkThreatIntel(ctx, agg.ID, time.Now()); err != nil {
		t.Fatalf("MarkThreatIntel failed: %v", err)
	}
	// Second mark is a no-op, not an error.
	if err := store.MarkThreatIntel(ctx, agg.ID, time.Now()); err != nil {
		t.Fatalf("second MarkThreatIntel failed: %v", err)
	}

	got, _ := store.Get(ctx, validation.ChainETH, "0xflag")
	if !got.HasThreatIntel {
		t.Error("has_threat_intel not set")
	}
}

func TestListHighRiskOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	a, _ := store.ApplyReport(ctx, validation.ChainETH, "0xa", 0, now)
	b, _ := store.ApplyReport(ctx, validation.ChainETH, "0xb", 0, now)
	c, _ := store.ApplyReport(ctx, validation.ChainETH, "0xc", 0, now)

	_ = store.UpdateRiskScore(ctx, a.ID, 30, now)
	_ = store.UpdateRiskScore(ctx, b.ID, 90, now)
	_ = store.UpdateRiskScore(ctx, c.ID, 60, now)

	got, err := store.ListHighRisk(ctx, 2)
	if err != nil {
		t.Fatalf("ListHighRisk failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].RiskScore != 90 || got[1].RiskScore != 60 {
		t.Errorf("wrong ordering: %d, %d", got[0].RiskScore, got[1].RiskScore)
	}
}

func TestListFlagged(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	a, _ := store.EnsureForIntel(ctx, validation.ChainETH, "0xa", now)
	_, _ = store.EnsureForIntel(ctx, validation.ChainETH, "0xb", now)
	_ = store.MarkThreatIntel(ctx, a.ID, now)

	flagged, err := store.ListFlagged(ctx)
	if err != nil {
		t.Fatalf("ListFlagged failed: %v", err)
	}
	if len(flagged) != 1 || flagged[0].ID != a.ID {
		t.Errorf("expected only %s flagged, got %+v", a.ID, flagged)
	}
}
