// Package stats serves the cached overview, trend, and breakdown read
// models.
//
// Results are cached with short TTLs, but consumers never wait out a TTL
// after a score-affecting write: both the ingestion gateway and the
// threat-intel sync engine call InvalidateStats through the same
// Invalidator, so the next read recomputes.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/4ndersonLin/scamledger/internal/address"
	"github.com/4ndersonLin/scamledger/internal/cache"
	"github.com/4ndersonLin/scamledger/internal/report"
)

// Cache keys and TTLs.
const (
	overviewKey  = "stats:overview"
	trendsKey    = "stats:trends:30"
	breakdownKey = "stats:breakdown"

	overviewTTL  = 5 * time.Minute
	trendsTTL    = 15 * time.Minute
	breakdownTTL = 15 * time.Minute
)

// highRiskThreshold is the critical band's lower bound.
const highRiskThreshold = 76

// trendDays is the fixed trend window.
const trendDays = 30

// Overview is the headline statistics block.
type Overview struct {
	TotalReports      int     `json:"total_reports"`
	HighRiskAddresses int     `json:"high_risk_addresses"`
	TotalLossUSD      float64 `json:"total_loss_usd"`
	MonthlyReports    int     `json:"monthly_reports"`
}

// TrendPoint is one day's report count. Days with no reports appear with a
// zero count.
type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// ChainCount is the report count for one chain.
type ChainCount struct {
	Chain string `json:"chain"`
	Count int    `json:"count"`
}

// ScamTypeCount is the report count for one scam classification.
type ScamTypeCount struct {
	ScamType string `json:"scam_type"`
	Count    int    `json:"count"`
}

// Breakdown groups report counts by chain and by scam type.
type Breakdown struct {
	Chains    []ChainCount    `json:"chains"`
	ScamTypes []ScamTypeCount `json:"scam_types"`
}

// Service computes and caches the statistics read models.
type Service struct {
	reports   report.Store
	addresses address.Store
	cache     cache.Cache
}

// NewService creates the stats service.
func NewService(reports report.Store, addresses address.Store, c cache.Cache) *Service {
	return &Service{reports: reports, addresses: addresses, cache: c}
}

// GetOverview returns the headline statistics, cached for 5 minutes.
func (s *Service) GetOverview(ctx context.Context) (*Overview, error) {
	var cached Overview
	if err := s.cache.Get(ctx, overviewKey, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		return nil, err
	}

	total, err := s.reports.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	highRisk, err := s.addresses.CountHighRisk(ctx, highRiskThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to count high-risk addresses: %w", err)
	}
	totalLost, err := s.addresses.SumTotalLost(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sum losses: %w", err)
	}
	monthly, err := s.reports.CountSince(ctx, time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		return nil, fmt.Errorf("failed to count monthly reports: %w", err)
	}

	overview := &Overview{
		TotalReports:      total,
		HighRiskAddresses: highRisk,
		TotalLossUSD:      totalLost,
		MonthlyReports:    monthly,
	}
	_ = s.cache.Set(ctx, overviewKey, overview, overviewTTL)
	return overview, nil
}

// GetTrends returns per-day report counts for the last 30 days, oldest
// first, with gaps filled by zero-count days. Cached for 15 minutes.
func (s *Service) GetTrends(ctx context.Context) ([]TrendPoint, error) {
	var cached []TrendPoint
	if err := s.cache.Get(ctx, trendsKey, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		return nil, err
	}

	buckets, err := s.reports.CountByDay(ctx, trendDays)
	if err != nil {
		return nil, fmt.Errorf("failed to bucket reports by day: %w", err)
	}

	today := time.Now().UTC()
	trends := make([]TrendPoint, 0, trendDays)
	for i := trendDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format("2006-01-02")
		trends = append(trends, TrendPoint{Date: day, Count: buckets[day]})
	}

	_ = s.cache.Set(ctx, trendsKey, trends, trendsTTL)
	return trends, nil
}

// GetBreakdown returns report counts grouped by chain and scam type,
// highest count first. Cached for 15 minutes.
func (s *Service) GetBreakdown(ctx context.Context) (*Breakdown, error) {
	var cached Breakdown
	if err := s.cache.Get(ctx, breakdownKey, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		return nil, err
	}

	byChain, err := s.reports.CountByChain(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count by chain: %w", err)
	}
	byType, err := s.reports.CountByScamType(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count by scam type: %w", err)
	}

	breakdown := &Breakdown{
		Chains:    make([]ChainCount, 0, len(byChain)),
		ScamTypes: make([]ScamTypeCount, 0, len(byType)),
	}
	for chain, count := range byChain {
		breakdown.Chains = append(breakdown.Chains, ChainCount{Chain: chain, Count: count})
	}
	for scamType, count := range byType {
		breakdown.ScamTypes = append(breakdown.ScamTypes, ScamTypeCount{ScamType: scamType, Count: count})
	}
	sort.Slice(breakdown.Chains, func(i, j int) bool {
		return breakdown.Chains[i].Count > breakdown.Chains[j].Count
	})
	sort.Slice(breakdown.ScamTypes, func(i, j int) bool {
		return breakdown.ScamTypes[i].Count > breakdown.ScamTypes[j].Count
	})

	_ = s.cache.Set(ctx, breakdownKey, breakdown, breakdownTTL)
	return breakdown, nil
}

// InvalidateStats drops every cached read model. Called by both pipelines
// after any score-affecting write.
func (s *Service) InvalidateStats(ctx context.Context) error {
	return s.cache.Delete(ctx, overviewKey, trendsKey, breakdownKey)
}
