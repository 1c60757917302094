package address

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/4ndersonLin/scamledger/internal/idgen"
	"github.com/4ndersonLin/scamledger/internal/risk"
	"github.com/4ndersonLin/scamledger/internal/validation"
)

type aggregateKey struct {
	chain validation.Chain
	addr  string
}

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu     sync.RWMutex
	byKey  map[aggregateKey]*Aggregate
	byID   map[string]*Aggregate
}

// NewMemoryStore creates an in-memory aggregate store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey: make(map[aggregateKey]*Aggregate),
		byID:  make(map[string]*Aggregate),
	}
}

func (s *MemoryStore) ApplyReport(ctx context.Context, chain validation.Chain, addr string, lossUSD float64, now time.Time) (*Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg := s.ensure(chain, addr, now)
	agg.ReportCount++
	agg.TotalLostUSD += lossUSD
	if agg.FirstReportedAt == nil {
		first := now
		agg.FirstReportedAt = &first
	}
	last := now
	agg.LastReportedAt = &last
	agg.UpdatedAt = now

	out := *agg
	return &out, nil
}

func (s *MemoryStore) EnsureForIntel(ctx context.Context, chain validation.Chain, addr string, now time.Time) (*Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg := s.ensure(chain, addr, now)
	out := *agg
	return &out, nil
}

// ensure returns the live aggregate for (chain,addr), creating it with zero
// counters if absent. Caller holds the lock.
func (s *MemoryStore) ensure(chain validation.Chain, addr string, now time.Time) *Aggregate {
	key := aggregateKey{chain: chain, addr: addr}
	if agg, ok := s.byKey[key]; ok {
		return agg
	}
	agg := &Aggregate{
		ID:        idgen.WithPrefix("addr_"),
		Chain:     chain,
		Address:   addr,
		RiskLevel: risk.LevelLow,
		UpdatedAt: now,
	}
	s.byKey[key] = agg
	s.byID[agg.ID] = agg
	return agg
}

func (s *MemoryStore) Get(ctx context.Context, chain validation.Chain, addr string) (*Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg, ok := s.byKey[aggregateKey{chain: chain, addr: addr}]
	if !ok {
		return nil, ErrNotFound
	}
	out := *agg
	return &out, nil
}

func (s *MemoryStore) MarkThreatIntel(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !agg.HasThreatIntel {
		agg.HasThreatIntel = true
		agg.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStore) UpdateRiskScore(ctx context.Context, id string, score int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	agg.RiskScore = score
	agg.RiskLevel = risk.LevelFor(score)
	agg.UpdatedAt = now
	return nil
}

func (s *MemoryStore) ListFlagged(ctx context.Context) ([]*Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Aggregate
	for _, agg := range s.byID {
		if agg.HasThreatIntel {
			out := *agg
			result = append(result, &out)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListHighRisk(ctx context.Context, limit int) ([]*Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Aggregate
	for _, agg := range s.byID {
		if agg.RiskScore > 0 {
			out := *agg
			result = append(result, &out)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].RiskScore != result[j].RiskScore {
			return result[i].RiskScore > result[j].RiskScore
		}
		return result[i].ReportCount > result[j].ReportCount
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) CountHighRisk(ctx context.Context, minScore int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, agg := range s.byID {
		if agg.RiskScore >= minScore {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) SumTotalLost(ctx context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, agg := range s.byID {
		total += agg.TotalLostUSD
	}
	return total, nil
}
