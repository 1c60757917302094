package report

import (
	"context"
	"sync"
	"time"

	"github.com/4ndersonLin/scamledger/internal/validation"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	reports []*Report
}

// NewMemoryStore creates an in-memory report store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(ctx context.Context, r *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.reports = append(s.reports, &cp)
	return nil
}

func (s *MemoryStore) HasRecentByFingerprint(ctx context.Context, fingerprints []string, chain validation.Chain, addr string, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fpSet := make(map[string]struct{}, len(fingerprints))
	for _, fp := range fingerprints {
		fpSet[fp] = struct{}{}
	}

	for _, r := range s.reports {
		if r.Chain != chain || r.Address != addr || r.CreatedAt.Before(since) {
			continue
		}
		if _, ok := fpSet[r.Fingerprint]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CountRecentByAggregate(ctx context.Context, aggregateID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.reports {
		if r.AggregateID == aggregateID && !r.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ListByAggregate(ctx context.Context, aggregateID string) ([]*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Report
	for i := len(s.reports) - 1; i >= 0; i-- {
		if s.reports[i].AggregateID == aggregateID {
			cp := *s.reports[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Report
	for i := len(s.reports) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		cp := *s.reports[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStore) CountAll(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports), nil
}

func (s *MemoryStore) CountSince(ctx context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.reports {
		if !r.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CountByDay(ctx context.Context, days int) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	buckets := make(map[string]int)
	for _, r := range s.reports {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		buckets[r.CreatedAt.UTC().Format("2006-01-02")]++
	}
	return buckets, nil
}

func (s *MemoryStore) CountByChain(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, r := range s.reports {
		counts[string(r.Chain)]++
	}
	return counts, nil
}

func (s *MemoryStore) CountByScamType(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, r := range s.reports {
		counts[r.ScamType]++
	}
	return counts, nil
}
