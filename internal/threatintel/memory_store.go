package threatintel

import (
	"context"
	"sync"
	"time"

	"github.com/4ndersonLin/scamledger/internal/idgen"
	"github.com/4ndersonLin/scamledger/internal/validation"
)

type naturalKey struct {
	source     string
	chain      validation.Chain
	address    string
	externalID string
}

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
	keys    map[naturalKey]struct{}
	states  map[string]*SyncState
}

// NewMemoryStore creates an in-memory threat-intel store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:   make(map[naturalKey]struct{}),
		states: make(map[string]*SyncState),
	}
}

func (s *MemoryStore) ImportBatch(ctx context.Context, records []*Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	now := time.Now().UTC()
	for _, r := range records {
		key := naturalKey{source: r.Source, chain: r.Chain, address: r.Address, externalID: r.ExternalID}
		if _, dup := s.keys[key]; dup {
			continue
		}
		cp := *r
		cp.ID = idgen.WithPrefix("ti_")
		cp.FetchedAt = now
		s.records = append(s.records, &cp)
		s.keys[key] = struct{}{}
		inserted++
	}
	return inserted, nil
}

func (s *MemoryStore) Unlinked(ctx context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Record
	for _, r := range s.records {
		if r.AggregateID == nil {
			cp := *r
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStore) SetAggregateID(ctx context.Context, recordID, aggregateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.ID == recordID {
			id := aggregateID
			r.AggregateID = &id
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) SignalsFor(ctx context.Context, aggregateID string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	sanctioned := false
	for _, r := range s.records {
		if r.AggregateID != nil && *r.AggregateID == aggregateID {
			count++
			if r.IsConfirmedSanction() {
				sanctioned = true
			}
		}
	}
	return count, sanctioned, nil
}

func (s *MemoryStore) GetByAddress(ctx context.Context, chain validation.Chain, addr string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Record
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Chain == chain && s.records[i].Address == addr {
			cp := *s.records[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetSyncState(ctx context.Context, source string) (*SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[source]
	if !ok {
		return nil, nil
	}
	cp := *state
	return &cp, nil
}

func (s *MemoryStore) RecordSyncResult(ctx context.Context, source string, etag *string, imported int, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	state, ok := s.states[source]
	if !ok {
		state = &SyncState{Source: source}
		s.states[source] = state
	}

	state.LastSyncAt = &now
	state.UpdatedAt = now
	state.RecordsImported += imported
	if etag != nil {
		state.LastETag = etag
	}
	if runErr != nil {
		msg := runErr.Error()
		state.LastError = &msg
	} else {
		state.LastError = nil
	}
	return nil
}
