// Package memory provides an in-process remote service that serves fetches
// from, and applies flushed operations to, its own record set.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jacentio/arbor/operation"
	"github.com/jacentio/arbor/store"
)

// Service is an in-memory Fetcher and Executor. It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	records map[store.Pointer]*store.Record
	fetches int
	queries int
	flushes [][]operation.Operation

	// FailFlush, when set, is returned by Flush without applying anything.
	FailFlush error
}

// New creates a Service seeded with recs.
func New(recs store.RecordMap) *Service {
	s := &Service{records: make(map[store.Pointer]*store.Record)}
	s.Seed(recs)
	return s
}

// Seed stores recs, replacing matching records. The service takes ownership
// of the records.
func (s *Service) Seed(recs store.RecordMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for kind, byID := range recs {
		for id, w := range byID {
			if w.Value == nil {
				continue
			}
			s.records[store.Pointer{ID: id, Kind: kind}] = w.Value
		}
	}
}

// FetchByIDs implements remote.Fetcher.
func (s *Service) FetchByIDs(_ context.Context, ptrs []store.Pointer) (store.RecordMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++

	out := store.RecordMap{}
	for _, p := range ptrs {
		rec, ok := s.records[p]
		if !ok {
			continue
		}
		clone, err := rec.Clone()
		if err != nil {
			return nil, err
		}
		out.Add(p.Kind, clone)
	}
	return out, nil
}

// QueryChildren implements remote.Fetcher. It returns every alive block whose
// parent is (parentID, kind).
func (s *Service) QueryChildren(_ context.Context, parentID string, kind store.Kind) (store.RecordMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++

	out := store.RecordMap{}
	for p, rec := range s.records {
		if p.Kind != store.KindBlock || !rec.Alive {
			continue
		}
		if rec.ParentID != parentID || rec.ParentTable != kind {
			continue
		}
		clone, err := rec.Clone()
		if err != nil {
			return nil, err
		}
		out.Add(p.Kind, clone)
	}
	return out, nil
}

// Flush implements remote.Executor. Operations are applied in order; every
// affected record has its version bumped once.
func (s *Service) Flush(_ context.Context, ops []operation.Operation, affected []store.Pointer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFlush != nil {
		return s.FailFlush
	}

	staged := make(map[store.Pointer]*store.Record)
	for _, op := range ops {
		p := op.Pointer()
		rec, ok := staged[p]
		if !ok {
			if cur, exists := s.records[p]; exists {
				clone, err := cur.Clone()
				if err != nil {
					return err
				}
				rec = clone
			} else if op.Command == operation.CommandSet && len(op.Path) == 0 {
				rec = &store.Record{ID: op.ID, Alive: true}
			} else {
				return fmt.Errorf("%w: %s:%s", store.ErrNotFound, p.Kind, p.ID)
			}
			staged[p] = rec
		}
		if err := operation.Apply(rec, op); err != nil {
			return fmt.Errorf("apply %s: %w", op, err)
		}
	}

	for _, p := range affected {
		if rec, ok := staged[p]; ok {
			rec.Version++
		}
	}
	for p, rec := range staged {
		s.records[p] = rec
	}
	s.flushes = append(s.flushes, ops)
	return nil
}

// Record returns the service's copy of (kind, id).
func (s *Service) Record(kind store.Kind, id string) (*store.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[store.Pointer{ID: id, Kind: kind}]
	return rec, ok
}

// Fetches returns the number of FetchByIDs round trips served.
func (s *Service) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// Queries returns the number of QueryChildren round trips served.
func (s *Service) Queries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

// Flushes returns every successfully flushed batch, oldest first.
func (s *Service) Flushes() [][]operation.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]operation.Operation, len(s.flushes))
	copy(out, s.flushes)
	return out
}
