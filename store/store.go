package store

// Store is the kind-partitioned record cache. It is the only owner of record
// state and does no locking: callers must not run overlapping mutation chains
// against the same ids.
type Store struct {
	records map[Kind]map[string]*Record
}

// New creates an empty Store with a partition for every known kind.
func New() *Store {
	s := &Store{records: make(map[Kind]map[string]*Record, len(kinds))}
	for _, k := range kinds {
		s.records[k] = make(map[string]*Record)
	}
	return s
}

func (s *Store) partition(kind Kind) map[string]*Record {
	p, ok := s.records[kind]
	if !ok {
		p = make(map[string]*Record)
		s.records[kind] = p
	}
	return p
}

// Get returns the resident record for (kind, id).
func (s *Store) Get(kind Kind, id string) (*Record, bool) {
	rec, ok := s.records[kind][id]
	return rec, ok && rec != nil
}

// Set stores rec under (kind, id), replacing any resident record.
func (s *Store) Set(kind Kind, id string, rec *Record) {
	s.partition(kind)[id] = rec
}

// Delete evicts (kind, id). Soft deletion never calls this.
func (s *Store) Delete(kind Kind, id string) {
	delete(s.records[kind], id)
}

// Merge stores every record of m, overwriting matching keys and leaving the
// rest untouched.
func (s *Store) Merge(m RecordMap) {
	for kind, byID := range m {
		for id, w := range byID {
			if w.Value == nil {
				continue
			}
			s.partition(kind)[id] = w.Value
		}
	}
}

// Missing returns the pointers that are not resident, preserving order.
func (s *Store) Missing(ptrs []Pointer) []Pointer {
	var out []Pointer
	for _, p := range ptrs {
		if _, ok := s.Get(p.Kind, p.ID); !ok {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of resident records of kind.
func (s *Store) Len(kind Kind) int {
	return len(s.records[kind])
}

// Snapshot returns a shallow copy of the kind partition.
func (s *Store) Snapshot(kind Kind) map[string]*Record {
	out := make(map[string]*Record, len(s.records[kind]))
	for id, rec := range s.records[kind] {
		out[id] = rec
	}
	return out
}
