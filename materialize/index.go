package materialize

import "github.com/jacentio/arbor/store"

// Index group names for records that are not blocks.
const (
	GroupCollection = "collection"
	GroupView       = "view"
)

// Entry is one created record.
type Entry struct {
	Pointer store.Pointer
	// Group is the block type, or GroupCollection or GroupView.
	Group string
	Label string
}

type indexKey struct {
	group string
	key   string
}

// Index looks up created records by group and either id or label.
type Index struct {
	entries []Entry
	byKey   map[indexKey]int
}

func newIndex() *Index {
	return &Index{byKey: make(map[indexKey]int)}
}

func (ix *Index) add(group string, ptr store.Pointer, label string) {
	ix.entries = append(ix.entries, Entry{Pointer: ptr, Group: group, Label: label})
	n := len(ix.entries) - 1
	ix.byKey[indexKey{group, ptr.ID}] = n
	if label == "" {
		return
	}
	// The first record with a label keeps it.
	if _, taken := ix.byKey[indexKey{group, label}]; !taken {
		ix.byKey[indexKey{group, label}] = n
	}
}

// Get returns the record of group whose id or label is key.
func (ix *Index) Get(group, key string) (store.Pointer, bool) {
	n, ok := ix.byKey[indexKey{group, key}]
	if !ok {
		return store.Pointer{}, false
	}
	return ix.entries[n].Pointer, true
}

// Entries returns the created records in creation order.
func (ix *Index) Entries() []Entry {
	out := make([]Entry, len(ix.entries))
	copy(out, ix.entries)
	return out
}

// Len returns the number of created records.
func (ix *Index) Len() int { return len(ix.entries) }
