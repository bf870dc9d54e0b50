package txn

import "github.com/jacentio/arbor/store"

// Mode bounds how many children an iteration may match.
type Mode int

const (
	// Multiple visits every selected child.
	Multiple Mode = iota
	// Single stops after the first match.
	Single
)

// Selector chooses the children an iteration visits. A nil Selector selects
// every child in slot order.
type Selector interface {
	selector()
}

// Pair is an explicit child id with the patch to apply to it.
type Pair struct {
	ID    string
	Patch store.Patch
}

type idSelector []string

type pairSelector []Pair

type whereSelector func(rec *store.Record, index int) bool

type transformSelector func(rec *store.Record, index int) (store.Patch, bool)

func (idSelector) selector()        {}
func (pairSelector) selector()      {}
func (whereSelector) selector()     {}
func (transformSelector) selector() {}

// IDs selects the given children in order. Each must be resident and linked
// under the parent.
func IDs(ids ...string) Selector { return idSelector(ids) }

// Pairs selects the given children in order, each with its own patch.
func Pairs(pairs ...Pair) Selector { return pairSelector(pairs) }

// Where selects the resident children for which fn returns true. index is
// the child's position in the slot.
func Where(fn func(rec *store.Record, index int) bool) Selector { return whereSelector(fn) }

// Transform selects the resident children for which fn returns ok, using the
// returned patch as the update.
func Transform(fn func(rec *store.Record, index int) (store.Patch, bool)) Selector {
	return transformSelector(fn)
}
