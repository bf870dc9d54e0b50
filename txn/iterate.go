package txn

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/jacentio/arbor/store"
)

// IterateOptions configures the child source of a traversal.
type IterateOptions struct {
	// ChildIDs replaces the parent's slot as the child source, as for the
	// rows of a collection. Linkage is checked against this list.
	ChildIDs []string

	// ChildKind overrides the kind the children are looked up under.
	// Default: the slot's child kind.
	ChildKind store.Kind

	Mode Mode
}

type match struct {
	id    string
	rec   *store.Record
	patch store.Patch
}

// traversal is the outcome of selecting children under one parent.
type traversal struct {
	parent   *store.Record
	rel      store.Relationship
	hasSlot  bool
	kind     store.Kind
	matches  []match
	warnings *multierror.Error
}

func (t *traversal) ids() []string {
	out := make([]string, len(t.matches))
	for i, m := range t.matches {
		out[i] = m.id
	}
	return out
}

func (t *traversal) records() []*store.Record {
	out := make([]*store.Record, len(t.matches))
	for i, m := range t.matches {
		out[i] = m.rec
	}
	return out
}

// iterate resolves the builder's dependencies and selects children. Selected
// ids that are absent or not linked are warned about and skipped.
func (b *Builder) iterate(ctx context.Context, method string, sel Selector, opts IterateOptions) (*traversal, error) {
	if err := b.EnsureResident(ctx); err != nil {
		return nil, err
	}
	parent, ok := b.session.Store.Get(b.ptr.Kind, b.ptr.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", store.ErrNotFound, b.ptr.Kind, b.ptr.ID)
	}

	t := &traversal{parent: parent}
	t.rel, t.hasSlot = b.session.Resolver.Registry().SlotOf(b.ptr.Kind, parent)

	var source []string
	switch {
	case opts.ChildIDs != nil:
		source = opts.ChildIDs
	case t.hasSlot:
		source = *parent.Slot(t.rel.Slot)
	default:
		return nil, fmt.Errorf("%w: %s:%s has no child slot", store.ErrUnsupportedKind, b.ptr.Kind, b.ptr.ID)
	}
	t.kind = opts.ChildKind
	if t.kind == "" {
		t.kind = t.rel.ChildKind
	}
	if t.kind == "" {
		t.kind = store.KindBlock
	}

	// Mutators may rewrite the slot while matches are applied.
	container := append([]string(nil), source...)
	linked := make(map[string]bool, len(container))
	for _, id := range container {
		linked[id] = true
	}

	add := func(m match) bool {
		b.logger().Debug("visited child", "method", method, "kind", t.kind, "id", m.id)
		t.matches = append(t.matches, m)
		return opts.Mode == Single
	}
	lookup := func(id string, checkLink bool) (*store.Record, bool) {
		rec, ok := b.session.Store.Get(t.kind, id)
		if !ok {
			b.warn(t, method, store.ErrDanglingReference, id)
			return nil, false
		}
		if checkLink && !linked[id] {
			b.warn(t, method, store.ErrNotAChild, id)
			return nil, false
		}
		return rec, true
	}

	switch s := sel.(type) {
	case idSelector:
		for _, id := range s {
			if rec, ok := lookup(id, true); ok && add(match{id: id, rec: rec}) {
				break
			}
		}
	case pairSelector:
		for _, p := range s {
			if rec, ok := lookup(p.ID, true); ok && add(match{id: p.ID, rec: rec, patch: p.Patch}) {
				break
			}
		}
	case whereSelector:
		for i, id := range container {
			rec, ok := lookup(id, false)
			if !ok || !s(rec, i) {
				continue
			}
			if add(match{id: id, rec: rec}) {
				break
			}
		}
	case transformSelector:
		for i, id := range container {
			rec, ok := lookup(id, false)
			if !ok {
				continue
			}
			patch, ok := s(rec, i)
			if !ok {
				continue
			}
			if add(match{id: id, rec: rec, patch: patch}) {
				break
			}
		}
	default:
		for _, id := range container {
			rec, ok := lookup(id, false)
			if ok && add(match{id: id, rec: rec}) {
				break
			}
		}
	}
	return t, nil
}

func (b *Builder) warn(t *traversal, method string, sentinel error, id string) {
	err := fmt.Errorf("%w: %s:%s under %s:%s", sentinel, t.kind, id, b.ptr.Kind, b.ptr.ID)
	t.warnings = multierror.Append(t.warnings, err)
	b.logger().Warn("skipping child",
		"method", method,
		"kind", t.kind,
		"id", id,
		"parent", b.ptr.ID,
		"error", err,
	)
}
