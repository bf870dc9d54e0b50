// Package resolve decides which records a record depends on and pulls the
// missing ones into the store.
package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacentio/arbor/remote"
	"github.com/jacentio/arbor/store"
)

// policy is the per-kind dependency behavior on top of the slot registry.
type policy struct {
	// extra lists dependencies outside the ordered slot.
	extra func(rec *store.Record) []store.Pointer
	// rows marks kinds whose non-slot children are discovered by query.
	rows bool
	// nested marks kinds whose collection-view children need their
	// collections and views as well.
	nested bool
}

var policies = map[store.Kind]policy{
	store.KindBlock:          {extra: collectionOf, nested: true},
	store.KindCollection:     {rows: true},
	store.KindCollectionView: {},
	store.KindSpace:          {extra: permissionUsers},
	store.KindSpaceView:      {},
	store.KindUserRoot:       {},
	store.KindNotionUser:     {},
	store.KindUserSettings:   {},
}

func isCollectionBlock(rec *store.Record) bool {
	return rec.Type == store.TypeCollectionView || rec.Type == store.TypeCollectionViewPage
}

func collectionOf(rec *store.Record) []store.Pointer {
	if !isCollectionBlock(rec) || rec.CollectionID == "" {
		return nil
	}
	return []store.Pointer{{ID: rec.CollectionID, Kind: store.KindCollection}}
}

func permissionUsers(rec *store.Record) []store.Pointer {
	var out []store.Pointer
	for _, perm := range rec.Permissions {
		if id, ok := perm["user_id"].(string); ok && id != "" {
			out = append(out, store.Pointer{ID: id, Kind: store.KindNotionUser})
		}
	}
	return out
}

// Resolver populates the store with the dependencies of a record.
type Resolver struct {
	store    *store.Store
	fetcher  remote.Fetcher
	registry *store.Registry
	logger   *slog.Logger
}

// New creates a Resolver. A nil registry uses store.DefaultRegistry.
func New(s *store.Store, fetcher remote.Fetcher, registry *store.Registry, logger *slog.Logger) *Resolver {
	if registry == nil {
		registry = store.DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:    s,
		fetcher:  fetcher,
		registry: registry,
		logger:   logger,
	}
}

// Registry returns the slot registry the resolver consults.
func (r *Resolver) Registry() *store.Registry {
	return r.registry
}

// Dependencies returns the records that should be resident for the resident
// record at ptr, in slot order.
func (r *Resolver) Dependencies(ptr store.Pointer) ([]store.Pointer, error) {
	pol, ok := policies[ptr.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrUnsupportedKind, ptr.Kind)
	}
	rec, ok := r.store.Get(ptr.Kind, ptr.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", store.ErrNotFound, ptr.Kind, ptr.ID)
	}

	var out []store.Pointer
	if rel, ok := r.registry.SlotOf(ptr.Kind, rec); ok {
		for _, id := range *rec.Slot(rel.Slot) {
			out = append(out, store.Pointer{ID: id, Kind: rel.ChildKind})
		}
	}
	if pol.extra != nil {
		out = append(out, pol.extra(rec)...)
	}
	return out, nil
}

// EnsureResident makes ptr and its dependencies resident, fetching only what
// is missing. Collections also merge the rows returned by a child query, and
// blocks fetch the collections and views of their collection-view children.
func (r *Resolver) EnsureResident(ctx context.Context, ptr store.Pointer) error {
	pol, ok := policies[ptr.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrUnsupportedKind, ptr.Kind)
	}
	if err := r.fetchMissing(ctx, ptr, []store.Pointer{ptr}); err != nil {
		return err
	}
	if _, ok := r.store.Get(ptr.Kind, ptr.ID); !ok {
		return fmt.Errorf("%w: %s:%s", store.ErrNotFound, ptr.Kind, ptr.ID)
	}

	deps, err := r.Dependencies(ptr)
	if err != nil {
		return err
	}
	if err := r.fetchMissing(ctx, ptr, deps); err != nil {
		return err
	}

	if pol.rows {
		rows, err := r.fetcher.QueryChildren(ctx, ptr.ID, ptr.Kind)
		if err != nil {
			return fmt.Errorf("query children of %s:%s: %w", ptr.Kind, ptr.ID, err)
		}
		r.logger.Debug("merged child rows", "kind", ptr.Kind, "id", ptr.ID, "count", rows.Len())
		r.store.Merge(rows)
	}

	if pol.nested {
		return r.fetchMissing(ctx, ptr, r.nestedDependencies(deps))
	}
	return nil
}

// nestedDependencies lists the collections and views of the resident
// collection-view blocks among deps.
func (r *Resolver) nestedDependencies(deps []store.Pointer) []store.Pointer {
	var out []store.Pointer
	for _, d := range deps {
		if d.Kind != store.KindBlock {
			continue
		}
		child, ok := r.store.Get(d.Kind, d.ID)
		if !ok || !isCollectionBlock(child) {
			continue
		}
		out = append(out, collectionOf(child)...)
		for _, id := range child.ViewIDs {
			out = append(out, store.Pointer{ID: id, Kind: store.KindCollectionView})
		}
	}
	return out
}

func (r *Resolver) fetchMissing(ctx context.Context, owner store.Pointer, ptrs []store.Pointer) error {
	missing := r.store.Missing(ptrs)
	if len(missing) == 0 {
		return nil
	}
	r.logger.Debug("fetching missing records", "kind", owner.Kind, "id", owner.ID, "count", len(missing))
	recs, err := r.fetcher.FetchByIDs(ctx, missing)
	if err != nil {
		return fmt.Errorf("fetch dependencies of %s:%s: %w", owner.Kind, owner.ID, err)
	}
	r.store.Merge(recs)
	return nil
}
