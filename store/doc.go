// Package store provides the local record cache of a hierarchical document store.
//
// Records (pages, collections, views, spaces, ...) are partitioned by [Kind] and
// keyed by id. Relations between records are plain id fields: a child names its
// container through parent_id/parent_table and the container lists the child in
// exactly one ordered slot (content, pages, view_ids, ...). The [Registry]
// describes which slot each kind exposes.
//
// # Invariants
//
//   - A child id appears in its parent's slot iff the child points back at the parent
//   - Deleted records keep their cache entry with alive=false
//   - The [Store] is the only holder of record state
//
// # Store
//
// A [Store] is constructed explicitly and injected into every component that
// needs it; there is no package-level instance:
//
//	s := store.New()
//	s.Merge(recordMap)
//	missing := s.Missing([]store.Pointer{{ID: id, Kind: store.KindBlock}})
//
// # Errors
//
// The package defines the error taxonomy shared by the module:
//
//   - [ErrUnsupportedKind] - resolving a kind outside the known set (fatal)
//   - [ErrDanglingReference] - selected child not resident (warning)
//   - [ErrNotAChild] - selected record not linked under the parent (warning)
//   - [ErrStaleAccess] - read of a deleted record (warning)
//   - [ErrMissingToken] - client constructed without credentials
//   - [ErrConcurrentModification] - optimistic lock failed remotely
package store
