// Package txn turns CRUD intents on cached records into ordered wire
// operations, applying each change to the store as it is emitted.
package txn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacentio/arbor/operation"
	"github.com/jacentio/arbor/remote"
	"github.com/jacentio/arbor/resolve"
	"github.com/jacentio/arbor/splice"
	"github.com/jacentio/arbor/store"
)

// Session bundles the collaborators shared by every builder.
type Session struct {
	Store    *store.Store
	Resolver *resolve.Resolver
	Executor remote.Executor
	Stack    *Stack
	Config   Config
}

// NewSession creates a Session. A nil stack gets a fresh one.
func NewSession(s *store.Store, resolver *resolve.Resolver, executor remote.Executor, stack *Stack, config Config) *Session {
	config.validate()
	if stack == nil {
		stack = NewStack()
	}
	return &Session{
		Store:    s,
		Resolver: resolver,
		Executor: executor,
		Stack:    stack,
		Config:   config,
	}
}

// Builder is bound to one record. It holds the record's address only; the
// record itself always comes from the store.
type Builder struct {
	session  *Session
	ptr      store.Pointer
	resident bool
}

// Builder returns a new builder for (kind, id).
func (s *Session) Builder(kind store.Kind, id string) *Builder {
	return &Builder{session: s, ptr: store.Pointer{ID: id, Kind: kind}}
}

// Session returns the session the builder belongs to.
func (b *Builder) Session() *Session { return b.session }

// Pointer returns the address of the builder's record.
func (b *Builder) Pointer() store.Pointer { return b.ptr }

func (b *Builder) logger() *slog.Logger { return b.session.Config.Logger }

// Record returns the cached record. Reading a deleted record logs a warning
// and still returns it.
func (b *Builder) Record() (*store.Record, bool) {
	rec, ok := b.session.Store.Get(b.ptr.Kind, b.ptr.ID)
	if ok && !rec.Alive {
		b.logger().Warn("reading deleted record",
			"kind", b.ptr.Kind,
			"id", b.ptr.ID,
			"error", store.ErrStaleAccess,
		)
	}
	return rec, ok
}

// EnsureResident loads the record and its dependencies once per builder.
func (b *Builder) EnsureResident(ctx context.Context) error {
	if b.resident {
		return nil
	}
	if err := b.session.Resolver.EnsureResident(ctx, b.ptr); err != nil {
		return err
	}
	b.resident = true
	return nil
}

// Result is the outcome of one iteration verb.
type Result struct {
	// Matched holds the visited child ids in selection order.
	Matched []string
	// Records holds the visited child records, aligned with Matched.
	Records []*store.Record
	// Operations holds the emitted batch in causal order.
	Operations []operation.Operation
	// Warnings aggregates the skipped selections, or is nil.
	Warnings error
}

// UpdateOptions configures updateIterate and deleteIterate.
type UpdateOptions struct {
	IterateOptions

	// Patch is applied to every match whose selector carries no patch.
	Patch store.Patch

	// SkipParentTouch suppresses the parent edit-metadata operation of an
	// update. Deletes always touch the parent.
	SkipParentTouch bool

	// Defer pushes the batch onto the session stack even when the session
	// flushes immediately.
	Defer bool
}

// GetIterate selects children without mutating anything.
func (b *Builder) GetIterate(ctx context.Context, sel Selector, opts IterateOptions) (*Result, error) {
	t, err := b.iterate(ctx, "get", sel, opts)
	if err != nil {
		return nil, err
	}
	return &Result{Matched: t.ids(), Records: t.records(), Warnings: t.warnings.ErrorOrNil()}, nil
}

// UpdateIterate applies a patch plus fresh edit metadata to every selected
// child, then touches the parent, and hands the batch to Execute.
func (b *Builder) UpdateIterate(ctx context.Context, sel Selector, opts UpdateOptions) (*Result, error) {
	t, err := b.iterate(ctx, "update", sel, opts.IterateOptions)
	if err != nil {
		return nil, err
	}

	var ops []operation.Operation
	for _, m := range t.matches {
		patch := m.patch
		if patch == nil {
			patch = opts.Patch
		}
		op, err := b.mutate(t.kind, m.rec, patch)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if len(t.matches) > 0 && !opts.SkipParentTouch {
		op, err := b.Touch()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	res := &Result{Matched: t.ids(), Records: t.records(), Operations: ops, Warnings: t.warnings.ErrorOrNil()}
	return res, b.execute(ctx, ops, opts.Defer)
}

// DeleteIterate marks every selected child dead, unlinks it from the parent's
// slot, and touches the parent when anything was deleted. Records stay in
// the store.
func (b *Builder) DeleteIterate(ctx context.Context, sel Selector, opts UpdateOptions) (*Result, error) {
	t, err := b.iterate(ctx, "delete", sel, opts.IterateOptions)
	if err != nil {
		return nil, err
	}

	var ops []operation.Operation
	for _, m := range t.matches {
		op, err := b.mutate(t.kind, m.rec, store.Patch{"alive": false})
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)

		if !t.hasSlot {
			continue
		}
		slot := t.parent.Slot(t.rel.Slot)
		if position(*slot, m.id) < 0 {
			continue
		}
		rm := operation.ListRemove(b.ptr.Kind, b.ptr.ID, t.rel.Slot, m.id)
		if *slot, err = operation.ApplyList(*slot, rm); err != nil {
			return nil, err
		}
		ops = append(ops, rm)
	}
	if len(t.matches) > 0 {
		op, err := b.Touch()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	res := &Result{Matched: t.ids(), Records: t.records(), Operations: ops, Warnings: t.warnings.ErrorOrNil()}
	return res, b.execute(ctx, ops, opts.Defer)
}

// mutate applies patch plus edit metadata to rec and returns the matching
// update operation.
func (b *Builder) mutate(kind store.Kind, rec *store.Record, patch store.Patch) (operation.Operation, error) {
	cfg := b.session.Config
	full := patch.Merge(store.EditedBy(cfg.UserID, cfg.Now()))
	if err := rec.Apply(full); err != nil {
		return operation.Operation{}, err
	}
	rec.Version++
	return operation.Update(kind, rec.ID, nil, full), nil
}

// Touch refreshes the edit metadata of the builder's record and returns the
// operation carrying it.
func (b *Builder) Touch() (operation.Operation, error) {
	rec, ok := b.session.Store.Get(b.ptr.Kind, b.ptr.ID)
	if !ok {
		return operation.Operation{}, fmt.Errorf("%w: %s:%s", store.ErrNotFound, b.ptr.Kind, b.ptr.ID)
	}
	return b.mutate(b.ptr.Kind, rec, nil)
}

// AddToChildArray splices childID into the builder's slot at pos and returns
// the equivalent list operation. Template-only slots accept template
// children only.
func (b *Builder) AddToChildArray(childID string, pos splice.Position) (operation.Operation, error) {
	rec, ok := b.session.Store.Get(b.ptr.Kind, b.ptr.ID)
	if !ok {
		return operation.Operation{}, fmt.Errorf("%w: %s:%s", store.ErrNotFound, b.ptr.Kind, b.ptr.ID)
	}
	rel, ok := b.session.Resolver.Registry().SlotOf(b.ptr.Kind, rec)
	if !ok {
		return operation.Operation{}, fmt.Errorf("%w: %s:%s has no child slot", store.ErrUnsupportedKind, b.ptr.Kind, b.ptr.ID)
	}
	if rel.TemplatesOnly {
		child, ok := b.session.Store.Get(rel.ChildKind, childID)
		if !ok || !child.IsTemplate {
			return operation.Operation{}, fmt.Errorf("%w: %s:%s is not a template of %s", store.ErrNotAChild, rel.ChildKind, childID, b.ptr.ID)
		}
	}

	slot := rec.Slot(rel.Slot)
	next, instr := splice.Splice(*slot, childID, pos)
	*slot = next
	return instr.Operation(b.ptr.Kind, b.ptr.ID, rel.Slot, childID), nil
}

// AddToParentChildArray moves the builder's record to pos inside its
// parent's slot.
func (b *Builder) AddToParentChildArray(ctx context.Context, pos splice.Position) (operation.Operation, error) {
	rec, ok := b.session.Store.Get(b.ptr.Kind, b.ptr.ID)
	if !ok {
		return operation.Operation{}, fmt.Errorf("%w: %s:%s", store.ErrNotFound, b.ptr.Kind, b.ptr.ID)
	}
	parent, ok := rec.Parent()
	if !ok {
		return operation.Operation{}, fmt.Errorf("%w: %s:%s has no parent", store.ErrNotFound, b.ptr.Kind, b.ptr.ID)
	}
	pb := b.session.Builder(parent.Kind, parent.ID)
	if err := pb.EnsureResident(ctx); err != nil {
		return operation.Operation{}, err
	}
	return pb.AddToChildArray(b.ptr.ID, pos)
}

// UpdateLocally applies the keys of patch listed in allowed, or every key
// when allowed is empty, to the builder's record and returns the update
// operation. User settings are addressed through their settings map.
func (b *Builder) UpdateLocally(patch store.Patch, allowed ...string) (operation.Operation, error) {
	rec, ok := b.session.Store.Get(b.ptr.Kind, b.ptr.ID)
	if !ok {
		return operation.Operation{}, fmt.Errorf("%w: %s:%s", store.ErrNotFound, b.ptr.Kind, b.ptr.ID)
	}

	filtered := patch
	if len(allowed) > 0 {
		filtered = store.Patch{}
		for _, k := range allowed {
			if v, ok := patch[k]; ok {
				filtered[k] = v
			}
		}
	}

	if b.ptr.Kind == store.KindUserSettings {
		op := operation.Update(b.ptr.Kind, b.ptr.ID, []string{"settings"}, filtered)
		if err := operation.Apply(rec, op); err != nil {
			return operation.Operation{}, err
		}
		rec.Version++
		return op, nil
	}
	return b.mutate(b.ptr.Kind, rec, filtered)
}

// Execute flushes ops through the session executor, or pushes them onto the
// session stack when the session or the call defers.
func (b *Builder) Execute(ctx context.Context, ops []operation.Operation, deferred bool) error {
	return b.execute(ctx, ops, deferred)
}

func (b *Builder) execute(ctx context.Context, ops []operation.Operation, deferred bool) error {
	if len(ops) == 0 {
		return nil
	}
	if deferred || b.session.Config.Defer {
		b.session.Stack.Push(ops...)
		return nil
	}
	ops = operation.Compact(ops)
	return remote.Flush(ctx, b.session.Executor, ops, operation.Affected(ops))
}

func position(arr []string, id string) int {
	for i, v := range arr {
		if v == id {
			return i
		}
	}
	return -1
}
