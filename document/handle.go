package document

import (
	"context"
	"fmt"

	"github.com/jacentio/arbor/materialize"
	"github.com/jacentio/arbor/operation"
	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/txn"
)

// handle is the state shared by every typed handle.
type handle struct {
	c *Client
	b *txn.Builder
}

// ID returns the id of the handled record.
func (h *handle) ID() string { return h.b.Pointer().ID }

// Get loads the record and its dependencies on first use, then returns it
// from the store. Deleted records are returned too.
func (h *handle) Get(ctx context.Context) (*store.Record, error) {
	if err := h.b.EnsureResident(ctx); err != nil {
		return nil, err
	}
	rec, ok := h.b.Record()
	if !ok {
		p := h.b.Pointer()
		return nil, fmt.Errorf("%w: %s:%s", store.ErrNotFound, p.Kind, p.ID)
	}
	return rec, nil
}

// update applies the allowed keys of patch and sends the operation.
func (h *handle) update(ctx context.Context, patch store.Patch, allowed ...string) error {
	if _, err := h.Get(ctx); err != nil {
		return err
	}
	op, err := h.b.UpdateLocally(patch, allowed...)
	if err != nil {
		return err
	}
	return h.b.Execute(ctx, []operation.Operation{op}, false)
}

// create materializes nodes under the handled record and sends the batch.
func (h *handle) create(ctx context.Context, nodes []materialize.Node) (*materialize.Index, error) {
	if _, err := h.Get(ctx); err != nil {
		return nil, err
	}
	res, err := h.c.materializer.Materialize(nodes, h.b.Pointer())
	if err != nil {
		return nil, err
	}
	if err := h.b.Execute(ctx, res.Operations, false); err != nil {
		return res.Index, err
	}
	return res.Index, nil
}

// children runs a read-only iteration over the record's slot.
func (h *handle) children(ctx context.Context, sel txn.Selector, opts txn.IterateOptions) ([]*store.Record, error) {
	res, err := h.b.GetIterate(ctx, sel, opts)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}
