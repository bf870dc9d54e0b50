package document

import (
	"context"
	"sort"

	"github.com/jacentio/arbor/materialize"
	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/txn"
)

var collectionFields = []string{"name", "icon", "description", "cover", "format"}

// Collection is a handle on a collection.
type Collection struct {
	*handle
}

// Update changes the collection's name, icon, description or cover.
func (c *Collection) Update(ctx context.Context, patch store.Patch) error {
	return c.update(ctx, patch, collectionFields...)
}

// Delete soft-deletes the collection.
func (c *Collection) Delete(ctx context.Context) error {
	return c.update(ctx, store.Patch{"alive": false})
}

// CreateTemplates creates template pages linked into template_pages.
func (c *Collection) CreateTemplates(ctx context.Context, nodes ...materialize.Node) (*materialize.Index, error) {
	nodes = append([]materialize.Node(nil), nodes...)
	for i := range nodes {
		nodes[i].IsTemplate = true
	}
	return c.create(ctx, nodes)
}

// CreateRows creates row pages. Rows are not linked into any slot.
func (c *Collection) CreateRows(ctx context.Context, nodes ...materialize.Node) (*materialize.Index, error) {
	nodes = append([]materialize.Node(nil), nodes...)
	for i := range nodes {
		nodes[i].IsTemplate = false
	}
	return c.create(ctx, nodes)
}

// Templates returns the selected template pages.
func (c *Collection) Templates(ctx context.Context, sel txn.Selector) ([]*store.Record, error) {
	return c.children(ctx, sel, txn.IterateOptions{})
}

// Rows returns the selected live rows, ordered by id.
func (c *Collection) Rows(ctx context.Context, sel txn.Selector) ([]*store.Record, error) {
	opts, err := c.rows(ctx)
	if err != nil {
		return nil, err
	}
	return c.children(ctx, sel, opts)
}

// UpdateRows patches the selected rows.
func (c *Collection) UpdateRows(ctx context.Context, sel txn.Selector, patch store.Patch) (*txn.Result, error) {
	opts, err := c.rows(ctx)
	if err != nil {
		return nil, err
	}
	return c.b.UpdateIterate(ctx, sel, txn.UpdateOptions{IterateOptions: opts, Patch: patch})
}

// DeleteRows soft-deletes the selected rows.
func (c *Collection) DeleteRows(ctx context.Context, sel txn.Selector) (*txn.Result, error) {
	opts, err := c.rows(ctx)
	if err != nil {
		return nil, err
	}
	return c.b.DeleteIterate(ctx, sel, txn.UpdateOptions{IterateOptions: opts})
}

// rows returns iteration options sourcing the collection's live rows.
func (c *Collection) rows(ctx context.Context) (txn.IterateOptions, error) {
	if _, err := c.Get(ctx); err != nil {
		return txn.IterateOptions{}, err
	}
	ids := []string{}
	for id, rec := range c.c.store.Snapshot(store.KindBlock) {
		if rec.Alive && !rec.IsTemplate && rec.ParentID == c.ID() && rec.ParentTable == store.KindCollection {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return txn.IterateOptions{ChildIDs: ids, ChildKind: store.KindBlock}, nil
}
