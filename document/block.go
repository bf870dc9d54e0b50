package document

import (
	"context"
	"fmt"

	"github.com/jacentio/arbor/materialize"
	"github.com/jacentio/arbor/operation"
	"github.com/jacentio/arbor/splice"
	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/txn"
)

var blockFields = []string{"properties", "format"}

// Block is a handle on one block.
type Block struct {
	*handle
}

// Update changes the block's properties and format.
func (b *Block) Update(ctx context.Context, patch store.Patch) error {
	return b.update(ctx, patch, blockFields...)
}

// Delete soft-deletes the block and unlinks it from its parent.
func (b *Block) Delete(ctx context.Context) error {
	rec, err := b.Get(ctx)
	if err != nil {
		return err
	}
	parent, ok := rec.Parent()
	if !ok {
		return fmt.Errorf("%w: %s:%s has no parent", store.ErrNotFound, store.KindBlock, rec.ID)
	}

	var opts txn.UpdateOptions
	if parent.Kind == store.KindCollection && !rec.IsTemplate {
		// Rows are not listed in any slot of their collection.
		opts.ChildIDs = []string{rec.ID}
		opts.ChildKind = store.KindBlock
	}
	res, err := b.c.session.Builder(parent.Kind, parent.ID).DeleteIterate(ctx, txn.IDs(rec.ID), opts)
	if err != nil {
		return err
	}
	return res.Warnings
}

// Reposition moves the block to pos within its parent's slot.
func (b *Block) Reposition(ctx context.Context, pos splice.Position) error {
	if _, err := b.Get(ctx); err != nil {
		return err
	}
	op, err := b.b.AddToParentChildArray(ctx, pos)
	if err != nil {
		return err
	}
	return b.b.Execute(ctx, []operation.Operation{op}, false)
}

// Page is a handle on a page block.
type Page struct {
	Block
}

// CreateBlocks creates nodes at the end of the page.
func (p *Page) CreateBlocks(ctx context.Context, nodes ...materialize.Node) (*materialize.Index, error) {
	return p.create(ctx, nodes)
}

// Blocks returns the selected children of the page.
func (p *Page) Blocks(ctx context.Context, sel txn.Selector) ([]*store.Record, error) {
	return p.children(ctx, sel, txn.IterateOptions{})
}

// UpdateBlocks patches the selected children of the page.
func (p *Page) UpdateBlocks(ctx context.Context, sel txn.Selector, opts txn.UpdateOptions) (*txn.Result, error) {
	return p.b.UpdateIterate(ctx, sel, opts)
}

// DeleteBlocks soft-deletes the selected children of the page.
func (p *Page) DeleteBlocks(ctx context.Context, sel txn.Selector) (*txn.Result, error) {
	return p.b.DeleteIterate(ctx, sel, txn.UpdateOptions{})
}

// CollectionBlock is a handle on a collection_view or collection_view_page
// block.
type CollectionBlock struct {
	Block
}

// Collection returns a handle on the block's collection.
func (cb *CollectionBlock) Collection(ctx context.Context) (*Collection, error) {
	rec, err := cb.Get(ctx)
	if err != nil {
		return nil, err
	}
	if rec.CollectionID == "" {
		return nil, fmt.Errorf("%w: %s:%s is not a collection block", store.ErrUnsupportedKind, store.KindBlock, rec.ID)
	}
	return cb.c.Collection(rec.CollectionID), nil
}

// Views returns the selected views of the block.
func (cb *CollectionBlock) Views(ctx context.Context, sel txn.Selector) ([]*store.Record, error) {
	return cb.children(ctx, sel, txn.IterateOptions{})
}

// CreateViews adds views at the end of the block's view list.
func (cb *CollectionBlock) CreateViews(ctx context.Context, specs ...materialize.ViewSpec) (*materialize.Index, error) {
	if _, err := cb.Get(ctx); err != nil {
		return nil, err
	}
	res, err := cb.c.materializer.CreateViews(cb.ID(), specs)
	if err != nil {
		return nil, err
	}
	return res.Index, cb.b.Execute(ctx, res.Operations, false)
}

// DeleteViews soft-deletes the selected views and unlinks them.
func (cb *CollectionBlock) DeleteViews(ctx context.Context, sel txn.Selector) (*txn.Result, error) {
	return cb.b.DeleteIterate(ctx, sel, txn.UpdateOptions{})
}
