package document

import (
	"context"

	"github.com/jacentio/arbor/materialize"
	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/txn"
)

var spaceFields = []string{
	"name",
	"icon",
	"beta_enabled",
	"disable_public_access",
	"disable_guests",
	"disable_move_to_space",
	"disable_export",
	"invite_link_enabled",
}

// Space is a handle on a space.
type Space struct {
	*handle
}

// Update changes the space's settings.
func (s *Space) Update(ctx context.Context, patch store.Patch) error {
	return s.update(ctx, patch, spaceFields...)
}

// Delete soft-deletes the space.
func (s *Space) Delete(ctx context.Context) error {
	return s.update(ctx, store.Patch{"alive": false})
}

// CreatePages creates nodes at the end of the space's pages.
func (s *Space) CreatePages(ctx context.Context, nodes ...materialize.Node) (*materialize.Index, error) {
	return s.create(ctx, nodes)
}

// Pages returns the selected top-level pages of the space.
func (s *Space) Pages(ctx context.Context, sel txn.Selector) ([]*store.Record, error) {
	return s.children(ctx, sel, txn.IterateOptions{})
}

// UpdatePages patches the selected top-level pages.
func (s *Space) UpdatePages(ctx context.Context, sel txn.Selector, opts txn.UpdateOptions) (*txn.Result, error) {
	return s.b.UpdateIterate(ctx, sel, opts)
}

// DeletePages soft-deletes the selected top-level pages.
func (s *Space) DeletePages(ctx context.Context, sel txn.Selector) (*txn.Result, error) {
	return s.b.DeleteIterate(ctx, sel, txn.UpdateOptions{})
}
