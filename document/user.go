package document

import (
	"context"

	"github.com/jacentio/arbor/operation"
	"github.com/jacentio/arbor/splice"
	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/txn"
)

var spaceViewFields = []string{"notify_desktop", "notify_email", "notify_mobile", "joined", "visited_templates"}

// UserRoot is a handle on the root record of a user.
type UserRoot struct {
	*handle
}

// SpaceViews returns the selected space views of the user.
func (u *UserRoot) SpaceViews(ctx context.Context, sel txn.Selector) ([]*store.Record, error) {
	return u.children(ctx, sel, txn.IterateOptions{})
}

// UpdateSpaceViews patches the selected space views.
func (u *UserRoot) UpdateSpaceViews(ctx context.Context, sel txn.Selector, opts txn.UpdateOptions) (*txn.Result, error) {
	return u.b.UpdateIterate(ctx, sel, opts)
}

// SpaceView is a handle on a user's view of one space.
type SpaceView struct {
	*handle
}

// Update changes the space view's notification settings.
func (sv *SpaceView) Update(ctx context.Context, patch store.Patch) error {
	return sv.update(ctx, patch, spaceViewFields...)
}

// Bookmark adds (Bookmarked) or removes a page from the bookmarks.
type Bookmark struct {
	PageID     string
	Bookmarked bool
}

// UpdateBookmarkedPages applies the changes in order. Bookmarking a page
// already bookmarked, or removing one that is not, emits nothing.
func (sv *SpaceView) UpdateBookmarkedPages(ctx context.Context, changes ...Bookmark) error {
	rec, err := sv.Get(ctx)
	if err != nil {
		return err
	}

	var ops []operation.Operation
	for _, ch := range changes {
		present := false
		for _, id := range rec.BookmarkedPages {
			if id == ch.PageID {
				present = true
				break
			}
		}
		switch {
		case ch.Bookmarked && !present:
			op, err := sv.b.AddToChildArray(ch.PageID, splice.End())
			if err != nil {
				return err
			}
			ops = append(ops, op)
		case !ch.Bookmarked && present:
			rm := operation.ListRemove(store.KindSpaceView, rec.ID, store.SlotBookmarkedPages, ch.PageID)
			if rec.BookmarkedPages, err = operation.ApplyList(rec.BookmarkedPages, rm); err != nil {
				return err
			}
			ops = append(ops, rm)
		}
	}
	return sv.b.Execute(ctx, ops, false)
}

// UserSettings is a handle on a user's settings record.
type UserSettings struct {
	*handle
}

// Update merges patch into the settings map.
func (us *UserSettings) Update(ctx context.Context, patch store.Patch) error {
	return us.update(ctx, patch)
}
