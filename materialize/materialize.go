// Package materialize expands nested creation requests into new records and
// the operations that create and link them.
package materialize

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/arbor/operation"
	"github.com/jacentio/arbor/splice"
	"github.com/jacentio/arbor/store"
)

// Materializer creates record subtrees in a Store. Zero-valued fields other
// than Store fall back to defaults.
type Materializer struct {
	Store    *store.Store
	Registry *store.Registry

	UserID  string
	SpaceID string
	ShardID int64

	// Now stamps the batch. Default: time.Now.
	Now func() time.Time
	// NewID generates record ids. Default: uuid.NewString.
	NewID func() string

	Logger *slog.Logger
}

// Result is the outcome of one materialization.
type Result struct {
	// Operations holds the batch in depth-first pre-order: each record's
	// create, then its descendants, then its link into the parent.
	Operations []operation.Operation
	// Affected lists every record the batch touches.
	Affected []store.Pointer
	Index    *Index
}

type rule func(b *batch, n Node, id string, parent store.Pointer) error

// rules dispatches node types. Types without an entry are leaf blocks.
var rules map[string]rule

func init() {
	rules = map[string]rule{
		store.TypePage:               (*batch).page,
		store.TypeCollectionView:     (*batch).collectionBlock,
		store.TypeCollectionViewPage: (*batch).collectionBlock,
		store.TypeColumnList:         (*batch).columnList,
		store.TypeColumn:             (*batch).column,
		store.TypeFactory:            (*batch).factory,
		TypeLinkedDB:                 (*batch).linkedDB,
	}
}

// batch carries the state of one Materialize call. journal holds the
// inverse of every store mutation, newest last.
type batch struct {
	m       Materializer
	at      int64
	ops     []operation.Operation
	index   *Index
	journal []func()
}

func (m *Materializer) begin() *batch {
	cfg := *m
	if cfg.Registry == nil {
		cfg.Registry = store.DefaultRegistry()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &batch{m: cfg, at: cfg.Now().UnixMilli(), index: newIndex()}
}

// rollback reverts the store mutations of the batch.
func (b *batch) rollback() {
	for i := len(b.journal) - 1; i >= 0; i-- {
		b.journal[i]()
	}
	b.journal = nil
}

func (b *batch) result() *Result {
	return &Result{
		Operations: b.ops,
		Affected:   operation.Affected(b.ops),
		Index:      b.index,
	}
}

// Materialize creates nodes, in order, under parent. Every created record
// shares one creation timestamp. A failing call leaves the store as it was.
func (m *Materializer) Materialize(nodes []Node, parent store.Pointer) (*Result, error) {
	switch parent.Kind {
	case store.KindBlock, store.KindSpace, store.KindCollection:
	default:
		return nil, fmt.Errorf("%w: cannot create blocks under %s", store.ErrUnsupportedKind, parent.Kind)
	}
	b := m.begin()
	if err := b.nodes(nodes, parent); err != nil {
		b.rollback()
		return nil, err
	}
	return b.result(), nil
}

// CreateViews adds views to the resident collection block blockID, linking
// each at the end of its view_ids.
func (m *Materializer) CreateViews(blockID string, specs []ViewSpec) (*Result, error) {
	blk, ok := m.Store.Get(store.KindBlock, blockID)
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", store.ErrNotFound, store.KindBlock, blockID)
	}
	if blk.CollectionID == "" {
		return nil, fmt.Errorf("%w: %s:%s is not a collection block", store.ErrUnsupportedKind, store.KindBlock, blockID)
	}
	coll, ok := m.Store.Get(store.KindCollection, blk.CollectionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", store.ErrNotFound, store.KindCollection, blk.CollectionID)
	}

	b := m.begin()
	views, err := b.views(schemaOf(coll), specs, blockID)
	if err != nil {
		return nil, err
	}
	parent := store.Pointer{ID: blockID, Kind: store.KindBlock}
	for _, v := range views {
		if err := b.create(store.KindCollectionView, v, GroupView); err != nil {
			b.rollback()
			return nil, err
		}
		b.splice(parent, blk, store.SlotViewIDs, v.ID)
	}
	return b.result(), nil
}

func (b *batch) nodes(nodes []Node, parent store.Pointer) error {
	for _, n := range nodes {
		if err := b.node(n, parent); err != nil {
			return err
		}
	}
	return nil
}

func (b *batch) node(n Node, parent store.Pointer) error {
	if n.Type == "" {
		return fmt.Errorf("%w: node without a type", ErrInvalidNode)
	}
	if n.Type == TypeLinkToPage {
		if n.PageID == "" {
			return fmt.Errorf("%w: %s without a page id", ErrInvalidNode, TypeLinkToPage)
		}
		return b.link(parent, n.PageID, false)
	}

	id, err := b.id(store.KindBlock, n.ID)
	if err != nil {
		return err
	}
	r, ok := rules[n.Type]
	if !ok {
		r = (*batch).leaf
	}
	if err := r(b, n, id, parent); err != nil {
		return err
	}
	return b.link(parent, id, n.IsTemplate)
}

// id returns requested, or a new id when it is empty. A requested id must
// not be resident under kind.
func (b *batch) id(kind store.Kind, requested string) (string, error) {
	if requested == "" {
		return b.m.NewID(), nil
	}
	if _, exists := b.m.Store.Get(kind, requested); exists {
		return "", fmt.Errorf("%w: %s:%s", store.ErrAlreadyExists, kind, requested)
	}
	return requested, nil
}

// stamped returns a live record carrying the batch metadata.
func (b *batch) stamped(id string) *store.Record {
	return &store.Record{
		ID:                id,
		Alive:             true,
		CreatedTime:       b.at,
		CreatedByID:       b.m.UserID,
		CreatedByTable:    string(store.KindNotionUser),
		LastEditedTime:    b.at,
		LastEditedByID:    b.m.UserID,
		LastEditedByTable: string(store.KindNotionUser),
		SpaceID:           b.m.SpaceID,
		ShardID:           b.m.ShardID,
	}
}

func (b *batch) block(n Node, id string, parent store.Pointer) *store.Record {
	rec := b.stamped(id)
	rec.Type = n.Type
	rec.ParentID = parent.ID
	rec.ParentTable = parent.Kind
	rec.IsTemplate = isTemplate(n, parent)
	rec.Properties = n.Properties
	rec.Format = n.Format
	return rec
}

// isTemplate reports whether n is linked into its parent's template slot.
func isTemplate(n Node, parent store.Pointer) bool {
	return n.IsTemplate && parent.Kind == store.KindCollection
}

func (b *batch) permissions(private bool) []map[string]any {
	typ := "space_permission"
	if private {
		typ = "user_permission"
	}
	return []map[string]any{{"type": typ, "role": "editor", "user_id": b.m.UserID}}
}

// create stores rec and emits the set operation carrying its fields. The
// record is indexed under its title.
func (b *batch) create(kind store.Kind, rec *store.Record, group string) error {
	return b.createAs(kind, rec, group, rec.Title())
}

func (b *batch) createAs(kind store.Kind, rec *store.Record, group, label string) error {
	if _, exists := b.m.Store.Get(kind, rec.ID); exists {
		return fmt.Errorf("%w: %s:%s", store.ErrAlreadyExists, kind, rec.ID)
	}
	args, err := rec.Fields()
	if err != nil {
		return err
	}
	b.m.Store.Set(kind, rec.ID, rec)
	b.journal = append(b.journal, func() { b.m.Store.Delete(kind, rec.ID) })
	b.ops = append(b.ops, operation.Set(kind, rec.ID, nil, args))
	b.index.add(group, store.Pointer{ID: rec.ID, Kind: kind}, label)
	b.m.Logger.Debug("created record", "kind", kind, "type", rec.Type, "id", rec.ID)
	return nil
}

// link appends childID to the parent's slot. Block parents without a block
// slot of their own link into content; collection parents link templates
// only.
func (b *batch) link(parent store.Pointer, childID string, template bool) error {
	prec, _ := b.m.Store.Get(parent.Kind, parent.ID)
	rel, ok := b.m.Registry.LinkSlot(parent.Kind, prec, template)
	if parent.Kind == store.KindBlock && (!ok || rel.ChildKind != store.KindBlock) {
		rel, ok = store.Relationship{ParentKind: store.KindBlock, Slot: store.SlotContent, ChildKind: store.KindBlock}, true
	}
	if !ok {
		return nil
	}
	b.splice(parent, prec, rel.Slot, childID)
	return nil
}

// splice appends childID to the slot of the parent record prec, which may be
// nil when the parent is not resident, and emits the list operation.
func (b *batch) splice(parent store.Pointer, prec *store.Record, slot, childID string) {
	var container []string
	if prec != nil {
		container = *prec.Slot(slot)
	}
	next, instr := splice.Splice(container, childID, splice.End())
	if prec != nil {
		*prec.Slot(slot) = next
		b.journal = append(b.journal, func() { *prec.Slot(slot) = container })
	}
	b.ops = append(b.ops, instr.Operation(parent.Kind, parent.ID, slot, childID))
}

func (b *batch) leaf(n Node, id string, parent store.Pointer) error {
	return b.create(store.KindBlock, b.block(n, id, parent), n.Type)
}

func (b *batch) page(n Node, id string, parent store.Pointer) error {
	rec := b.block(n, id, parent)
	rec.Permissions = b.permissions(n.Private)
	if err := b.create(store.KindBlock, rec, n.Type); err != nil {
		return err
	}
	return b.nodes(n.Contents, store.Pointer{ID: id, Kind: store.KindBlock})
}

func (b *batch) column(n Node, id string, parent store.Pointer) error {
	if err := b.create(store.KindBlock, b.block(n, id, parent), n.Type); err != nil {
		return err
	}
	return b.nodes(n.Contents, store.Pointer{ID: id, Kind: store.KindBlock})
}

// columnList creates one column per content node, each holding that node's
// subtree.
func (b *batch) columnList(n Node, id string, parent store.Pointer) error {
	if err := b.create(store.KindBlock, b.block(n, id, parent), n.Type); err != nil {
		return err
	}
	self := store.Pointer{ID: id, Kind: store.KindBlock}
	ratio := 1 / float64(len(n.Contents))
	for _, content := range n.Contents {
		col := Node{
			Type:     store.TypeColumn,
			Format:   map[string]any{"column_ratio": ratio},
			Contents: []Node{content},
		}
		if err := b.node(col, self); err != nil {
			return err
		}
	}
	return nil
}

// factory creates its contents flat. Nested content of a factory child is
// not expanded.
func (b *batch) factory(n Node, id string, parent store.Pointer) error {
	rec := b.block(n, id, parent)
	children := make([]*store.Record, 0, len(n.Contents))
	for _, c := range n.Contents {
		if c.Type == "" {
			return fmt.Errorf("%w: factory content without a type", ErrInvalidNode)
		}
		cid, err := b.id(store.KindBlock, c.ID)
		if err != nil {
			return err
		}
		children = append(children, b.block(c, cid, store.Pointer{ID: id, Kind: store.KindBlock}))
		rec.Contents = append(rec.Contents, cid)
	}
	if err := b.create(store.KindBlock, rec, n.Type); err != nil {
		return err
	}
	for _, child := range children {
		if err := b.create(store.KindBlock, child, child.Type); err != nil {
			return err
		}
	}
	return nil
}

// collectionBlock creates the collection and its views, then the block
// showing them, then the rows.
func (b *batch) collectionBlock(n Node, id string, parent store.Pointer) error {
	if n.Collection == nil {
		return fmt.Errorf("%w: %s without a collection", ErrInvalidNode, n.Type)
	}
	spec := n.Collection
	collID, err := b.id(store.KindCollection, spec.ID)
	if err != nil {
		return err
	}
	schema, sm := buildSchema(spec.Schema, b.m.NewID)
	views, err := b.views(sm, n.Views, id)
	if err != nil {
		return err
	}

	coll := b.stamped(collID)
	coll.ParentID = id
	coll.ParentTable = store.KindBlock
	coll.Name = [][]string{{spec.Name}}
	coll.Schema = schema
	coll.Extra = map[string]any{"migrated": false}
	if spec.Icon != "" {
		coll.Extra["icon"] = spec.Icon
	}
	if spec.Cover != "" {
		coll.Extra["cover"] = spec.Cover
	}
	if err := b.create(store.KindCollection, coll, GroupCollection); err != nil {
		return err
	}
	for _, v := range views {
		if err := b.create(store.KindCollectionView, v, GroupView); err != nil {
			return err
		}
	}

	rec := b.block(n, id, parent)
	rec.CollectionID = collID
	rec.ViewIDs = viewIDs(views)
	if n.Type == store.TypeCollectionViewPage {
		rec.Permissions = b.permissions(n.Private)
	}
	if err := b.createAs(store.KindBlock, rec, n.Type, spec.Name); err != nil {
		return err
	}
	return b.nodes(n.Rows, store.Pointer{ID: collID, Kind: store.KindCollection})
}

// linkedDB creates a collection_view block with new views over a resident
// collection.
func (b *batch) linkedDB(n Node, id string, parent store.Pointer) error {
	coll, ok := b.m.Store.Get(store.KindCollection, n.CollectionID)
	if !ok {
		return fmt.Errorf("%w: %s:%s", store.ErrNotFound, store.KindCollection, n.CollectionID)
	}
	views, err := b.views(schemaOf(coll), n.Views, id)
	if err != nil {
		return err
	}
	for _, v := range views {
		if err := b.create(store.KindCollectionView, v, GroupView); err != nil {
			return err
		}
	}

	rec := b.stamped(id)
	rec.Type = store.TypeCollectionView
	rec.ParentID = parent.ID
	rec.ParentTable = parent.Kind
	rec.IsTemplate = isTemplate(n, parent)
	rec.CollectionID = coll.ID
	rec.ViewIDs = viewIDs(views)
	return b.createAs(store.KindBlock, rec, n.Type, coll.Title())
}

// views builds view records over sm without storing them.
func (b *batch) views(sm *schemaMap, specs []ViewSpec, blockID string) ([]*store.Record, error) {
	out := make([]*store.Record, 0, len(specs))
	for _, spec := range specs {
		query2, format, err := buildView(spec, sm)
		if err != nil {
			return nil, err
		}
		vid, err := b.id(store.KindCollectionView, spec.ID)
		if err != nil {
			return nil, err
		}
		v := b.stamped(vid)
		v.Type = spec.Type
		v.Name = spec.Name
		v.ParentID = blockID
		v.ParentTable = store.KindBlock
		v.Query2 = query2
		v.Format = format
		out = append(out, v)
	}
	return out, nil
}

func viewIDs(views []*store.Record) []string {
	ids := make([]string, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}
	return ids
}
