package store

// Relationship defines the ordered child slot a parent kind exposes.
type Relationship struct {
	// ParentKind is the kind owning the slot (e.g., "space").
	ParentKind Kind

	// BlockTypes restricts a block relationship to these sub-types.
	// Empty for non-block kinds.
	BlockTypes []string

	// Slot is the field holding the ordered child ids (e.g., "pages").
	Slot string

	// ChildKind is the kind of the ids listed in the slot.
	ChildKind Kind

	// TemplatesOnly marks slots that only link template-flagged children.
	TemplatesOnly bool
}

func (rel Relationship) matches(rec *Record) bool {
	if len(rel.BlockTypes) == 0 {
		return true
	}
	if rec == nil {
		return false
	}
	for _, t := range rel.BlockTypes {
		if rec.Type == t {
			return true
		}
	}
	return false
}

// Registry holds the slot table consulted by resolution, iteration and linking.
type Registry struct {
	relationships []Relationship
	byParent      map[Kind][]Relationship
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		relationships: []Relationship{},
		byParent:      make(map[Kind][]Relationship),
	}
}

// DefaultRegistry returns the slot table of the document store.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Relationship{
		ParentKind: KindBlock,
		BlockTypes: []string{TypePage, TypeColumn, TypeColumnList},
		Slot:       SlotContent,
		ChildKind:  KindBlock,
	})
	r.Register(Relationship{
		ParentKind: KindBlock,
		BlockTypes: []string{TypeCollectionView, TypeCollectionViewPage},
		Slot:       SlotViewIDs,
		ChildKind:  KindCollectionView,
	})
	r.Register(Relationship{
		ParentKind: KindBlock,
		BlockTypes: []string{TypeFactory},
		Slot:       SlotContents,
		ChildKind:  KindBlock,
	})
	r.Register(Relationship{ParentKind: KindSpace, Slot: SlotPages, ChildKind: KindBlock})
	r.Register(Relationship{ParentKind: KindUserRoot, Slot: SlotSpaceViews, ChildKind: KindSpaceView})
	r.Register(Relationship{ParentKind: KindCollection, Slot: SlotTemplatePages, ChildKind: KindBlock, TemplatesOnly: true})
	r.Register(Relationship{ParentKind: KindSpaceView, Slot: SlotBookmarkedPages, ChildKind: KindBlock})
	return r
}

// Register adds a relationship to the registry.
func (r *Registry) Register(rel Relationship) {
	r.relationships = append(r.relationships, rel)
	r.byParent[rel.ParentKind] = append(r.byParent[rel.ParentKind], rel)
}

// ChildrenOf returns all relationships registered for a parent kind.
func (r *Registry) ChildrenOf(kind Kind) []Relationship {
	return r.byParent[kind]
}

// AllRelationships returns all registered relationships.
func (r *Registry) AllRelationships() []Relationship {
	return r.relationships
}

// HasChildren returns true if the parent kind has any registered slot.
func (r *Registry) HasChildren(kind Kind) bool {
	return len(r.byParent[kind]) > 0
}

// SlotOf returns the slot the record of kind exposes.
func (r *Registry) SlotOf(kind Kind, rec *Record) (Relationship, bool) {
	for _, rel := range r.byParent[kind] {
		if rel.matches(rec) {
			return rel, true
		}
	}
	return Relationship{}, false
}

// LinkSlot returns the slot a new child of the record should be linked into.
// Template-only slots accept a child only when template is set. Block parents
// whose record is not resident fall back to the content slot.
func (r *Registry) LinkSlot(kind Kind, rec *Record, template bool) (Relationship, bool) {
	if kind == KindBlock && rec == nil {
		return Relationship{ParentKind: KindBlock, Slot: SlotContent, ChildKind: KindBlock}, true
	}
	rel, ok := r.SlotOf(kind, rec)
	if !ok || (rel.TemplatesOnly && !template) {
		return Relationship{}, false
	}
	return rel, true
}
