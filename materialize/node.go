package materialize

import "errors"

// Node types handled beyond plain leaf blocks.
const (
	TypeLinkedDB   = "linked_db"
	TypeLinkToPage = "link_to_page"
)

var (
	// ErrInvalidNode is returned for a node missing a field its type needs.
	ErrInvalidNode = errors.New("arbor: invalid node")

	// ErrUnknownProperty is returned when a view references a property the
	// collection schema does not define.
	ErrUnknownProperty = errors.New("arbor: unknown property")

	// ErrUnsupportedPropertyType is returned when a view groups or lays out
	// by a property of the wrong type.
	ErrUnsupportedPropertyType = errors.New("arbor: unsupported property type")

	// ErrUnsupportedView is returned for an unknown view type.
	ErrUnsupportedView = errors.New("arbor: unsupported view type")
)

// Node describes one record to create. Which fields apply depends on Type.
type Node struct {
	// ID is used as the record id when set. Default: a generated uuid.
	ID         string
	Type       string
	Properties map[string]any
	Format     map[string]any

	// IsTemplate links a page created under a collection into its
	// template_pages slot.
	IsTemplate bool

	// Private grants the page to the creating user instead of the space.
	Private bool

	// Contents holds the nested blocks of a page, the shallow contents of a
	// factory, or one subtree per column of a column_list.
	Contents []Node

	// Collection describes the collection a collection_view or
	// collection_view_page block owns.
	Collection *CollectionSpec

	// Views are created for collection blocks and linked databases.
	Views []ViewSpec

	// Rows are created as pages under the new collection.
	Rows []Node

	// CollectionID names the resident collection a linked_db shows.
	CollectionID string

	// PageID is the page a link_to_page points at.
	PageID string
}

// CollectionSpec describes a new collection.
type CollectionSpec struct {
	ID     string
	Name   string
	Icon   string
	Cover  string
	Schema []Property
}

// Property is one schema column.
type Property struct {
	// ID is the schema key. Title properties are always keyed "title".
	ID      string
	Name    string
	Type    string
	Options []Option
	Formula map[string]any
}

// Option is a select or multi_select choice.
type Option struct {
	ID    string
	Value string
	Color string
}

// ViewSpec describes a collection view.
type ViewSpec struct {
	ID   string
	Type string
	Name string

	// FilterOperator joins Filters. Default: "and".
	FilterOperator string
	Filters        []Filter

	// Properties lists the displayed columns in order. Default: every
	// schema property, visible.
	Properties []ViewProperty

	// GroupBy, CalendarBy and TimelineBy name the layout property of
	// board, calendar and timeline views.
	GroupBy    string
	CalendarBy string
	TimelineBy string
}

// ViewProperty configures one column of a view, referenced by name.
type ViewProperty struct {
	Property    string
	Hidden      bool
	Width       int
	Sort        string
	Aggregation string
}

// Filter is one view filter, referenced by property name.
type Filter struct {
	Property  string
	Operator  string
	ValueType string
	Value     any
}
