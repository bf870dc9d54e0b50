package store

import (
	"time"
)

// Kind identifies the table a record lives in.
type Kind string

const (
	KindBlock          Kind = "block"
	KindCollection     Kind = "collection"
	KindCollectionView Kind = "collection_view"
	KindSpace          Kind = "space"
	KindSpaceView      Kind = "space_view"
	KindUserRoot       Kind = "user_root"
	KindNotionUser     Kind = "notion_user"
	KindUserSettings   Kind = "user_settings"
)

var kinds = []Kind{
	KindBlock,
	KindCollection,
	KindCollectionView,
	KindSpace,
	KindSpaceView,
	KindUserRoot,
	KindNotionUser,
	KindUserSettings,
}

// Kinds returns every known kind in a stable order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Block sub-types with structural meaning. Any other type is a leaf block.
const (
	TypePage               = "page"
	TypeCollectionView     = "collection_view"
	TypeCollectionViewPage = "collection_view_page"
	TypeColumn             = "column"
	TypeColumnList         = "column_list"
	TypeFactory            = "factory"
)

// Slot field names.
const (
	SlotContent         = "content"
	SlotViewIDs         = "view_ids"
	SlotPages           = "pages"
	SlotSpaceViews      = "space_views"
	SlotTemplatePages   = "template_pages"
	SlotBookmarkedPages = "bookmarked_pages"
	SlotContents        = "contents"
)

// Pointer addresses a record by id and kind.
type Pointer struct {
	ID   string
	Kind Kind
}

// Record is the cached shape shared by every kind. Fields a kind does not use
// stay at their zero value; unmodeled fields are kept in Extra.
type Record struct {
	ID                string `dynamodbav:"id"`
	Type              string `dynamodbav:"type,omitempty"`
	ParentID          string `dynamodbav:"parent_id,omitempty"`
	ParentTable       Kind   `dynamodbav:"parent_table,omitempty"`
	Alive             bool   `dynamodbav:"alive"`
	Version           int64  `dynamodbav:"version"`
	CreatedTime       int64  `dynamodbav:"created_time,omitempty"`
	CreatedByID       string `dynamodbav:"created_by_id,omitempty"`
	CreatedByTable    string `dynamodbav:"created_by_table,omitempty"`
	LastEditedTime    int64  `dynamodbav:"last_edited_time,omitempty"`
	LastEditedByID    string `dynamodbav:"last_edited_by_id,omitempty"`
	LastEditedByTable string `dynamodbav:"last_edited_by_table,omitempty"`
	SpaceID           string `dynamodbav:"space_id,omitempty"`
	ShardID           int64  `dynamodbav:"shard_id,omitempty"`

	Content         []string `dynamodbav:"content,omitempty"`
	ViewIDs         []string `dynamodbav:"view_ids,omitempty"`
	CollectionID    string   `dynamodbav:"collection_id,omitempty"`
	Pages           []string `dynamodbav:"pages,omitempty"`
	SpaceViews      []string `dynamodbav:"space_views,omitempty"`
	TemplatePages   []string `dynamodbav:"template_pages,omitempty"`
	BookmarkedPages []string `dynamodbav:"bookmarked_pages,omitempty"`
	Contents        []string `dynamodbav:"contents,omitempty"`

	IsTemplate  bool             `dynamodbav:"is_template,omitempty"`
	Properties  map[string]any   `dynamodbav:"properties,omitempty"`
	Format      map[string]any   `dynamodbav:"format,omitempty"`
	Name        any              `dynamodbav:"name,omitempty"`
	Schema      map[string]any   `dynamodbav:"schema,omitempty"`
	Query2      map[string]any   `dynamodbav:"query2,omitempty"`
	Permissions []map[string]any `dynamodbav:"permissions,omitempty"`
	Settings    map[string]any   `dynamodbav:"settings,omitempty"`

	// Extra holds top-level fields the struct does not model.
	Extra map[string]any `dynamodbav:"-"`
}

// Slot returns a pointer to the named ordered child array, or nil when the
// record has no slot by that name.
func (r *Record) Slot(path string) *[]string {
	switch path {
	case SlotContent:
		return &r.Content
	case SlotViewIDs:
		return &r.ViewIDs
	case SlotPages:
		return &r.Pages
	case SlotSpaceViews:
		return &r.SpaceViews
	case SlotTemplatePages:
		return &r.TemplatePages
	case SlotBookmarkedPages:
		return &r.BookmarkedPages
	case SlotContents:
		return &r.Contents
	}
	return nil
}

// Parent returns the pointer to the record's container, if any.
func (r *Record) Parent() (Pointer, bool) {
	if r.ParentID == "" || r.ParentTable == "" {
		return Pointer{}, false
	}
	return Pointer{ID: r.ParentID, Kind: r.ParentTable}, true
}

// Title returns the first text run of the record's title property or, for
// collections and views, of its name.
func (r *Record) Title() string {
	if name := textOf(r.Name); name != "" {
		return name
	}
	return TitleOf(r.Properties)
}

// TitleOf extracts the first text run from a properties map shaped like
// {"title": [["text", ...], ...]}.
func TitleOf(props map[string]any) string {
	if props == nil {
		return ""
	}
	return textOf(props["title"])
}

// textOf returns the first run of a rich-text value, or a plain string.
func textOf(v any) string {
	switch text := v.(type) {
	case string:
		return text
	case [][]string:
		if len(text) > 0 && len(text[0]) > 0 {
			return text[0][0]
		}
	case []any:
		if len(text) == 0 {
			return ""
		}
		switch run := text[0].(type) {
		case []any:
			if len(run) > 0 {
				if s, ok := run[0].(string); ok {
					return s
				}
			}
		case []string:
			if len(run) > 0 {
				return run[0]
			}
		}
	}
	return ""
}

// Patch is a set of top-level field updates.
type Patch map[string]any

// Merge returns a new patch holding p overlaid with other.
func (p Patch) Merge(other Patch) Patch {
	out := make(Patch, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// EditedBy returns the edit-metadata patch applied on every local mutation.
func EditedBy(userID string, now time.Time) Patch {
	return Patch{
		"last_edited_time":     now.UnixMilli(),
		"last_edited_by_table": string(KindNotionUser),
		"last_edited_by_id":    userID,
	}
}

// Wrapper is the envelope a record arrives in from the remote service.
type Wrapper struct {
	Role  string
	Value *Record
}

// RecordMap is a partial graph keyed by kind then id.
type RecordMap map[Kind]map[string]Wrapper

// Add stores rec under kind in the map.
func (m RecordMap) Add(kind Kind, rec *Record) {
	if m[kind] == nil {
		m[kind] = make(map[string]Wrapper)
	}
	m[kind][rec.ID] = Wrapper{Value: rec}
}

// Len returns the total number of records in the map.
func (m RecordMap) Len() int {
	n := 0
	for _, byID := range m {
		n += len(byID)
	}
	return n
}
