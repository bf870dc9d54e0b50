package document

import (
	"context"
	"fmt"

	"github.com/imdario/mergo"

	"github.com/jacentio/arbor/store"
)

// Sort orders a view by a schema property.
type Sort struct {
	Property  string
	Direction string
}

// FilterRule is one query2 filter on a schema property.
type FilterRule struct {
	Property  string
	Operator  string
	ValueType string
	Value     any
}

// Aggregation summarizes a schema property in the view footer.
type Aggregation struct {
	Property   string
	Aggregator string
}

// Column is one displayed property of a view.
type Column struct {
	Property string
	Visible  bool
	Width    int
}

// ViewUpdate changes a view. Properties are schema ids. Sorts and
// aggregations replace the entries of the same property and append the rest;
// filters are appended to the current filter group.
type ViewUpdate struct {
	Sorts        []Sort
	Filters      []FilterRule
	Aggregations []Aggregation

	// Columns replaces the view's <type>_properties.
	Columns []Column

	// Format is merged over the current format.
	Format map[string]any
}

// View is a handle on a collection view.
type View struct {
	*handle
}

// Update merges u into the view's query2 and format.
func (v *View) Update(ctx context.Context, u ViewUpdate) error {
	rec, err := v.Get(ctx)
	if err != nil {
		return err
	}

	patch := store.Patch{}
	if len(u.Sorts)+len(u.Filters)+len(u.Aggregations) > 0 {
		patch["query2"] = mergeQuery2(rec.Query2, u)
	}
	if len(u.Columns) > 0 || len(u.Format) > 0 {
		format, err := mergeFormat(rec.Type, rec.Format, u)
		if err != nil {
			return fmt.Errorf("merge format of %s: %w", rec.ID, err)
		}
		patch["format"] = format
	}
	if len(patch) == 0 {
		return nil
	}
	return v.update(ctx, patch)
}

func mergeQuery2(current map[string]any, u ViewUpdate) map[string]any {
	query2 := make(map[string]any, len(current)+3)
	for k, val := range current {
		query2[k] = val
	}

	if len(u.Sorts) > 0 {
		sorts := make([]map[string]any, len(u.Sorts))
		for i, s := range u.Sorts {
			sorts[i] = map[string]any{"property": s.Property, "direction": s.Direction}
		}
		query2["sort"] = mergeByProperty(query2["sort"], sorts)
	}
	if len(u.Aggregations) > 0 {
		aggs := make([]map[string]any, len(u.Aggregations))
		for i, a := range u.Aggregations {
			aggs[i] = map[string]any{"property": a.Property, "aggregator": a.Aggregator}
		}
		query2["aggregations"] = mergeByProperty(query2["aggregations"], aggs)
	}
	if len(u.Filters) > 0 {
		group := map[string]any{"operator": "and"}
		if cur, ok := query2["filter"].(map[string]any); ok {
			for k, val := range cur {
				group[k] = val
			}
		}
		filters, _ := group["filters"].([]any)
		filters = append([]any(nil), filters...)
		for _, f := range u.Filters {
			filters = append(filters, map[string]any{
				"property": f.Property,
				"filter": map[string]any{
					"operator": f.Operator,
					"value":    map[string]any{"type": f.ValueType, "value": f.Value},
				},
			})
		}
		group["filters"] = filters
		query2["filter"] = group
	}
	return query2
}

// mergeByProperty replaces the entries of current that share a property with
// an update, in place, and appends the rest.
func mergeByProperty(current any, updates []map[string]any) []any {
	list, _ := current.([]any)
	out := append([]any(nil), list...)
	for _, u := range updates {
		replaced := false
		for i, e := range out {
			if m, ok := e.(map[string]any); ok && m["property"] == u["property"] {
				out[i] = u
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, u)
		}
	}
	return out
}

func mergeFormat(viewType string, current map[string]any, u ViewUpdate) (map[string]any, error) {
	merged := make(map[string]any, len(current))
	for k, val := range current {
		merged[k] = val
	}

	changes := make(map[string]any, len(u.Format)+2)
	for k, val := range u.Format {
		changes[k] = val
	}
	if len(u.Columns) > 0 {
		cols := make([]any, len(u.Columns))
		for i, c := range u.Columns {
			col := map[string]any{"property": c.Property, "visible": c.Visible}
			if c.Width > 0 {
				col["width"] = c.Width
			}
			cols[i] = col
		}
		changes[viewType+"_properties"] = cols
		changes[viewType+"_wrap"] = true
	}

	if err := mergo.Merge(&merged, changes, mergo.WithOverride); err != nil {
		return nil, err
	}
	return merged, nil
}
