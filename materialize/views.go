package materialize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jacentio/arbor/store"
)

// viewRule lists what a view type carries in its query2.
type viewRule struct {
	aggregations bool
	layout       string
	layoutTypes  []string
}

var dateTypes = []string{"last_edited_time", "created_time", "date", "formula"}

var viewRules = map[string]viewRule{
	"table":    {aggregations: true},
	"list":     {},
	"gallery":  {},
	"board":    {aggregations: true, layout: "group_by", layoutTypes: []string{"select", "multi_select"}},
	"calendar": {layout: "calendar_by", layoutTypes: dateTypes},
	"timeline": {aggregations: true, layout: "timeline_by", layoutTypes: dateTypes},
}

type column struct {
	id   string
	name string
	typ  string
}

// schemaMap resolves property names to schema columns, keeping schema order.
type schemaMap struct {
	columns []column
	byName  map[string]column
}

func (sm *schemaMap) add(c column) {
	sm.columns = append(sm.columns, c)
	sm.byName[c.name] = c
}

func (sm *schemaMap) lookup(name, field string) (column, error) {
	c, ok := sm.byName[name]
	if !ok {
		return column{}, fmt.Errorf("%w: %s referenced in %s", ErrUnknownProperty, name, field)
	}
	return c, nil
}

// buildSchema turns a property list into a collection schema.
func buildSchema(props []Property, newID func() string) (map[string]any, *schemaMap) {
	schema := make(map[string]any, len(props))
	sm := &schemaMap{byName: make(map[string]column, len(props))}
	for _, p := range props {
		id := p.ID
		switch {
		case p.Type == "title":
			id = "title"
		case id == "":
			id = newID()
		}
		entry := map[string]any{"name": p.Name, "type": p.Type}
		if len(p.Options) > 0 {
			opts := make([]any, len(p.Options))
			for i, o := range p.Options {
				oid := o.ID
				if oid == "" {
					oid = newID()
				}
				opts[i] = map[string]any{"id": oid, "value": o.Value, "color": o.Color}
			}
			entry["options"] = opts
		}
		if p.Formula != nil {
			entry["formula"] = p.Formula
		}
		schema[id] = entry
		sm.add(column{id: id, name: p.Name, typ: p.Type})
	}
	return schema, sm
}

// schemaOf rebuilds the column map of a resident collection. The title
// column comes first, then the rest by id.
func schemaOf(coll *store.Record) *schemaMap {
	ids := make([]string, 0, len(coll.Schema))
	for id := range coll.Schema {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if (ids[i] == "title") != (ids[j] == "title") {
			return ids[i] == "title"
		}
		return ids[i] < ids[j]
	})

	sm := &schemaMap{byName: make(map[string]column, len(ids))}
	for _, id := range ids {
		entry, _ := coll.Schema[id].(map[string]any)
		name, _ := entry["name"].(string)
		typ, _ := entry["type"].(string)
		sm.add(column{id: id, name: name, typ: typ})
	}
	return sm
}

// buildView returns the query2 and format of a view over sm.
func buildView(spec ViewSpec, sm *schemaMap) (query2, format map[string]any, err error) {
	rule, ok := viewRules[spec.Type]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedView, spec.Type)
	}

	operator := spec.FilterOperator
	if operator == "" {
		operator = "and"
	}
	filters := make([]any, 0, len(spec.Filters))
	for _, f := range spec.Filters {
		c, err := sm.lookup(f.Property, "filters")
		if err != nil {
			return nil, nil, err
		}
		filters = append(filters, map[string]any{
			"property": c.id,
			"filter": map[string]any{
				"operator": f.Operator,
				"value":    map[string]any{"type": f.ValueType, "value": f.Value},
			},
		})
	}

	props := spec.Properties
	if len(props) == 0 {
		for _, c := range sm.columns {
			props = append(props, ViewProperty{Property: c.name})
		}
	}
	sorts := []any{}
	aggregations := []any{}
	columns := make([]any, 0, len(props))
	for _, p := range props {
		c, err := sm.lookup(p.Property, spec.Type+"_properties")
		if err != nil {
			return nil, nil, err
		}
		col := map[string]any{"property": c.id, "visible": !p.Hidden}
		if p.Width > 0 {
			col["width"] = p.Width
		}
		columns = append(columns, col)
		if p.Sort != "" {
			sorts = append(sorts, map[string]any{"property": c.id, "direction": p.Sort})
		}
		if p.Aggregation != "" && rule.aggregations {
			aggregations = append(aggregations, map[string]any{"property": c.id, "aggregator": p.Aggregation})
		}
	}

	query2 = map[string]any{
		"filter": map[string]any{"operator": operator, "filters": filters},
		"sort":   sorts,
	}
	if rule.aggregations {
		query2["aggregations"] = aggregations
	}
	if rule.layout != "" {
		name := layoutOf(spec, rule.layout)
		if name != "" {
			c, err := sm.lookup(name, rule.layout)
			if err != nil {
				return nil, nil, err
			}
			if !contains(rule.layoutTypes, c.typ) {
				return nil, nil, fmt.Errorf("%w: %s referenced in %s is %s, want %s",
					ErrUnsupportedPropertyType, name, rule.layout, c.typ, strings.Join(rule.layoutTypes, " | "))
			}
			query2[rule.layout] = c.id
		}
	}

	format = map[string]any{spec.Type + "_properties": columns}
	return query2, format, nil
}

func layoutOf(spec ViewSpec, layout string) string {
	switch layout {
	case "group_by":
		return spec.GroupBy
	case "calendar_by":
		return spec.CalendarBy
	case "timeline_by":
		return spec.TimelineBy
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
