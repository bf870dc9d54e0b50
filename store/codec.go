package store

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fieldIndex maps each modeled attribute name to its struct field index.
var fieldIndex = func() map[string]int {
	t := reflect.TypeOf(Record{})
	idx := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("dynamodbav")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		idx[name] = i
	}
	return idx
}()

// Modeled reports whether field is one of the Record struct fields.
func Modeled(field string) bool {
	_, ok := fieldIndex[field]
	return ok
}

// MarshalItem encodes the record, Extra fields included, as a DynamoDB item.
func (r *Record) MarshalItem() (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", r.ID, err)
	}
	for k, v := range r.Extra {
		if Modeled(k) {
			continue
		}
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal field %s of %s: %w", k, r.ID, err)
		}
		item[k] = av
	}
	return item, nil
}

// DecodeItem decodes a DynamoDB item into a Record. Records without an
// alive attribute are alive.
func DecodeItem(item map[string]types.AttributeValue) (*Record, error) {
	rec := &Record{Alive: true}
	if err := attributevalue.UnmarshalMap(item, rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	for k, av := range item {
		if Modeled(k) {
			continue
		}
		var v any
		if err := attributevalue.Unmarshal(av, &v); err != nil {
			return nil, fmt.Errorf("unmarshal field %s of %s: %w", k, rec.ID, err)
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]any)
		}
		rec.Extra[k] = v
	}
	return rec, nil
}

// Apply merges the top-level keys of p into the record, replacing the
// addressed values.
func (r *Record) Apply(p Patch) error {
	modeled := make(map[string]types.AttributeValue, len(p))
	for k, v := range p {
		if !Modeled(k) {
			if r.Extra == nil {
				r.Extra = make(map[string]any)
			}
			r.Extra[k] = v
			continue
		}
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal patch field %s: %w", k, err)
		}
		modeled[k] = av
	}
	if len(modeled) == 0 {
		return nil
	}

	// Decoding merges into existing maps, so replaced fields start from zero.
	rv := reflect.ValueOf(r).Elem()
	for k := range modeled {
		f := rv.Field(fieldIndex[k])
		f.Set(reflect.Zero(f.Type()))
	}
	if err := attributevalue.UnmarshalMap(modeled, r); err != nil {
		return fmt.Errorf("apply patch to %s: %w", r.ID, err)
	}
	return nil
}

// Fields returns the record as a generic field map, the shape sent as the
// args of set and update operations.
func (r *Record) Fields() (Patch, error) {
	item, err := r.MarshalItem()
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := attributevalue.UnmarshalMap(item, &out); err != nil {
		return nil, fmt.Errorf("unmarshal fields of %s: %w", r.ID, err)
	}
	return Patch(out), nil
}

// Clone returns a deep copy of the record. Numbers inside generic maps come
// back as float64.
func (r *Record) Clone() (*Record, error) {
	item, err := r.MarshalItem()
	if err != nil {
		return nil, err
	}
	out, err := DecodeItem(item)
	if err != nil {
		return nil, err
	}
	out.Alive = r.Alive
	return out, nil
}
