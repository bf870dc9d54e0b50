package operation

import (
	"fmt"

	"github.com/jacentio/arbor/store"
)

// Apply interprets op against rec, the way the remote store does.
func Apply(rec *store.Record, op Operation) error {
	switch len(op.Path) {
	case 0:
		return applyRoot(rec, op)
	case 1:
		return applyField(rec, op.Path[0], op)
	}
	return fmt.Errorf("%w: %v", ErrUnsupportedPath, op.Path)
}

func applyRoot(rec *store.Record, op Operation) error {
	switch op.Command {
	case CommandSet:
		next := &store.Record{ID: op.ID, Alive: true}
		if err := next.Apply(store.Patch(op.Args)); err != nil {
			return err
		}
		*rec = *next
		return nil
	case CommandUpdate:
		return rec.Apply(store.Patch(op.Args))
	}
	return fmt.Errorf("%w: %s on record root", ErrUnsupportedPath, op.Command)
}

func applyField(rec *store.Record, field string, op Operation) error {
	if op.IsList() {
		slot := rec.Slot(field)
		if slot == nil {
			return fmt.Errorf("%w: %s is not a list", ErrUnsupportedPath, field)
		}
		next, err := ApplyList(*slot, op)
		if err != nil {
			return err
		}
		*slot = next
		return nil
	}

	switch op.Command {
	case CommandSet:
		return rec.Apply(store.Patch{field: op.Args})
	case CommandUpdate:
		fields, err := rec.Fields()
		if err != nil {
			return err
		}
		merged := map[string]any{}
		if current, ok := fields[field].(map[string]any); ok {
			for k, v := range current {
				merged[k] = v
			}
		}
		for k, v := range op.Args {
			merged[k] = v
		}
		return rec.Apply(store.Patch{field: merged})
	}
	return fmt.Errorf("%w: %s on %s", ErrUnsupportedPath, op.Command, field)
}

// ApplyList interprets a list operation against arr and returns the new
// array. The spliced id is removed first, so a splice of a present id is a
// move. Anchors that are empty or absent mean the end of the list for
// listAfter and the start for listBefore.
func ApplyList(arr []string, op Operation) ([]string, error) {
	id, _ := op.Args["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("arbor: %s without id", op.Command)
	}

	out := make([]string, 0, len(arr)+1)
	for _, v := range arr {
		if v != id {
			out = append(out, v)
		}
	}

	switch op.Command {
	case CommandListRemove:
		return out, nil
	case CommandListAfter:
		anchor, _ := op.Args["after"].(string)
		at := indexOf(out, anchor)
		if anchor == "" || at < 0 {
			return append(out, id), nil
		}
		return insert(out, at+1, id), nil
	case CommandListBefore:
		anchor, _ := op.Args["before"].(string)
		at := indexOf(out, anchor)
		if anchor == "" || at < 0 {
			return insert(out, 0, id), nil
		}
		return insert(out, at, id), nil
	}
	return nil, fmt.Errorf("arbor: %s is not a list command", op.Command)
}

func indexOf(arr []string, id string) int {
	for i, v := range arr {
		if v == id {
			return i
		}
	}
	return -1
}

func insert(arr []string, at int, id string) []string {
	arr = append(arr, "")
	copy(arr[at+1:], arr[at:])
	arr[at] = id
	return arr
}
