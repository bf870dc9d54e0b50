// Package operation defines the wire mutation records sent to the remote
// store and an interpreter that applies them to cached records.
package operation

import (
	"errors"
	"fmt"

	"github.com/jacentio/arbor/store"
)

// Command is the mutation verb of an Operation.
type Command string

const (
	// CommandSet replaces the addressed value.
	CommandSet Command = "set"
	// CommandUpdate merges the top-level keys of args into the addressed value.
	CommandUpdate Command = "update"
	// CommandListBefore splices args.id before args.before.
	CommandListBefore Command = "listBefore"
	// CommandListAfter splices args.id after args.after.
	CommandListAfter Command = "listAfter"
	// CommandListRemove deletes args.id from the addressed array.
	CommandListRemove Command = "listRemove"
)

// ErrUnsupportedPath is returned when an operation addresses a nested path
// the interpreter cannot resolve.
var ErrUnsupportedPath = errors.New("arbor: unsupported operation path")

// Operation is one wire mutation record.
type Operation struct {
	Table   store.Kind     `json:"table"`
	ID      string         `json:"id"`
	Path    []string       `json:"path"`
	Command Command        `json:"command"`
	Args    map[string]any `json:"args"`
}

// Pointer returns the record the operation addresses.
func (o Operation) Pointer() store.Pointer {
	return store.Pointer{ID: o.ID, Kind: o.Table}
}

func (o Operation) String() string {
	return fmt.Sprintf("%s %s:%s %v", o.Command, o.Table, o.ID, o.Path)
}

// IsList reports whether the operation is a list splice or removal.
func (o Operation) IsList() bool {
	switch o.Command {
	case CommandListBefore, CommandListAfter, CommandListRemove:
		return true
	}
	return false
}

func path(p []string) []string {
	if p == nil {
		return []string{}
	}
	return p
}

// Set builds a set operation.
func Set(table store.Kind, id string, p []string, args map[string]any) Operation {
	return Operation{Table: table, ID: id, Path: path(p), Command: CommandSet, Args: args}
}

// Update builds an update operation.
func Update(table store.Kind, id string, p []string, args map[string]any) Operation {
	return Operation{Table: table, ID: id, Path: path(p), Command: CommandUpdate, Args: args}
}

// ListBefore builds an operation splicing childID before the anchor. An empty
// anchor means the start of the list.
func ListBefore(table store.Kind, id, slot, childID, anchor string) Operation {
	return Operation{
		Table:   table,
		ID:      id,
		Path:    []string{slot},
		Command: CommandListBefore,
		Args:    map[string]any{"before": anchor, "id": childID},
	}
}

// ListAfter builds an operation splicing childID after the anchor. An empty
// anchor means the end of the list.
func ListAfter(table store.Kind, id, slot, childID, anchor string) Operation {
	return Operation{
		Table:   table,
		ID:      id,
		Path:    []string{slot},
		Command: CommandListAfter,
		Args:    map[string]any{"after": anchor, "id": childID},
	}
}

// ListRemove builds an operation removing childID from the slot.
func ListRemove(table store.Kind, id, slot, childID string) Operation {
	return Operation{
		Table:   table,
		ID:      id,
		Path:    []string{slot},
		Command: CommandListRemove,
		Args:    map[string]any{"id": childID},
	}
}

// Compact drops set and update operations that carry no args.
func Compact(ops []Operation) []Operation {
	out := make([]Operation, 0, len(ops))
	for _, op := range ops {
		if (op.Command == CommandUpdate || op.Command == CommandSet) && len(op.Args) == 0 {
			continue
		}
		out = append(out, op)
	}
	return out
}

// Affected returns the distinct records addressed by ops, in first-seen order.
func Affected(ops []Operation) []store.Pointer {
	seen := make(map[store.Pointer]bool, len(ops))
	var out []store.Pointer
	for _, op := range ops {
		p := op.Pointer()
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
