// Package splice resolves insertion positions in ordered child slots into a
// local array splice plus the equivalent wire instruction.
package splice

import (
	"fmt"

	"github.com/jacentio/arbor/operation"
	"github.com/jacentio/arbor/store"
)

type form int

const (
	formAppend form = iota
	formIndex
	formBefore
	formAfter
)

// Position is a requested insertion point. The zero value appends.
type Position struct {
	form   form
	index  int
	anchor string
}

// End appends to the slot.
func End() Position { return Position{} }

// At splices at index i of the current array. Negative indexes mean 0.
func At(i int) Position { return Position{form: formIndex, index: i} }

// Before splices immediately before the anchor id.
func Before(id string) Position { return Position{form: formBefore, anchor: id} }

// After splices immediately after the anchor id.
func After(id string) Position { return Position{form: formAfter, anchor: id} }

func (p Position) String() string {
	switch p.form {
	case formIndex:
		return fmt.Sprintf("at %d", p.index)
	case formBefore:
		return "before " + p.anchor
	case formAfter:
		return "after " + p.anchor
	}
	return "end"
}

// Instruction is the wire form of a resolved position.
type Instruction struct {
	Command operation.Command
	Anchor  string
}

// Operation builds the list operation inserting childID into the slot of the
// (table, id) record.
func (in Instruction) Operation(table store.Kind, id, slot, childID string) operation.Operation {
	if in.Command == operation.CommandListBefore {
		return operation.ListBefore(table, id, slot, childID, in.Anchor)
	}
	return operation.ListAfter(table, id, slot, childID, in.Anchor)
}

// Splice inserts childID into container at pos. It returns the new array,
// leaving container untouched, and the instruction that produces the same
// array remotely. A childID already present is moved.
func Splice(container []string, childID string, pos Position) ([]string, Instruction) {
	switch pos.form {
	case formIndex:
		return spliceIndex(container, childID, pos.index)
	case formBefore:
		return spliceAnchor(container, childID, pos.anchor, false), Instruction{Command: operation.CommandListBefore, Anchor: pos.anchor}
	case formAfter:
		return spliceAnchor(container, childID, pos.anchor, true), Instruction{Command: operation.CommandListAfter, Anchor: pos.anchor}
	}
	return append(without(container, childID), childID), Instruction{Command: operation.CommandListAfter}
}

func spliceIndex(container []string, childID string, i int) ([]string, Instruction) {
	if i < 0 {
		i = 0
	}
	if i >= len(container) {
		return append(without(container, childID), childID), Instruction{Command: operation.CommandListAfter}
	}

	prior := position(container, childID)
	if prior == i {
		// Already in place: anchor on the next neighbour, or the tail.
		out := append([]string(nil), container...)
		if i+1 < len(container) {
			return out, Instruction{Command: operation.CommandListBefore, Anchor: container[i+1]}
		}
		return out, Instruction{Command: operation.CommandListAfter}
	}

	anchor := container[i]
	// Moving later lands after the element now at i, anything else before it.
	if prior >= 0 && prior < i {
		return spliceAnchor(container, childID, anchor, true), Instruction{Command: operation.CommandListAfter, Anchor: anchor}
	}
	return spliceAnchor(container, childID, anchor, false), Instruction{Command: operation.CommandListBefore, Anchor: anchor}
}

func spliceAnchor(container []string, childID, anchor string, after bool) []string {
	rest := without(container, childID)
	at := position(rest, anchor)
	if anchor == "" || at < 0 {
		if after {
			return append(rest, childID)
		}
		at = 0
	} else if after {
		at++
	}
	out := make([]string, 0, len(rest)+1)
	out = append(out, rest[:at]...)
	out = append(out, childID)
	return append(out, rest[at:]...)
}

func without(container []string, id string) []string {
	out := make([]string, 0, len(container)+1)
	for _, v := range container {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func position(container []string, id string) int {
	for i, v := range container {
		if v == id {
			return i
		}
	}
	return -1
}
