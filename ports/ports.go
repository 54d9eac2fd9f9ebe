// Package ports maintains array-input slot sequences. The helpers are pure:
// they return new port slices and handle remappings, never mutating their
// arguments, so both the editor surface and the input resolver can share
// them.
//
// Invariant: after any Cleanup, an array port with parent P exposes its
// connected slots renumbered contiguously from 0 plus exactly one empty
// trailing slot.
package ports

import (
	"fmt"
	"strings"

	"github.com/strandworks/strand/sdk"
)

// SlotName renders the handle-visible name of an array slot.
func SlotName(parent string, index int) string {
	return fmt.Sprintf("%s[%d]", parent, index)
}

// slot builds a slot port inheriting the array parent's type.
func slot(parent sdk.PortDefinition, index int) sdk.PortDefinition {
	idx := index
	return sdk.PortDefinition{
		Name:        SlotName(parent.Name, index),
		Type:        parent.Type,
		Description: parent.Description,
		ArrayParent: parent.Name,
		ArrayIndex:  &idx,
		Extract:     parent.Extract,
	}
}

// Expand replaces each port declared with array=true by its initial single
// empty slot "name[0]". Already-expanded slots and scalar ports pass
// through unchanged.
func Expand(inputs []sdk.PortDefinition) []sdk.PortDefinition {
	out := make([]sdk.PortDefinition, 0, len(inputs))
	for _, port := range inputs {
		if !port.Array {
			out = append(out, port)
			continue
		}
		out = append(out, slot(port, 0))
	}
	return out
}

// connected reports whether any edge targets the given input name.
func connected(name string, edges []sdk.WorkflowEdge) bool {
	handle := sdk.InputHandle(name)
	for _, edge := range edges {
		if edge.TargetHandle == handle || strings.TrimSuffix(edge.TargetHandle, ":internal") == handle {
			return true
		}
	}
	return false
}

// OnConnect appends a fresh empty slot when the connected handle was the
// highest-index slot of its array. The edges slice must already include the
// new connection.
func OnConnect(inputs []sdk.PortDefinition, targetHandle string, edges []sdk.WorkflowEdge) []sdk.PortDefinition {
	name := sdk.TargetInputName(targetHandle)

	var parent string
	for _, port := range inputs {
		if port.Name == name && port.ArrayParent != "" {
			parent = port.ArrayParent
			break
		}
	}
	if parent == "" {
		return inputs
	}

	highest := -1
	for _, port := range inputs {
		if port.ArrayParent == parent && port.ArrayIndex != nil && *port.ArrayIndex > highest {
			highest = *port.ArrayIndex
		}
	}
	if name != SlotName(parent, highest) {
		return inputs
	}

	out := make([]sdk.PortDefinition, len(inputs), len(inputs)+1)
	copy(out, inputs)
	template := parentTemplate(inputs, parent)
	return append(out, slot(template, highest+1))
}

// Cleanup renumbers connected slots contiguously from 0 preserving order,
// appends exactly one empty trailing slot per array, and returns the
// old-to-new handle id remapping the caller must apply to edges.
// Cleanup is idempotent.
func Cleanup(inputs []sdk.PortDefinition, edges []sdk.WorkflowEdge) ([]sdk.PortDefinition, map[string]string) {
	remap := make(map[string]string)
	out := make([]sdk.PortDefinition, 0, len(inputs))

	next := make(map[string]int)      // array parent -> next index to assign
	insertAt := make(map[string]int)  // array parent -> position of last slot in out
	seen := make(map[string]bool)

	for _, port := range inputs {
		if port.ArrayParent == "" || port.ArrayIndex == nil {
			out = append(out, port)
			continue
		}
		parent := port.ArrayParent
		seen[parent] = true
		if !connected(port.Name, edges) {
			continue // dropped; trailing slot re-added below
		}
		idx := next[parent]
		next[parent] = idx + 1
		newSlot := slot(parentTemplate(inputs, parent), idx)
		if port.Name != newSlot.Name {
			remap[sdk.InputHandle(port.Name)] = sdk.InputHandle(newSlot.Name)
		}
		out = append(out, newSlot)
		insertAt[parent] = len(out)
	}

	// One empty trailing slot per array, placed right after its last
	// connected slot (or appended when the array is empty).
	for parent := range seen {
		empty := slot(parentTemplate(inputs, parent), next[parent])
		pos, ok := insertAt[parent]
		if !ok {
			out = append(out, empty)
			continue
		}
		out = append(out[:pos], append([]sdk.PortDefinition{empty}, out[pos:]...)...)
		// Later arrays inserted after this point shift by one.
		for p, at := range insertAt {
			if at >= pos {
				insertAt[p] = at + 1
			}
		}
	}

	return out, remap
}

// ApplyRemap rewrites edge target handles through the Cleanup remapping and
// returns the updated edge slice.
func ApplyRemap(edges []sdk.WorkflowEdge, remap map[string]string) []sdk.WorkflowEdge {
	if len(remap) == 0 {
		return edges
	}
	out := make([]sdk.WorkflowEdge, len(edges))
	copy(out, edges)
	for i := range out {
		if mapped, ok := remap[out[i].TargetHandle]; ok {
			out[i].TargetHandle = mapped
		}
	}
	return out
}

// parentTemplate recovers a template port for an array parent from any of
// its slots (or the unexpanded declaration).
func parentTemplate(inputs []sdk.PortDefinition, parent string) sdk.PortDefinition {
	for _, port := range inputs {
		if port.Name == parent && port.Array {
			return port
		}
	}
	for _, port := range inputs {
		if port.ArrayParent == parent {
			return sdk.PortDefinition{
				Name:        parent,
				Type:        port.Type,
				Description: port.Description,
				Extract:     port.Extract,
			}
		}
	}
	return sdk.PortDefinition{Name: parent, Type: sdk.ValueAny}
}
