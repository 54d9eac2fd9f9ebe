// Package resolver turns a node's incoming edges into a complete input
// bindings map, or a typed error explaining exactly which input is
// unsatisfiable. It is the authoritative one-edge-per-input check: the
// editor enforces the same rule on connect, but a hand-written schema only
// fails here.
package resolver

import (
	"fmt"

	"github.com/strandworks/strand/sdk"
)

// Kind classifies a resolution failure.
type Kind string

const (
	KindMissingRequired Kind = "missing_required"
	KindDuplicateInput  Kind = "duplicate_input"
	KindUnknownSource   Kind = "unknown_source"
	KindMissingOutput   Kind = "missing_output"
	KindTypeMismatch    Kind = "type_mismatch"
)

// Error is a typed input-resolution failure.
type Error struct {
	Kind   Kind
	NodeID string
	Input  string
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("node %s: input %q: %s: %s", e.NodeID, e.Input, e.Kind, e.Detail)
}

// Context is the read-only view of run state the resolver consults. The
// engine's ExecutionContext implements it.
type Context interface {
	// Output returns an already-computed output value.
	Output(nodeID, output string) (any, bool)
	// DockValue returns a loop dock value for the given handle id, valid
	// only while executing a loop's inner graph.
	DockValue(handleID string) (any, bool)
	// InDock reports whether a dock context is active.
	InDock() bool
}

// Resolve produces the input bindings for node from its incoming edges.
// Feedback edges (dock :current / :input targets) are ignored; they carry
// the previous iteration's values and are consulted only by the loop
// executor. The edges slice may contain duplicates when the caller unions
// outer edges with a loop's dock-output edges; entries are deduplicated by
// edge id.
func Resolve(node *sdk.WorkflowNode, edges []sdk.WorkflowEdge, nodes map[string]*sdk.WorkflowNode, ctx Context) (map[string]any, error) {
	incoming := make(map[string]sdk.WorkflowEdge) // input name -> edge
	seen := make(map[string]bool)                 // edge id dedupe

	for _, edge := range edges {
		if edge.Target != node.ID || seen[edge.ID] {
			continue
		}
		seen[edge.ID] = true
		if sdk.IsFeedbackHandle(edge.TargetHandle) {
			continue
		}
		name := sdk.TargetInputName(edge.TargetHandle)
		if prev, dup := incoming[name]; dup {
			return nil, &Error{
				Kind:   KindDuplicateInput,
				NodeID: node.ID,
				Input:  name,
				Detail: fmt.Sprintf("edges %q and %q both target it", prev.ID, edge.ID),
			}
		}
		incoming[name] = edge
	}

	bindings := make(map[string]any)
	bound := make(map[string]bool)

	for i := range node.Data.Inputs {
		port := &node.Data.Inputs[i]
		edge, connected := incoming[port.Name]
		if !connected {
			if port.Required && !port.HasDefault() {
				return nil, &Error{
					Kind:   KindMissingRequired,
					NodeID: node.ID,
					Input:  port.Name,
					Detail: "required input has no connection and no default",
				}
			}
			if port.HasDefault() {
				bindings[port.Name] = port.Default
			}
			continue
		}

		value, err := sourceValue(node, port.Name, edge, nodes, ctx)
		if err != nil {
			return nil, err
		}
		if err := checkTypes(node, port, edge, nodes); err != nil {
			return nil, err
		}
		bindings[port.Name] = value
		bound[port.Name] = true
	}

	// Edges landing on inputs the node does not declare still bind; the
	// interface nodes rely on pass-through semantics.
	for name, edge := range incoming {
		if bound[name] || hasDeclaredInput(node, name) {
			continue
		}
		value, err := sourceValue(node, name, edge, nodes, ctx)
		if err != nil {
			return nil, err
		}
		bindings[name] = value
	}

	return bindings, nil
}

// sourceValue reads the value carried by an edge, preferring the dock
// context when one is active and the edge originates on a loop's inner
// face.
func sourceValue(node *sdk.WorkflowNode, input string, edge sdk.WorkflowEdge, nodes map[string]*sdk.WorkflowNode, ctx Context) (any, error) {
	if ctx.InDock() && edge.SourceHandle != "" {
		if h, err := sdk.ParseHandle(edge.SourceHandle); err == nil {
			if h.Kind == sdk.HandleDock || (h.Kind == sdk.HandleInput && h.Internal) {
				key := edge.SourceHandle
				if h.Kind == sdk.HandleInput {
					key = sdk.InputHandle(h.Name)
				}
				if value, ok := ctx.DockValue(key); ok {
					return value, nil
				}
				return nil, &Error{
					Kind:   KindMissingOutput,
					NodeID: node.ID,
					Input:  input,
					Detail: fmt.Sprintf("dock value %q is not available", edge.SourceHandle),
				}
			}
		}
	}

	if _, known := nodes[edge.Source]; !known {
		return nil, &Error{
			Kind:   KindUnknownSource,
			NodeID: node.ID,
			Input:  input,
			Detail: fmt.Sprintf("edge %q references unknown node %q", edge.ID, edge.Source),
		}
	}

	output := sdk.SourceOutputName(edge.SourceHandle)
	value, ok := ctx.Output(edge.Source, output)
	if !ok {
		return nil, &Error{
			Kind:   KindMissingOutput,
			NodeID: node.ID,
			Input:  input,
			Detail: fmt.Sprintf("output %q of node %q has not been produced", output, edge.Source),
		}
	}
	return value, nil
}

// checkTypes verifies edge type compatibility when both endpoint port
// declarations are available. Undeclared endpoints are permissive.
func checkTypes(node *sdk.WorkflowNode, port *sdk.PortDefinition, edge sdk.WorkflowEdge, nodes map[string]*sdk.WorkflowNode) error {
	if port.Type == "" {
		return nil
	}
	source, ok := nodes[edge.Source]
	if !ok {
		return nil
	}
	outputName := sdk.SourceOutputName(edge.SourceHandle)
	for i := range source.Data.Outputs {
		out := &source.Data.Outputs[i]
		if out.Name != outputName || out.Type == "" {
			continue
		}
		if !sdk.Compatible(out.Type, port.Type) {
			return &Error{
				Kind:   KindTypeMismatch,
				NodeID: node.ID,
				Input:  port.Name,
				Detail: fmt.Sprintf("source %s.%s is %s, want %s", edge.Source, outputName, out.Type, port.Type),
			}
		}
		return nil
	}
	return nil
}

func hasDeclaredInput(node *sdk.WorkflowNode, name string) bool {
	for i := range node.Data.Inputs {
		if node.Data.Inputs[i].Name == name {
			return true
		}
	}
	return false
}
