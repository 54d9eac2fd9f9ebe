package schema

import (
	"fmt"

	"github.com/strandworks/strand/sdk"
)

// Severity of a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding. NodeID and EdgeID locate the
// offending element when applicable.
type Issue struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	NodeID   string   `json:"nodeId,omitempty"`
	EdgeID   string   `json:"edgeId,omitempty"`
}

// HasErrors reports whether any issue in the list is an error.
func HasErrors(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs structural validation: references resolve, handles
// parse, loop containers carry their interface nodes. It never executes
// anything and does not type-check edges beyond handle syntax; type
// compatibility is re-checked by the input resolver at run time.
func Validate(schema *sdk.WorkflowSchema) []Issue {
	var issues []Issue
	report := func(sev Severity, nodeID, edgeID, format string, args ...any) {
		issues = append(issues, Issue{
			Severity: sev,
			Message:  fmt.Sprintf(format, args...),
			NodeID:   nodeID,
			EdgeID:   edgeID,
		})
	}

	if schema.Metadata.Name == "" {
		report(SeverityError, "", "", "metadata.name is required")
	}

	// Node ids must be present and unique.
	nodes := make(map[string]*sdk.WorkflowNode, len(schema.Nodes))
	labels := make(map[string]string)
	for i := range schema.Nodes {
		node := &schema.Nodes[i]
		if node.ID == "" {
			report(SeverityError, "", "", "node at index %d has no id", i)
			continue
		}
		if _, dup := nodes[node.ID]; dup {
			report(SeverityError, node.ID, "", "duplicate node id %q", node.ID)
			continue
		}
		nodes[node.ID] = node

		if node.Kind() == "" {
			report(SeverityError, node.ID, "", "node %q has no nodeType", node.ID)
		}
		if label := node.NormalizedLabel(); label != "" {
			if other, dup := labels[label]; dup {
				report(SeverityWarning, node.ID, "", "label %q collides with node %q; template references by label are ambiguous", node.Data.Label, other)
			} else {
				labels[label] = node.ID
			}
		}
		issues = append(issues, validatePorts(node)...)
	}

	// Parent references resolve and loop bodies are well formed.
	for id, node := range nodes {
		if node.ParentID == "" {
			continue
		}
		parent, ok := nodes[node.ParentID]
		if !ok {
			report(SeverityError, id, "", "node %q references missing parent %q", id, node.ParentID)
			continue
		}
		if parent.Kind() != sdk.NodeLoop {
			report(SeverityError, id, "", "node %q has parent %q which is not a loop container", id, node.ParentID)
		}
	}
	for _, node := range nodes {
		if node.Kind() == sdk.NodeLoop {
			issues = append(issues, validateLoopBody(schema, node)...)
		}
	}

	// Edge references resolve, handles parse, and each input handle carries
	// at most one edge. Duplicate inputs load with a warning; the resolver
	// rejects them authoritatively at run time.
	targetSeen := make(map[string]string) // "<node>\x00<handle>" -> edge id
	for i := range schema.Edges {
		edge := &schema.Edges[i]
		if edge.ID == "" {
			report(SeverityError, "", "", "edge at index %d has no id", i)
		}
		if _, ok := nodes[edge.Source]; !ok {
			report(SeverityError, "", edge.ID, "edge %q references missing source node %q", edge.ID, edge.Source)
		}
		if _, ok := nodes[edge.Target]; !ok {
			report(SeverityError, "", edge.ID, "edge %q references missing target node %q", edge.ID, edge.Target)
		}
		for _, handle := range []string{edge.SourceHandle, edge.TargetHandle} {
			if handle == "" {
				continue
			}
			if _, err := sdk.ParseHandle(handle); err != nil {
				report(SeverityError, "", edge.ID, "edge %q: %v", edge.ID, err)
			}
		}

		if edge.TargetHandle != "" && !sdk.IsFeedbackHandle(edge.TargetHandle) {
			key := edge.Target + "\x00" + edge.TargetHandle
			if prev, dup := targetSeen[key]; dup {
				report(SeverityWarning, edge.Target, edge.ID, "input %q on node %q is connected by edges %q and %q; only one edge per input is allowed", edge.TargetHandle, edge.Target, prev, edge.ID)
			} else {
				targetSeen[key] = edge.ID
			}
		}
	}

	return issues
}

// validatePorts checks port declarations on a single node.
func validatePorts(node *sdk.WorkflowNode) []Issue {
	var issues []Issue
	for _, group := range [][]sdk.PortDefinition{node.Data.Inputs, node.Data.Outputs} {
		for _, port := range group {
			if port.Name == "" {
				issues = append(issues, Issue{Severity: SeverityError, NodeID: node.ID,
					Message: fmt.Sprintf("node %q declares a port with no name", node.ID)})
				continue
			}
			if port.Type != "" && !sdk.ValidValueType(port.Type) {
				issues = append(issues, Issue{Severity: SeverityError, NodeID: node.ID,
					Message: fmt.Sprintf("node %q port %q: unknown value type %q", node.ID, port.Name, port.Type)})
			}
			if port.Extract != nil {
				switch port.Extract.Kind {
				case sdk.ExtractFull:
				case sdk.ExtractRegex:
					if port.Extract.Pattern == "" {
						issues = append(issues, Issue{Severity: SeverityError, NodeID: node.ID,
							Message: fmt.Sprintf("node %q port %q: regex extract requires a pattern", node.ID, port.Name)})
					}
				case sdk.ExtractJSONPath:
					if port.Extract.Path == "" {
						issues = append(issues, Issue{Severity: SeverityError, NodeID: node.ID,
							Message: fmt.Sprintf("node %q port %q: json_path extract requires a path", node.ID, port.Name)})
					}
				default:
					issues = append(issues, Issue{Severity: SeverityWarning, NodeID: node.ID,
						Message: fmt.Sprintf("node %q port %q: unknown extract kind %q", node.ID, port.Name, port.Extract.Kind)})
				}
			}
		}
	}
	return issues
}

// validateLoopBody checks the inner graph of a loop container: exactly one
// interface-input, interface-output, and interface-continue, with the
// continue input wired.
func validateLoopBody(schema *sdk.WorkflowSchema, loop *sdk.WorkflowNode) []Issue {
	var issues []Issue
	counts := make(map[string]int)
	var continueID string
	for i := range schema.Nodes {
		inner := &schema.Nodes[i]
		if inner.ParentID != loop.ID {
			continue
		}
		kind := inner.Kind()
		counts[kind]++
		if kind == sdk.NodeInterfaceContinue {
			continueID = inner.ID
		}
	}

	for _, kind := range []string{sdk.NodeInterfaceInput, sdk.NodeInterfaceOutput, sdk.NodeInterfaceContinue} {
		if counts[kind] != 1 {
			issues = append(issues, Issue{Severity: SeverityError, NodeID: loop.ID,
				Message: fmt.Sprintf("loop %q must contain exactly one %s node, found %d", loop.ID, kind, counts[kind])})
		}
	}

	if continueID != "" {
		wired := false
		for _, edge := range schema.Edges {
			if edge.Target == continueID && sdk.TargetInputName(edge.TargetHandle) == "continue" {
				wired = true
				break
			}
		}
		if !wired {
			issues = append(issues, Issue{Severity: SeverityError, NodeID: loop.ID,
				Message: fmt.Sprintf("loop %q: interface-continue input %q is not connected", loop.ID, "continue")})
		}
	}

	return issues
}
