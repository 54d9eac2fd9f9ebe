// Package sdk holds the shared type definitions for the strand workflow
// engine: the serialized workflow schema, port and handle grammar, node
// results, and the execution event envelope. All packages depend on sdk so
// that the engine, executors, and server never depend on each other.
package sdk

import (
	"strings"
	"time"
)

// ValueType is the closed set of port value types.
type ValueType string

const (
	ValueString  ValueType = "string"
	ValueNumber  ValueType = "number"
	ValueBoolean ValueType = "boolean"
	ValueJSON    ValueType = "json"
	ValueFile    ValueType = "file"
	ValueFiles   ValueType = "files"
	ValueAny     ValueType = "any"
)

// Compatible reports whether a value of type src may flow into a port of
// type dst. Compatibility is strict equality; "any" matches everything in
// both directions.
func Compatible(src, dst ValueType) bool {
	if src == ValueAny || dst == ValueAny {
		return true
	}
	return src == dst
}

// ValidValueType reports whether t is a member of the closed type set.
func ValidValueType(t ValueType) bool {
	switch t {
	case ValueString, ValueNumber, ValueBoolean, ValueJSON, ValueFile, ValueFiles, ValueAny:
		return true
	}
	return false
}

// Extract kinds for PortDefinition.Extract.
const (
	ExtractFull     = "full"
	ExtractRegex    = "regex"
	ExtractJSONPath = "json_path"
)

// ExtractSpec describes how to compute a port value from a raw payload.
type ExtractSpec struct {
	Kind    string `json:"type" yaml:"type"`                         // full | regex | json_path
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"` // regex: capture group 1
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`       // json_path: dotted path
}

// PortDefinition is a named, typed connection point on a node.
//
// A port with Array=true is a design-time template: it expands into an
// ordered sequence of slots "name[0]".."name[k]", each tagged with
// ArrayParent and ArrayIndex. The slot sequence always ends with exactly one
// unconnected slot (see the ports package).
type PortDefinition struct {
	Name        string       `json:"name" yaml:"name"`
	Type        ValueType    `json:"type" yaml:"type"`
	Required    bool         `json:"required,omitempty" yaml:"required,omitempty"`
	Default     any          `json:"default,omitempty" yaml:"default,omitempty"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Array       bool         `json:"array,omitempty" yaml:"array,omitempty"`
	ArrayParent string       `json:"arrayParent,omitempty" yaml:"arrayParent,omitempty"`
	ArrayIndex  *int         `json:"arrayIndex,omitempty" yaml:"arrayIndex,omitempty"`
	Extract     *ExtractSpec `json:"extract,omitempty" yaml:"extract,omitempty"`
}

// HasDefault reports whether the port declares a default value.
func (p *PortDefinition) HasDefault() bool { return p.Default != nil }

// Node kind constants. Data.NodeType selects the executor.
const (
	NodeShell             = "shell"
	NodeScript            = "script"
	NodeTrigger           = "trigger"
	NodeConstant          = "constant"
	NodeWorkdir           = "workdir"
	NodeAgent             = "agent"
	NodeFunction          = "function"
	NodeComponent         = "component"
	NodeLoop              = "loop"
	NodeInterfaceInput    = "interface-input"
	NodeInterfaceOutput   = "interface-output"
	NodeInterfaceContinue = "interface-continue"
)

// Dock slot roles on a loop container.
const (
	DockIteration = "iteration"
	DockContinue  = "continue"
	DockFeedback  = "feedback"
)

// DockSlot is a specialised port on a loop container conveying iteration
// control. A feedback slot exposes a "prev" source and a "current" target of
// the same value type.
type DockSlot struct {
	Name string    `json:"name" yaml:"name"`
	Role string    `json:"role" yaml:"role"` // iteration | continue | feedback
	Type ValueType `json:"type,omitempty" yaml:"type,omitempty"`
}

// Position is the editor placement of a node. The engine ignores it but
// round-trips it faithfully.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// NodeData carries the node kind, its typed ports, and the kind-specific
// configuration fields.
type NodeData struct {
	NodeType          string           `json:"nodeType" yaml:"nodeType"`
	Label             string           `json:"label,omitempty" yaml:"label,omitempty"`
	Inputs            []PortDefinition `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs           []PortDefinition `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	ContinueOnFailure bool             `json:"continueOnFailure,omitempty" yaml:"continueOnFailure,omitempty"`

	// shell
	Script   string   `json:"script,omitempty" yaml:"script,omitempty"`
	Commands []string `json:"commands,omitempty" yaml:"commands,omitempty"`

	// script
	ScriptFile string   `json:"scriptFile,omitempty" yaml:"scriptFile,omitempty"`
	ScriptArgs []string `json:"scriptArgs,omitempty" yaml:"scriptArgs,omitempty"`

	// agent
	Prompt       string         `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	PromptFiles  []string       `json:"promptFiles,omitempty" yaml:"promptFiles,omitempty"`
	Runner       string         `json:"runner,omitempty" yaml:"runner,omitempty"`
	Model        string         `json:"model,omitempty" yaml:"model,omitempty"`
	OutputSchema map[string]any `json:"outputSchema,omitempty" yaml:"outputSchema,omitempty"`

	// constant
	ValueType ValueType `json:"valueType,omitempty" yaml:"valueType,omitempty"`
	Value     any       `json:"value,omitempty" yaml:"value,omitempty"`

	// workdir
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// function
	Code string `json:"code,omitempty" yaml:"code,omitempty"`
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// component
	WorkflowPath string `json:"workflowPath,omitempty" yaml:"workflowPath,omitempty"`

	// loop
	MaxIterations int        `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty"`
	DockSlots     []DockSlot `json:"dockSlots,omitempty" yaml:"dockSlots,omitempty"`

	// trigger
	Cron        string `json:"cron,omitempty" yaml:"cron,omitempty"`
	IdleMinutes int    `json:"idleMinutes,omitempty" yaml:"idleMinutes,omitempty"`
}

// WorkflowNode is a vertex of the workflow graph.
//
// ParentID with Extent="parent" marks the node as belonging to a container
// (a loop body); such nodes are never scheduled at the outer level.
type WorkflowNode struct {
	ID       string         `json:"id" yaml:"id"`
	Type     string         `json:"type,omitempty" yaml:"type,omitempty"`
	Position *Position      `json:"position,omitempty" yaml:"position,omitempty"`
	Data     NodeData       `json:"data" yaml:"data"`
	ParentID string         `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	Extent   string         `json:"extent,omitempty" yaml:"extent,omitempty"`
	Style    map[string]any `json:"style,omitempty" yaml:"style,omitempty"`
}

// Kind returns the executor kind for the node, preferring data.nodeType and
// falling back to the editor-level type field.
func (n *WorkflowNode) Kind() string {
	if n.Data.NodeType != "" {
		return n.Data.NodeType
	}
	return n.Type
}

// NormalizedLabel returns the node label lowered with whitespace collapsed
// to underscores, the form accepted by template references.
func (n *WorkflowNode) NormalizedLabel() string {
	return NormalizeLabel(n.Data.Label)
}

// NormalizeLabel lowercases s and replaces every whitespace run with "_".
func NormalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}

// WorkflowEdge is a typed directed arc between two node handles.
type WorkflowEdge struct {
	ID           string `json:"id" yaml:"id"`
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty" yaml:"targetHandle,omitempty"`
}

// WorkflowMetadata names the workflow.
type WorkflowMetadata struct {
	Name          string `json:"name" yaml:"name"`
	Description   string `json:"description,omitempty" yaml:"description,omitempty"`
	RootDirectory string `json:"rootDirectory,omitempty" yaml:"rootDirectory,omitempty"`
}

// WorkflowSchema is the serialized workflow definition. YAML is the
// canonical format; JSON is accepted on read.
type WorkflowSchema struct {
	Version  int              `json:"version" yaml:"version"`
	Metadata WorkflowMetadata `json:"metadata" yaml:"metadata"`
	Nodes    []WorkflowNode   `json:"nodes" yaml:"nodes"`
	Edges    []WorkflowEdge   `json:"edges" yaml:"edges"`
}

// Node returns the node with the given id, or nil.
func (s *WorkflowSchema) Node(id string) *WorkflowNode {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i]
		}
	}
	return nil
}

// Children returns the ids of nodes contained in the given parent.
func (s *WorkflowSchema) Children(parentID string) []string {
	var ids []string
	for i := range s.Nodes {
		if s.Nodes[i].ParentID == parentID {
			ids = append(ids, s.Nodes[i].ID)
		}
	}
	return ids
}

// NodeStatus is the terminal status of a single node execution.
type NodeStatus string

const (
	StatusCompleted NodeStatus = "completed"
	StatusFailed    NodeStatus = "failed"
)

// NodeResult is produced once per scheduled node per run.
type NodeResult struct {
	NodeID           string         `json:"nodeId"`
	Status           NodeStatus     `json:"status"`
	Output           map[string]any `json:"output,omitempty"`
	RawOutput        string         `json:"rawOutput,omitempty"`
	Stdout           string         `json:"stdout,omitempty"`
	Stderr           string         `json:"stderr,omitempty"`
	ExitCode         *int           `json:"exitCode,omitempty"`
	StructuredOutput any            `json:"structuredOutput,omitempty"`
	Error            string         `json:"error,omitempty"`
	StartTime        time.Time      `json:"startTime"`
	EndTime          time.Time      `json:"endTime"`
}

// Failed reports whether the node ended in failure.
func (r *NodeResult) Failed() bool { return r.Status == StatusFailed }

// Run statuses recorded in history.
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// Loop termination reasons.
const (
	LoopReasonCondition     = "condition"
	LoopReasonMaxIterations = "max_iterations"
	LoopReasonError         = "error"
)
