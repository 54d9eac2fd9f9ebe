package engine

import (
	"sync"

	"github.com/strandworks/strand/sdk"
	"github.com/strandworks/strand/template"
)

// ExecutionContext is the per-run mutable state owned by the scheduler:
// computed node outputs, raw results, the run's inputs, and, inside a loop
// iteration, the dock value map. Only the scheduler writes it, between
// batches; node tasks and stream consumers read concurrently, so access is
// still guarded.
type ExecutionContext struct {
	mu sync.RWMutex

	outputs map[string]map[string]any
	results map[string]*sdk.NodeResult

	workflowInputs map[string]any
	triggerInputs  map[string]any
	dock           map[string]any

	templates *template.Context
}

// ContextOpts configures a new ExecutionContext.
type ContextOpts struct {
	WorkflowInputs map[string]any
	TriggerInputs  map[string]any
	// Dock, when set, activates loop dock resolution for the run.
	Dock map[string]any
}

// NewExecutionContext creates an empty run context.
func NewExecutionContext(opts ContextOpts) *ExecutionContext {
	wf := opts.WorkflowInputs
	if wf == nil {
		wf = map[string]any{}
	}
	tr := opts.TriggerInputs
	if tr == nil {
		tr = map[string]any{}
	}
	return &ExecutionContext{
		outputs:        make(map[string]map[string]any),
		results:        make(map[string]*sdk.NodeResult),
		workflowInputs: wf,
		triggerInputs:  tr,
		dock:           opts.Dock,
		templates:      template.NewContext(),
	}
}

// SetResult records a node's result and shaped outputs, and registers the
// outputs for template resolution under the node id and normalized label.
func (c *ExecutionContext) SetResult(node *sdk.WorkflowNode, res *sdk.NodeResult, outputs map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[node.ID] = res
	if outputs != nil {
		c.outputs[node.ID] = outputs
		c.templates.SetOutputs([]string{node.ID, node.NormalizedLabel()}, outputs)
	}
}

// Output returns a single already-computed output value.
func (c *ExecutionContext) Output(nodeID, output string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	outputs, ok := c.outputs[nodeID]
	if !ok {
		return nil, false
	}
	value, ok := outputs[output]
	return value, ok
}

// NodeOutputs returns a node's whole shaped output map.
func (c *ExecutionContext) NodeOutputs(nodeID string) (map[string]any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	outputs, ok := c.outputs[nodeID]
	return outputs, ok
}

// HasOutputs reports whether a node has completed with stored outputs.
func (c *ExecutionContext) HasOutputs(nodeID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.outputs[nodeID]
	return ok
}

// Result returns a node's raw result.
func (c *ExecutionContext) Result(nodeID string) (*sdk.NodeResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.results[nodeID]
	return res, ok
}

// Results returns a copy of all recorded results.
func (c *ExecutionContext) Results() map[string]*sdk.NodeResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*sdk.NodeResult, len(c.results))
	for id, res := range c.results {
		out[id] = res
	}
	return out
}

// Outputs returns a copy of all shaped output maps.
func (c *ExecutionContext) Outputs() map[string]map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]map[string]any, len(c.outputs))
	for id, values := range c.outputs {
		out[id] = values
	}
	return out
}

// DockValue returns a loop dock value by handle id.
func (c *ExecutionContext) DockValue(handleID string) (any, bool) {
	if c.dock == nil {
		return nil, false
	}
	value, ok := c.dock[handleID]
	return value, ok
}

// InDock reports whether a dock context is active.
func (c *ExecutionContext) InDock() bool { return c.dock != nil }

// WorkflowInputs returns the inputs the run was started with.
func (c *ExecutionContext) WorkflowInputs() map[string]any { return c.workflowInputs }

// TriggerInputs returns the invocation metadata of the run's trigger.
func (c *ExecutionContext) TriggerInputs() map[string]any { return c.triggerInputs }

// Templates returns the template resolution view over computed outputs.
func (c *ExecutionContext) Templates() *template.Context { return c.templates }
