// Package engine runs workflow graphs. The scheduler is a level-set
// executor: on each tick it dispatches every node whose non-feedback
// predecessors have stored outputs, waits for the batch, folds the shaped
// outputs into the run context, then advances. Loop and component nodes
// recurse into the scheduler through their executors.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/strandworks/strand/executors"
	"github.com/strandworks/strand/resolver"
	"github.com/strandworks/strand/sdk"
)

// Logger is the logging interface consumed by the engine.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

// Opts contains options for creating an engine.
type Opts struct {
	// Registry supplies the leaf executors. Defaults to
	// executors.DefaultRegistry; the engine registers the loop and
	// component executors on top either way.
	Registry *executors.Registry
	// Agents backs the agent executor when Registry is nil.
	Agents *executors.AgentRegistry
	Logger Logger
	// Yolo relaxes agent backend permission prompts for all runs.
	Yolo bool
}

// Engine executes workflow schemas.
type Engine struct {
	registry *executors.Registry
	logger   Logger
	yolo     bool
}

// New creates an engine and completes the executor registry with the
// container executors.
func New(opts *Opts) *Engine {
	if opts == nil {
		opts = &Opts{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	registry := opts.Registry
	if registry == nil {
		registry = executors.DefaultRegistry(opts.Agents, logger)
	}

	e := &Engine{
		registry: registry,
		logger:   logger,
		yolo:     opts.Yolo,
	}
	registry.MustRegister(&LoopExecutor{engine: e})
	registry.MustRegister(&ComponentExecutor{engine: e})
	return e
}

// RunRequest describes one workflow run.
type RunRequest struct {
	Schema *sdk.WorkflowSchema
	// Cwd is the working directory node subprocesses run in.
	Cwd string
	// WorkflowInputs are surfaced by interface-input nodes; set for
	// component sub-runs and server-started runs.
	WorkflowInputs map[string]any
	// TriggerInputs override the trigger node's default outputs.
	TriggerInputs map[string]any
	// StartNodes overrides the computed start set.
	StartNodes []string
	// Events receives the run's event stream. May be nil.
	Events func(sdk.Event)
}

// RunResult is the outcome of a run.
type RunResult struct {
	Status    string
	Error     string
	Results   map[string]*sdk.NodeResult
	Outputs   map[string]map[string]any
	StartTime time.Time
	EndTime   time.Time
}

// Succeeded reports whether every executed node completed.
func (r *RunResult) Succeeded() bool { return r.Status == sdk.RunCompleted }

// Run executes a workflow's top-level graph and emits the event stream,
// ending with workflow-complete. Cancellation is reported as a cancelled
// result, not an error.
func (e *Engine) Run(ctx context.Context, req *RunRequest) (*RunResult, error) {
	if req == nil || req.Schema == nil {
		return nil, fmt.Errorf("run request has no schema")
	}

	ec := NewExecutionContext(ContextOpts{
		WorkflowInputs: req.WorkflowInputs,
		TriggerInputs:  req.TriggerInputs,
	})
	g := newGraphRun(req.Schema, topLevelScope(req.Schema), ec, req.Events, req.Cwd)

	// An empty start set or an unknown requested start node aborts the run
	// before any node is dispatched.
	start := req.StartNodes
	if len(start) == 0 {
		start = defaultStartSet(req.Schema, g.scope)
		if len(start) == 0 {
			g.failed = true
			g.firstError = "workflow has no start node"
		}
	} else {
		for _, id := range start {
			if g.nodes[id] == nil || !g.scope[id] {
				g.failed = true
				g.firstError = fmt.Sprintf("start node %q not found", id)
				break
			}
		}
	}

	res := &RunResult{StartTime: time.Now()}
	var err error
	if !g.failed {
		err = e.execute(ctx, g, start)
	}

	res.Results = ec.Results()
	res.Outputs = ec.Outputs()
	res.EndTime = time.Now()

	switch {
	case err != nil:
		res.Status = sdk.RunCancelled
		res.Error = "cancelled"
	case g.failed:
		res.Status = sdk.RunFailed
		res.Error = g.firstError
	default:
		res.Status = sdk.RunCompleted
	}

	evt := sdk.Event{
		Type:    sdk.EventWorkflowComplete,
		Success: sdk.Bool(res.Status == sdk.RunCompleted),
	}
	if res.Error != "" {
		evt.Error = res.Error
	}
	g.publish(evt)

	e.logger.Info("workflow finished",
		"workflow", req.Schema.Metadata.Name,
		"status", res.Status,
		"nodes", len(res.Results),
		"duration", res.EndTime.Sub(res.StartTime).String(),
	)
	return res, nil
}

// graphRun is the per-graph scheduling state. Loop iterations and component
// sub-runs each get their own.
type graphRun struct {
	schema *sdk.WorkflowSchema
	nodes  map[string]*sdk.WorkflowNode
	scope  map[string]bool
	ec     *ExecutionContext
	cwd    string

	emitMu sync.Mutex
	events func(sdk.Event)

	failed     bool
	firstError string
}

func newGraphRun(schema *sdk.WorkflowSchema, scope map[string]bool, ec *ExecutionContext, events func(sdk.Event), cwd string) *graphRun {
	nodes := make(map[string]*sdk.WorkflowNode, len(schema.Nodes))
	for i := range schema.Nodes {
		nodes[schema.Nodes[i].ID] = &schema.Nodes[i]
	}
	if cwd == "" {
		cwd = "."
	}
	return &graphRun{
		schema: schema,
		nodes:  nodes,
		scope:  scope,
		ec:     ec,
		events: events,
		cwd:    cwd,
	}
}

// publish stamps and serializes an event. Node tasks emit output chunks
// concurrently, so delivery is locked to keep per-node ordering intact.
func (g *graphRun) publish(evt sdk.Event) {
	if g.events == nil {
		return
	}
	evt.Timestamp = time.Now()
	g.emitMu.Lock()
	g.events(evt)
	g.emitMu.Unlock()
}

// execute runs the graph to completion or hard stop. The returned error is
// non-nil only on cancellation.
func (e *Engine) execute(ctx context.Context, g *graphRun, start []string) error {
	visited := make(map[string]bool)

	batch := make([]string, 0, len(start))
	for _, id := range start {
		if g.scope[id] && !visited[id] && g.nodes[id] != nil {
			visited[id] = true
			batch = append(batch, id)
		}
	}

	for len(batch) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		results := make([]*sdk.NodeResult, len(batch))
		var wg sync.WaitGroup
		for i, id := range batch {
			node := g.nodes[id]
			g.publish(sdk.Event{Type: sdk.EventNodeStart, NodeID: id})
			wg.Add(1)
			go func(i int, node *sdk.WorkflowNode) {
				defer wg.Done()
				results[i] = e.runNode(ctx, g, node)
			}(i, node)
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return err
		}

		hardStop := false
		failedInBatch := make(map[string]bool)
		for i, id := range batch {
			node := g.nodes[id]
			res := results[i]

			if !res.Failed() {
				outputs, err := executors.BuildOutputValues(node, res)
				if err != nil {
					res.Status = sdk.StatusFailed
					res.Error = err.Error()
				} else {
					g.ec.SetResult(node, res, outputs)
					g.publish(sdk.Event{Type: sdk.EventNodeComplete, NodeID: id, Result: res})
					continue
				}
			}

			g.failed = true
			failedInBatch[id] = true
			if g.firstError == "" {
				g.firstError = fmt.Sprintf("node %s failed: %s", id, res.Error)
			}
			g.ec.SetResult(node, res, nil)
			g.publish(sdk.Event{Type: sdk.EventNodeComplete, NodeID: id, Result: res})
			if !node.Data.ContinueOnFailure {
				hardStop = true
			}
			e.logger.Warn("node failed", "node_id", id, "error", res.Error, "continue_on_failure", node.Data.ContinueOnFailure)
		}
		if hardStop {
			return nil
		}

		batch = g.advance(batch, failedInBatch, visited)
	}
	return nil
}

// advance finds the successors made runnable by the just-finished batch,
// emitting edge-executed for each edge into a newly runnable node.
func (g *graphRun) advance(batch []string, failedInBatch, visited map[string]bool) []string {
	finished := make(map[string]bool, len(batch))
	for _, id := range batch {
		if !failedInBatch[id] {
			finished[id] = true
		}
	}

	runnable := make(map[string]bool)
	for _, edge := range g.schema.Edges {
		if !finished[edge.Source] || !g.scope[edge.Target] || visited[edge.Target] {
			continue
		}
		if sdk.IsFeedbackHandle(edge.TargetHandle) || runnable[edge.Target] {
			continue
		}
		if g.ready(edge.Target) {
			runnable[edge.Target] = true
		}
	}

	next := make([]string, 0, len(runnable))
	for id := range runnable {
		next = append(next, id)
	}
	sort.Strings(next)

	for _, edge := range g.schema.Edges {
		if runnable[edge.Target] && !sdk.IsFeedbackHandle(edge.TargetHandle) && g.scope[edge.Source] {
			g.publish(sdk.Event{Type: sdk.EventEdgeExecuted, EdgeID: edge.ID, SourceNodeID: edge.Source})
		}
	}

	for _, id := range next {
		visited[id] = true
	}
	return next
}

// ready reports whether every non-feedback in-scope predecessor of id has
// stored outputs. Edges sourced outside the scope (a loop's own dock
// handles) are always satisfied.
func (g *graphRun) ready(id string) bool {
	for _, edge := range g.schema.Edges {
		if edge.Target != id || sdk.IsFeedbackHandle(edge.TargetHandle) {
			continue
		}
		if !g.scope[edge.Source] {
			continue
		}
		if !g.ec.HasOutputs(edge.Source) {
			return false
		}
	}
	return true
}

// runNode resolves inputs and dispatches one node. It always returns a
// result; resolution and executor faults become failed results.
func (e *Engine) runNode(ctx context.Context, g *graphRun, node *sdk.WorkflowNode) *sdk.NodeResult {
	started := time.Now()
	fail := func(format string, args ...any) *sdk.NodeResult {
		return &sdk.NodeResult{
			NodeID:    node.ID,
			Status:    sdk.StatusFailed,
			Error:     fmt.Sprintf(format, args...),
			StartTime: started,
			EndTime:   time.Now(),
		}
	}

	bindings, err := resolver.Resolve(node, g.schema.Edges, g.nodes, g.ec)
	if err != nil {
		return fail("input resolution failed: %v", err)
	}

	exec, ok := e.registry.Get(node.Kind())
	if !ok {
		return fail("unknown node kind %q", node.Kind())
	}

	req := &executors.Request{
		Node:      node,
		Cwd:       g.cwd,
		Bindings:  bindings,
		Context:   g.ec,
		Yolo:      e.yolo,
		Templates: g.ec.Templates(),
		Emit: func(chunk string) {
			g.publish(sdk.Event{Type: sdk.EventNodeOutput, NodeID: node.ID, Chunk: chunk})
		},
		Schema: g.schema,
		Events: g.publish,
	}

	res, err := exec.Execute(ctx, req)
	if err != nil {
		return fail("%v", err)
	}
	if res == nil {
		return fail("executor for %q returned no result", node.Kind())
	}
	return res
}

// topLevelScope is the set of schedulable node ids outside any container.
func topLevelScope(schema *sdk.WorkflowSchema) map[string]bool {
	scope := make(map[string]bool)
	for i := range schema.Nodes {
		if schema.Nodes[i].ParentID == "" {
			scope[schema.Nodes[i].ID] = true
		}
	}
	return scope
}

// defaultStartSet is the trigger nodes plus the sources with no incoming
// non-feedback edge from inside the scope.
func defaultStartSet(schema *sdk.WorkflowSchema, scope map[string]bool) []string {
	hasDep := make(map[string]bool)
	for _, edge := range schema.Edges {
		if sdk.IsFeedbackHandle(edge.TargetHandle) || !scope[edge.Source] {
			continue
		}
		hasDep[edge.Target] = true
	}

	var start []string
	for i := range schema.Nodes {
		node := &schema.Nodes[i]
		if !scope[node.ID] {
			continue
		}
		if node.Kind() == sdk.NodeTrigger || !hasDep[node.ID] {
			start = append(start, node.ID)
		}
	}
	sort.Strings(start)
	return start
}
