// Package executors implements the per-node-kind execution strategies. Each
// executor turns resolved input bindings plus a working directory into a
// NodeResult; the scheduler stays decoupled from the kind set through the
// Registry.
package executors

import (
	"context"
	"fmt"
	"time"

	"github.com/strandworks/strand/sdk"
	"github.com/strandworks/strand/template"
)

// Logger is the logging interface consumed by executors.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// ExecContext is the read-only view of run state an executor may consult.
type ExecContext interface {
	// WorkflowInputs returns the inputs the enclosing run was started with
	// (set for component sub-runs).
	WorkflowInputs() map[string]any
	// TriggerInputs returns the invocation metadata of the run's trigger.
	TriggerInputs() map[string]any
}

// Request carries everything an executor needs for one node execution.
type Request struct {
	Node     *sdk.WorkflowNode
	Cwd      string
	Bindings map[string]any
	Context  ExecContext

	// Yolo relaxes agent backend permission prompts.
	Yolo bool

	// Templates resolves {{ ... }} references against already-computed
	// outputs. Never nil.
	Templates *template.Context

	// Emit streams an output chunk as a node-output event. May be nil.
	Emit func(chunk string)

	// Schema is the workflow the node belongs to. Container executors
	// recurse into its sub-graphs.
	Schema *sdk.WorkflowSchema

	// Events receives scheduler events produced by sub-runs. May be nil.
	Events func(evt sdk.Event)
}

// emit forwards a chunk when a sink is attached.
func (r *Request) emit(chunk string) {
	if r.Emit != nil && chunk != "" {
		r.Emit(chunk)
	}
}

// resolve applies template substitution to a node string field.
func (r *Request) resolve(text string) string {
	return template.Resolve(text, r.Templates, r.Bindings)
}

// resolveArgs applies template substitution to a string-slice field.
func (r *Request) resolveArgs(args []string) []string {
	return template.ResolveAll(args, r.Templates, r.Bindings)
}

// Executor is the shared contract for all node kinds. Execute returns a
// NodeResult for both completed and failed nodes; the error return is
// reserved for infrastructure faults (and cancellation) that prevent
// producing a result at all.
type Executor interface {
	Kind() string
	Execute(ctx context.Context, req *Request) (*sdk.NodeResult, error)
}

// Registry maps node kinds to executors.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// DefaultRegistry returns a registry with all leaf executors registered.
// The loop and component executors recurse into the scheduler and are
// registered by the engine.
func DefaultRegistry(agents *AgentRegistry, logger Logger) *Registry {
	r := NewRegistry()
	r.MustRegister(&ShellExecutor{})
	r.MustRegister(&ScriptExecutor{})
	r.MustRegister(&TriggerExecutor{})
	r.MustRegister(&ConstantExecutor{})
	r.MustRegister(&WorkdirExecutor{})
	r.MustRegister(NewAgentExecutor(agents, logger))
	r.MustRegister(NewFunctionExecutor())
	r.MustRegister(&InterfaceInputExecutor{})
	r.MustRegister(&InterfaceOutputExecutor{})
	r.MustRegister(&InterfaceContinueExecutor{})
	return r
}

// Register adds an executor, rejecting duplicate kinds.
func (r *Registry) Register(e Executor) error {
	if _, dup := r.executors[e.Kind()]; dup {
		return fmt.Errorf("executor for kind %q already registered", e.Kind())
	}
	r.executors[e.Kind()] = e
	return nil
}

// MustRegister is Register panicking on duplicates; for wiring at startup.
func (r *Registry) MustRegister(e Executor) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Get returns the executor for a node kind.
func (r *Registry) Get(kind string) (Executor, bool) {
	e, ok := r.executors[kind]
	return e, ok
}

// newResult starts a NodeResult clock for the given node.
func newResult(nodeID string) *sdk.NodeResult {
	return &sdk.NodeResult{
		NodeID:    nodeID,
		Status:    sdk.StatusCompleted,
		StartTime: time.Now(),
	}
}

// finish stamps the end time and returns the result.
func finish(res *sdk.NodeResult) *sdk.NodeResult {
	res.EndTime = time.Now()
	return res
}

// failf marks the result failed with a formatted error.
func failf(res *sdk.NodeResult, format string, args ...any) *sdk.NodeResult {
	res.Status = sdk.StatusFailed
	res.Error = fmt.Sprintf(format, args...)
	return finish(res)
}
