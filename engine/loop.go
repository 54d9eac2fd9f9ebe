package engine

import (
	"context"
	"time"

	"github.com/strandworks/strand/executors"
	"github.com/strandworks/strand/sdk"
)

// defaultMaxIterations bounds loops that omit maxIterations.
const defaultMaxIterations = 10

// LoopExecutor runs a loop container's inner graph iteratively. Each
// iteration gets a fresh execution context seeded with a dock value map;
// the interface-continue binding decides whether the next iteration runs
// and the interface-output bindings feed the next iteration's prev slots.
type LoopExecutor struct {
	engine *Engine
}

func (l *LoopExecutor) Kind() string { return sdk.NodeLoop }

func (l *LoopExecutor) Execute(ctx context.Context, req *executors.Request) (*sdk.NodeResult, error) {
	res := &sdk.NodeResult{
		NodeID:    req.Node.ID,
		Status:    sdk.StatusCompleted,
		StartTime: time.Now(),
	}
	fail := func(msg string) (*sdk.NodeResult, error) {
		res.Status = sdk.StatusFailed
		res.Error = msg
		res.EndTime = time.Now()
		return res, nil
	}

	inner := req.Schema.Children(req.Node.ID)
	if len(inner) == 0 {
		return fail("loop has no inner nodes")
	}
	scope := make(map[string]bool, len(inner))
	for _, id := range inner {
		scope[id] = true
	}

	var continueID, outputID string
	for _, id := range inner {
		node := req.Schema.Node(id)
		switch node.Kind() {
		case sdk.NodeInterfaceContinue:
			continueID = id
		case sdk.NodeInterfaceOutput:
			outputID = id
		}
	}
	if continueID == "" {
		return fail("loop has no interface-continue node")
	}
	if outputID == "" {
		return fail("loop has no interface-output node")
	}

	maxIter := req.Node.Data.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}

	var feedback []string
	for _, slot := range req.Node.Data.DockSlots {
		if slot.Role == sdk.DockFeedback {
			feedback = append(feedback, slot.Name)
		}
	}

	prev := make(map[string]any, len(feedback))
	for _, name := range feedback {
		prev[name] = nil
	}

	var (
		finalOutputs map[string]any
		reason       string
		iterations   int
		iterErr      string
	)

	for i := 1; i <= maxIter; i++ {
		iterations = i
		emitEvent(req, sdk.Event{Type: sdk.EventIterationStart, LoopID: req.Node.ID, Iteration: i})

		iterationInputs := make(map[string]any, len(req.Bindings)+len(feedback)+1)
		for name, value := range req.Bindings {
			iterationInputs[name] = value
		}
		iterationInputs["iteration"] = i
		for _, name := range feedback {
			iterationInputs["prev."+name] = prev[name]
		}

		dock := make(map[string]any, len(feedback)+len(req.Bindings)+2)
		dock[sdk.DockHandle(sdk.DockIteration, sdk.DockRoleOutput)] = i
		for _, name := range feedback {
			dock[sdk.DockHandle(name, sdk.DockRolePrev)] = prev[name]
		}
		for name, value := range req.Bindings {
			dock[sdk.InputHandle(name)] = value
		}

		ec := NewExecutionContext(ContextOpts{
			WorkflowInputs: iterationInputs,
			TriggerInputs:  req.Context.TriggerInputs(),
			Dock:           dock,
		})
		g := newGraphRun(req.Schema, scope, ec, req.Events, req.Cwd)
		start := defaultStartSet(req.Schema, scope)

		err := l.engine.execute(ctx, g, start)
		if err != nil {
			emitEvent(req, sdk.Event{Type: sdk.EventIterationComplete, LoopID: req.Node.ID, Iteration: i, Success: sdk.Bool(false)})
			return nil, err
		}

		if outputs, ok := ec.NodeOutputs(outputID); ok {
			finalOutputs = outputs
			for _, name := range feedback {
				prev[name] = outputs[name]
			}
		}

		if g.failed {
			reason = sdk.LoopReasonError
			iterErr = g.firstError
			emitEvent(req, sdk.Event{Type: sdk.EventIterationComplete, LoopID: req.Node.ID, Iteration: i, Success: sdk.Bool(false)})
			break
		}
		emitEvent(req, sdk.Event{Type: sdk.EventIterationComplete, LoopID: req.Node.ID, Iteration: i, Success: sdk.Bool(true)})

		cont, _ := ec.Output(continueID, sdk.DockContinue)
		if !truthy(cont) {
			reason = sdk.LoopReasonCondition
			break
		}
		if i == maxIter {
			reason = sdk.LoopReasonMaxIterations
		}
	}

	// Downstream edges bind against the final interface-output values; the
	// iteration count and termination reason ride alongside.
	res.Output = make(map[string]any, len(finalOutputs)+2)
	for name, value := range finalOutputs {
		res.Output[name] = value
	}
	res.Output["iterations"] = iterations
	res.Output["reason"] = reason
	res.StructuredOutput = finalOutputs
	if reason == sdk.LoopReasonError {
		res.Status = sdk.StatusFailed
		res.Error = iterErr
	}
	res.EndTime = time.Now()
	return res, nil
}

// emitEvent stamps and forwards an event through the request's sink.
func emitEvent(req *executors.Request, evt sdk.Event) {
	if req.Events != nil {
		evt.Timestamp = time.Now()
		req.Events(evt)
	}
}

// truthy applies the loop-continue interpretation: absent, false, zero and
// empty string all stop the loop.
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != "" && v != "false" && v != "0"
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	return true
}
