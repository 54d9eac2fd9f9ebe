package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/strandworks/strand/executors"
	"github.com/strandworks/strand/schema"
	"github.com/strandworks/strand/sdk"
)

// ComponentExecutor runs another workflow file as a sub-graph of the
// current run. The node's bindings become the sub-run's workflowInputs and
// the sub-run's interface-output payload becomes the node's structured
// output. Sub-run events flow into the parent stream without a nested
// workflow-complete.
type ComponentExecutor struct {
	engine *Engine
}

func (c *ComponentExecutor) Kind() string { return sdk.NodeComponent }

func (c *ComponentExecutor) Execute(ctx context.Context, req *executors.Request) (*sdk.NodeResult, error) {
	res := &sdk.NodeResult{
		NodeID:    req.Node.ID,
		Status:    sdk.StatusCompleted,
		StartTime: time.Now(),
	}
	fail := func(format string, args ...any) (*sdk.NodeResult, error) {
		res.Status = sdk.StatusFailed
		res.Error = fmt.Sprintf(format, args...)
		res.EndTime = time.Now()
		return res, nil
	}

	path := req.Node.Data.WorkflowPath
	if path == "" {
		return fail("component node has no workflowPath")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(req.Cwd, path)
	}

	sub, err := schema.Load(path)
	if err != nil {
		return fail("failed to load component workflow: %v", err)
	}
	for _, issue := range schema.Validate(sub) {
		if issue.Severity == schema.SeverityError {
			return fail("component workflow is invalid: %s", issue.Message)
		}
	}

	ec := NewExecutionContext(ContextOpts{
		WorkflowInputs: req.Bindings,
		TriggerInputs:  req.Context.TriggerInputs(),
	})
	scope := topLevelScope(sub)
	g := newGraphRun(sub, scope, ec, req.Events, req.Cwd)

	if err := c.engine.execute(ctx, g, defaultStartSet(sub, scope)); err != nil {
		return nil, err
	}
	if g.failed {
		return fail("component run failed: %s", g.firstError)
	}

	outputs := map[string]any{}
	for i := range sub.Nodes {
		node := &sub.Nodes[i]
		if node.ParentID == "" && node.Kind() == sdk.NodeInterfaceOutput {
			if values, ok := ec.NodeOutputs(node.ID); ok {
				outputs = values
			}
			break
		}
	}

	res.Output = outputs
	res.StructuredOutput = outputs
	res.EndTime = time.Now()
	return res, nil
}
