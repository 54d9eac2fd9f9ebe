package executors

import (
	"context"

	"github.com/strandworks/strand/sdk"
)

// InterfaceInputExecutor surfaces the enclosing run's workflowInputs as
// outputs inside a component or loop sub-graph. Each declared output port
// reads the workflow input of the same name; with no declared ports the
// whole input map passes through.
type InterfaceInputExecutor struct{}

func (e *InterfaceInputExecutor) Kind() string { return sdk.NodeInterfaceInput }

func (e *InterfaceInputExecutor) Execute(ctx context.Context, req *Request) (*sdk.NodeResult, error) {
	res := newResult(req.Node.ID)

	inputs := req.Context.WorkflowInputs()
	outputs := make(map[string]any)
	if len(req.Node.Data.Outputs) > 0 {
		for i := range req.Node.Data.Outputs {
			port := &req.Node.Data.Outputs[i]
			if value, ok := inputs[port.Name]; ok {
				outputs[port.Name] = value
			} else if port.HasDefault() {
				outputs[port.Name] = port.Default
			}
		}
	} else {
		for key, value := range inputs {
			outputs[key] = value
		}
	}

	res.Output = outputs
	res.StructuredOutput = outputs
	return finish(res), nil
}

// InterfaceOutputExecutor is a pass-through: its bindings become the
// sub-run's external outputs.
type InterfaceOutputExecutor struct{}

func (e *InterfaceOutputExecutor) Kind() string { return sdk.NodeInterfaceOutput }

func (e *InterfaceOutputExecutor) Execute(ctx context.Context, req *Request) (*sdk.NodeResult, error) {
	res := newResult(req.Node.ID)
	res.Output = req.Bindings
	res.StructuredOutput = req.Bindings
	return finish(res), nil
}

// InterfaceContinueExecutor is a pass-through whose "continue" binding is
// read by the enclosing loop.
type InterfaceContinueExecutor struct{}

func (e *InterfaceContinueExecutor) Kind() string { return sdk.NodeInterfaceContinue }

func (e *InterfaceContinueExecutor) Execute(ctx context.Context, req *Request) (*sdk.NodeResult, error) {
	res := newResult(req.Node.ID)
	res.Output = req.Bindings
	return finish(res), nil
}
