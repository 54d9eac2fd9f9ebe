package executors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/strandworks/strand/sdk"
)

// TriggerExecutor performs no work; it materializes the run's invocation
// metadata as outputs so downstream nodes can reference them.
type TriggerExecutor struct{}

func (e *TriggerExecutor) Kind() string { return sdk.NodeTrigger }

func (e *TriggerExecutor) Execute(ctx context.Context, req *Request) (*sdk.NodeResult, error) {
	res := newResult(req.Node.ID)

	inputs := req.Context.TriggerInputs()
	outputs := map[string]any{
		"timestamp": time.Now().Format(time.RFC3339),
		"type":      "manual",
		"text":      "",
		"params":    map[string]any{},
	}
	for key, value := range inputs {
		outputs[key] = value
	}

	res.Output = outputs
	res.StructuredOutput = outputs
	return finish(res), nil
}

// ConstantExecutor validates that the configured value matches its declared
// type and exposes it as the "value" output.
type ConstantExecutor struct{}

func (e *ConstantExecutor) Kind() string { return sdk.NodeConstant }

func (e *ConstantExecutor) Execute(ctx context.Context, req *Request) (*sdk.NodeResult, error) {
	res := newResult(req.Node.ID)

	declared := req.Node.Data.ValueType
	value := req.Node.Data.Value

	switch declared {
	case sdk.ValueBoolean:
		if _, ok := value.(bool); !ok {
			return failf(res, "constant declared boolean but value is %T", value), nil
		}
	case sdk.ValueNumber:
		if !isNumber(value) {
			return failf(res, "constant declared number but value is %T", value), nil
		}
	case sdk.ValueString:
		if _, ok := value.(string); !ok {
			return failf(res, "constant declared string but value is %T", value), nil
		}
	default:
		return failf(res, "constant has unsupported valueType %q", declared), nil
	}

	res.Output = map[string]any{"value": value}
	return finish(res), nil
}

// isNumber accepts the numeric representations the YAML and JSON decoders
// produce.
func isNumber(value any) bool {
	switch value.(type) {
	case int, int32, int64, float32, float64, json.Number:
		return true
	}
	return false
}

// WorkdirExecutor emits its configured path; pure.
type WorkdirExecutor struct{}

func (e *WorkdirExecutor) Kind() string { return sdk.NodeWorkdir }

func (e *WorkdirExecutor) Execute(ctx context.Context, req *Request) (*sdk.NodeResult, error) {
	res := newResult(req.Node.ID)
	path := req.resolve(req.Node.Data.Path)
	res.Output = map[string]any{"path": path}
	res.RawOutput = path
	return finish(res), nil
}
