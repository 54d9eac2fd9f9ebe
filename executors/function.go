package executors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/strandworks/strand/sdk"
)

// FunctionExecutor runs inline code or a file export against the node's
// input bindings.
//
// Inline code is a CEL expression evaluated with an `inputs` variable. An
// expression returning a map is spread over the declared outputs; any other
// value binds to the single declared output (or "result"). File mode runs
// the file through the script interpreter dispatch with the inputs as a
// JSON argument and parses stdout as the output object.
type FunctionExecutor struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewFunctionExecutor creates a function executor with an empty compiled
// expression cache.
func NewFunctionExecutor() *FunctionExecutor {
	return &FunctionExecutor{cache: make(map[string]cel.Program)}
}

func (e *FunctionExecutor) Kind() string { return sdk.NodeFunction }

func (e *FunctionExecutor) Execute(ctx context.Context, req *Request) (*sdk.NodeResult, error) {
	res := newResult(req.Node.ID)

	switch {
	case req.Node.Data.Code != "":
		return e.runInline(req, res), nil
	case req.Node.Data.File != "":
		return e.runFile(ctx, req, res)
	default:
		return failf(res, "function node has neither code nor file"), nil
	}
}

func (e *FunctionExecutor) runInline(req *Request, res *sdk.NodeResult) *sdk.NodeResult {
	prg, err := e.program(req.Node.Data.Code)
	if err != nil {
		return failf(res, "failed to compile function code: %v", err)
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"inputs": req.Bindings,
	})
	if err != nil {
		return failf(res, "function evaluation error: %v", err)
	}

	value := out.Value()
	res.StructuredOutput = value
	res.Output = e.shape(req.Node, value)
	return finish(res)
}

// shape maps an evaluation result onto the node's declared outputs.
func (e *FunctionExecutor) shape(node *sdk.WorkflowNode, value any) map[string]any {
	if m, ok := toStringMap(value); ok {
		outputs := make(map[string]any)
		if len(node.Data.Outputs) == 0 {
			return m
		}
		for i := range node.Data.Outputs {
			name := node.Data.Outputs[i].Name
			if v, present := m[name]; present {
				outputs[name] = v
			}
		}
		return outputs
	}

	name := "result"
	if len(node.Data.Outputs) == 1 {
		name = node.Data.Outputs[0].Name
	}
	return map[string]any{name: value}
}

func (e *FunctionExecutor) runFile(ctx context.Context, req *Request, res *sdk.NodeResult) (*sdk.NodeResult, error) {
	file := req.resolve(req.Node.Data.File)
	interpreter, ok := interpreters[strings.ToLower(filepath.Ext(file))]
	if !ok {
		return failf(res, "unsupported function file extension %q", filepath.Ext(file)), nil
	}

	inputsJSON, err := json.Marshal(req.Bindings)
	if err != nil {
		return failf(res, "failed to encode inputs: %v", err), nil
	}

	cmd := exec.CommandContext(ctx, interpreter, file, string(inputsJSON))
	cmd.Dir = req.Cwd
	cmd.Env = os.Environ()

	stdout, stderr, err := runStreaming(cmd, req.emit)
	res.Stdout = strings.TrimRight(stdout, "\n")
	res.Stderr = strings.TrimRight(stderr, "\n")
	res.RawOutput = res.Stdout
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			res.ExitCode = &code
			return failf(res, "function file exited with code %d", code), nil
		}
		return failf(res, "failed to run function file: %v", err), nil
	}

	var value any
	if err := json.Unmarshal([]byte(res.Stdout), &value); err != nil {
		return failf(res, "function file did not print JSON: %v", err), nil
	}
	res.StructuredOutput = value
	res.Output = e.shape(req.Node, value)
	return finish(res), nil
}

// program compiles a CEL expression, consulting the cache first.
func (e *FunctionExecutor) program(code string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.cache[code]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	env, err := cel.NewEnv(cel.Variable("inputs", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	ast, issues := env.Compile(code)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	e.mu.Lock()
	e.cache[code] = prg
	e.mu.Unlock()
	return prg, nil
}

// toStringMap normalizes the map shapes CEL and JSON decoding produce.
func toStringMap(value any) (map[string]any, bool) {
	switch m := value.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = v
		}
		return out, true
	}
	return nil, false
}
