package executors

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/strandworks/strand/sdk"
)

// interpreters maps script file extensions to their runtime.
var interpreters = map[string]string{
	".ts": "tsx",
	".js": "node",
	".sh": "bash",
}

// ScriptExecutor runs a script file, dispatching on its extension.
type ScriptExecutor struct{}

func (e *ScriptExecutor) Kind() string { return sdk.NodeScript }

func (e *ScriptExecutor) Execute(ctx context.Context, req *Request) (*sdk.NodeResult, error) {
	res := newResult(req.Node.ID)

	file := req.resolve(req.Node.Data.ScriptFile)
	if file == "" {
		return failf(res, "script node has no scriptFile"), nil
	}

	interpreter, ok := interpreters[strings.ToLower(filepath.Ext(file))]
	if !ok {
		return failf(res, "unsupported script extension %q", filepath.Ext(file)), nil
	}

	args := append([]string{file}, req.resolveArgs(req.Node.Data.ScriptArgs)...)
	cmd := exec.CommandContext(ctx, interpreter, args...)
	cmd.Dir = req.Cwd
	cmd.Env = os.Environ()

	stdout, stderr, err := runStreaming(cmd, req.emit)
	res.Stdout = strings.TrimRight(stdout, "\n")
	res.Stderr = strings.TrimRight(stderr, "\n")
	res.RawOutput = res.Stdout

	exitCode := 0
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return failf(res, "failed to run %s: %v", interpreter, err), nil
		}
	}
	res.ExitCode = &exitCode

	if exitCode != 0 {
		return failf(res, "%s exited with code %d", interpreter, exitCode), nil
	}
	return finish(res), nil
}
