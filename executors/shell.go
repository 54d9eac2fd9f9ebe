package executors

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/strandworks/strand/sdk"
)

// ShellExecutor runs the node's script field under `sh -c` in the working
// directory, inheriting the environment. Stdout and stderr are streamed as
// node-output chunks and retained (trimmed) on the result.
type ShellExecutor struct{}

func (e *ShellExecutor) Kind() string { return sdk.NodeShell }

func (e *ShellExecutor) Execute(ctx context.Context, req *Request) (*sdk.NodeResult, error) {
	res := newResult(req.Node.ID)

	script := req.Node.Data.Script
	if script == "" && len(req.Node.Data.Commands) > 0 {
		script = strings.Join(req.Node.Data.Commands, "\n")
	}
	if script == "" {
		return failf(res, "shell node has no script"), nil
	}
	script = req.resolve(script)

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = req.Cwd
	cmd.Env = os.Environ()

	stdout, stderr, err := runStreaming(cmd, req.emit)
	res.Stdout = strings.TrimRight(stdout, "\n")
	res.Stderr = strings.TrimRight(stderr, "\n")
	res.RawOutput = res.Stdout

	exitCode := 0
	if err != nil {
		// A cancelled context kills the process, which also reports as an
		// ExitError; cancellation wins.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return failf(res, "failed to run shell: %v", err), nil
		}
	}
	res.ExitCode = &exitCode

	if exitCode != 0 {
		return failf(res, "command exited with code %d", exitCode), nil
	}
	return finish(res), nil
}

// runStreaming starts cmd, forwarding both output streams to emit line by
// line while capturing them, and waits for completion. The subprocess is
// owned by this call: context cancellation kills it via CommandContext.
func runStreaming(cmd *exec.Cmd, emit func(string)) (stdout, stderr string, err error) {
	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", "", err
	}

	var outBuf, errBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); drain(outPipe, &outBuf, emit) }()
	go func() { defer wg.Done(); drain(errPipe, &errBuf, emit) }()
	wg.Wait()

	return outBuf.String(), errBuf.String(), cmd.Wait()
}

// drain copies r into buf, emitting each line as a chunk.
func drain(r io.Reader, buf *strings.Builder, emit func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if emit != nil {
			emit(line + "\n")
		}
	}
}
