// Package runner ties the pieces of a run together: load and validate the
// workflow file, execute it through the engine, mirror the event stream,
// and record the outcome in history. The CLI, the HTTP server and the
// trigger scheduler all start runs through this package.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/strandworks/strand/engine"
	"github.com/strandworks/strand/history"
	"github.com/strandworks/strand/schema"
	"github.com/strandworks/strand/sdk"
	"github.com/strandworks/strand/workspace"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// EventMirror forwards encoded events to an external channel. Optional.
type EventMirror interface {
	PublishEvent(ctx context.Context, runID string, payload []byte)
}

// Opts contains options for creating a runner.
type Opts struct {
	Engine     *engine.Engine
	History    *history.Store
	Workspaces *workspace.Registry
	// Mirror, when set, receives every event of every run.
	Mirror EventMirror
	Logger Logger
}

// Runner starts workflow runs.
type Runner struct {
	engine     *engine.Engine
	history    *history.Store
	workspaces *workspace.Registry
	mirror     EventMirror
	logger     Logger
}

// New creates a runner.
func New(opts Opts) *Runner {
	return &Runner{
		engine:     opts.Engine,
		history:    opts.History,
		workspaces: opts.Workspaces,
		mirror:     opts.Mirror,
		logger:     opts.Logger,
	}
}

// Spec describes one run request.
type Spec struct {
	// WorkflowPath is the workflow file, absolute or relative to Cwd.
	WorkflowPath string
	// Cwd is the working directory for node subprocesses. Defaults to the
	// workflow file's directory.
	Cwd string
	// Inputs become the run's workflowInputs.
	Inputs map[string]any
	// TriggerInputs override the trigger node's defaults.
	TriggerInputs map[string]any
	// Source tags the history record: manual, api, cron, idle.
	Source string
	// SkipValidation bypasses the structural validator.
	SkipValidation bool
}

// ValidationError carries the validator findings that blocked a run.
type ValidationError struct {
	Issues []schema.Issue
}

func (e *ValidationError) Error() string {
	for _, issue := range e.Issues {
		if issue.Severity == schema.SeverityError {
			return fmt.Sprintf("workflow validation failed: %s", issue.Message)
		}
	}
	return "workflow validation failed"
}

// Outcome is the result of a completed run.
type Outcome struct {
	RunID  string
	Result *engine.RunResult
	Record *history.RunRecord
}

// Run executes one workflow. Events flow to sink (may be nil) and the
// mirror; the outcome is recorded in history regardless of status. A
// non-nil error means the run never started; execution failures are
// reported through Outcome.Result.
func (r *Runner) Run(ctx context.Context, spec Spec, sink func(sdk.Event)) (*Outcome, error) {
	path, err := filepath.Abs(spec.WorkflowPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workflow path: %w", err)
	}

	wf, err := schema.Load(path)
	if err != nil {
		return nil, err
	}

	if !spec.SkipValidation {
		issues := schema.Validate(wf)
		for _, issue := range issues {
			if issue.Severity == schema.SeverityWarning {
				r.logger.Warn("workflow validation warning", "workflow", path, "message", issue.Message)
			}
		}
		if schema.HasErrors(issues) {
			return nil, &ValidationError{Issues: issues}
		}
	}

	cwd := spec.Cwd
	if cwd == "" {
		cwd = filepath.Dir(path)
	}
	if wf.Metadata.RootDirectory != "" && !filepath.IsAbs(wf.Metadata.RootDirectory) {
		cwd = filepath.Join(cwd, wf.Metadata.RootDirectory)
	} else if filepath.IsAbs(wf.Metadata.RootDirectory) {
		cwd = wf.Metadata.RootDirectory
	}

	runID := uuid.NewString()
	ws := r.workspaces.ForDir(cwd)
	r.logger.Info("run starting", "run_id", runID, "workflow", path, "source", source(spec.Source))

	events := func(evt sdk.Event) {
		if sink != nil {
			sink(evt)
		}
		if r.mirror != nil {
			if payload, err := json.Marshal(evt); err == nil {
				r.mirror.PublishEvent(ctx, runID, payload)
			}
		}
	}

	result, err := r.engine.Run(ctx, &engine.RunRequest{
		Schema:         wf,
		Cwd:            cwd,
		WorkflowInputs: spec.Inputs,
		TriggerInputs:  spec.TriggerInputs,
		Events:         events,
	})
	if err != nil {
		return nil, err
	}

	rec := &history.RunRecord{
		RunSummary: history.RunSummary{
			ID:           runID,
			Workspace:    ws.Name,
			WorkflowPath: path,
			StartedAt:    result.StartTime,
			CompletedAt:  result.EndTime,
			Status:       result.Status,
			DurationMS:   result.EndTime.Sub(result.StartTime).Milliseconds(),
			NodeCount:    len(result.Results),
			Error:        result.Error,
			Source:       source(spec.Source),
		},
		Results: result.Results,
	}
	if err := r.history.Record(rec); err != nil {
		r.logger.Error("failed to record run history", "run_id", runID, "error", err)
	}

	return &Outcome{RunID: runID, Result: result, Record: rec}, nil
}

// StartRun implements the trigger scheduler's Starter contract.
func (r *Runner) StartRun(ctx context.Context, ws, workflowPath, src string) error {
	outcome, err := r.Run(ctx, Spec{
		WorkflowPath: workflowPath,
		Source:       src,
	}, nil)
	if err != nil {
		return err
	}
	if !outcome.Result.Succeeded() {
		return fmt.Errorf("run %s finished %s: %s", outcome.RunID, outcome.Result.Status, outcome.Result.Error)
	}
	return nil
}

func source(s string) string {
	if s == "" {
		return "manual"
	}
	return s
}
