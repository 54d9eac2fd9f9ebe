package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandworks/strand/engine"
	"github.com/strandworks/strand/history"
	"github.com/strandworks/strand/sdk"
	"github.com/strandworks/strand/workspace"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

// recordingMirror captures mirrored event payloads.
type recordingMirror struct {
	payloads [][]byte
}

func (m *recordingMirror) PublishEvent(ctx context.Context, runID string, payload []byte) {
	m.payloads = append(m.payloads, payload)
}

const goodWorkflow = `
version: 3
metadata:
  name: greet
nodes:
  - id: t1
    data:
      nodeType: trigger
  - id: f1
    data:
      nodeType: function
      code: '"hi " + inputs.text'
      outputs:
        - name: greeting
edges:
  - id: e1
    source: t1
    target: f1
    sourceHandle: output:text
    targetHandle: input:text
`

const invalidWorkflow = `
version: 3
metadata:
  name: ''
`

func newTestRunner(t *testing.T, mirror EventMirror) (*Runner, string) {
	t.Helper()
	home := t.TempDir()
	return New(Opts{
		Engine:     engine.New(&engine.Opts{}),
		History:    history.NewStore(history.StoreOpts{Home: home}),
		Workspaces: workspace.NewRegistry(home),
		Mirror:     mirror,
		Logger:     nopLogger{},
	}), home
}

func writeWorkflow(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunRecordsHistory(t *testing.T) {
	mirror := &recordingMirror{}
	r, _ := newTestRunner(t, mirror)
	path := writeWorkflow(t, goodWorkflow)

	var events []sdk.Event
	outcome, err := r.Run(context.Background(), Spec{
		WorkflowPath:  path,
		TriggerInputs: map[string]any{"text": "there"},
	}, func(evt sdk.Event) { events = append(events, evt) })
	require.NoError(t, err)

	assert.NotEmpty(t, outcome.RunID)
	assert.Equal(t, sdk.RunCompleted, outcome.Result.Status)
	assert.Equal(t, "hi there", outcome.Result.Outputs["f1"]["greeting"])

	// The sink saw the stream and the mirror saw the same number of events.
	require.NotEmpty(t, events)
	assert.Equal(t, sdk.EventWorkflowComplete, events[len(events)-1].Type)
	assert.Len(t, mirror.payloads, len(events))

	// The record landed in history under the synthetic workspace.
	assert.Equal(t, "manual", outcome.Record.Source)
	assert.Equal(t, filepath.Base(filepath.Dir(path)), outcome.Record.Workspace)
	rec, err := r.history.Run(outcome.RunID)
	require.NoError(t, err)
	assert.Equal(t, sdk.RunCompleted, rec.Status)
	assert.Equal(t, 2, rec.NodeCount)
}

func TestRunValidationError(t *testing.T) {
	r, _ := newTestRunner(t, nil)
	path := writeWorkflow(t, invalidWorkflow)

	_, err := r.Run(context.Background(), Spec{WorkflowPath: path}, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Issues)
}

func TestRunSkipValidation(t *testing.T) {
	r, _ := newTestRunner(t, nil)
	path := writeWorkflow(t, invalidWorkflow)

	outcome, err := r.Run(context.Background(), Spec{
		WorkflowPath:   path,
		SkipValidation: true,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, sdk.RunCompleted, outcome.Result.Status)
}

func TestRunMissingFile(t *testing.T) {
	r, _ := newTestRunner(t, nil)
	_, err := r.Run(context.Background(), Spec{WorkflowPath: "/nonexistent/wf.yaml"}, nil)
	require.Error(t, err)
}

func TestRunFailureStillRecorded(t *testing.T) {
	r, _ := newTestRunner(t, nil)
	path := writeWorkflow(t, `
version: 3
metadata:
  name: broken
nodes:
  - id: f1
    data:
      nodeType: function
      code: '1 / 0'
`)

	outcome, err := r.Run(context.Background(), Spec{WorkflowPath: path, Source: "api"}, nil)
	require.NoError(t, err)
	assert.Equal(t, sdk.RunFailed, outcome.Result.Status)
	assert.Equal(t, "api", outcome.Record.Source)

	rec, err := r.history.Run(outcome.RunID)
	require.NoError(t, err)
	assert.Equal(t, sdk.RunFailed, rec.Status)
	assert.NotEmpty(t, rec.Error)
}

func TestStartRun(t *testing.T) {
	r, _ := newTestRunner(t, nil)
	good := writeWorkflow(t, goodWorkflow)

	require.NoError(t, r.StartRun(context.Background(), "proj", good, "cron"))

	bad := writeWorkflow(t, `
version: 3
metadata:
  name: broken
nodes:
  - id: f1
    data:
      nodeType: function
      code: '1 / 0'
`)
	err := r.StartRun(context.Background(), "proj", bad, "cron")
	require.Error(t, err)
	assert.Contains(t, err.Error(), sdk.RunFailed)
}
