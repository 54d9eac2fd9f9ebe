package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandworks/strand/common/logger"
	"github.com/strandworks/strand/engine"
	"github.com/strandworks/strand/history"
	"github.com/strandworks/strand/runner"
	"github.com/strandworks/strand/sdk"
	"github.com/strandworks/strand/workspace"
)

const greetWorkflow = `
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

type testServer struct {
	srv        *Server
	history    *history.Store
	workspaces *workspace.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	home := t.TempDir()
	log := logger.Discard()

	store := history.NewStore(history.StoreOpts{Home: home, Logger: log})
	registry := workspace.NewRegistry(home)
	require.NoError(t, registry.Init())

	run := runner.New(runner.Opts{
		Engine:     engine.New(&engine.Opts{Logger: log}),
		History:    store,
		Workspaces: registry,
		Logger:     log,
	})

	srv := New(Opts{
		Runner:     run,
		History:    store,
		Workspaces: registry,
		Logger:     log,
	})
	return &testServer{srv: srv, history: store, workspaces: registry}
}

func (ts *testServer) do(method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	ts.srv.Echo().ServeHTTP(rec, req)
	return rec
}

func writeWorkflow(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestValidateContent(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/v1/validate",
		`{"content": "version: 3\nmetadata:\n  name: ok\n"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Valid  bool  `json:"valid"`
		Issues []any `json:"issues"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Valid)

	rec = ts.do(http.MethodPost, "/api/v1/validate",
		`{"content": "version: 3\nmetadata:\n  name: ''\n"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Valid)
	assert.NotEmpty(t, body.Issues)
}

func TestValidateRequiresPathOrContent(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/api/v1/validate", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateUnparseableContent(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/api/v1/validate", `{"content": "{{{"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// sseEvents decodes the data frames of an SSE body.
func sseEvents(t *testing.T, body string) []sdk.Event {
	t.Helper()
	var events []sdk.Event
	for _, line := range strings.Split(body, "\n") {
		payload, found := strings.CutPrefix(line, "data: ")
		if !found {
			continue
		}
		var evt sdk.Event
		require.NoError(t, json.Unmarshal([]byte(payload), &evt))
		events = append(events, evt)
	}
	return events
}

func TestSubmitRunStreamsEvents(t *testing.T) {
	ts := newTestServer(t)
	path := writeWorkflow(t, t.TempDir(), "wf.yaml", greetWorkflow)

	rec := ts.do(http.MethodPost, "/api/v1/runs",
		`{"workflowPath": "`+path+`", "triggerInputs": {"text": "there"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := sseEvents(t, rec.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, sdk.EventWorkflowComplete, last.Type)
	require.NotNil(t, last.Success)
	assert.True(t, *last.Success)

	var sawComplete bool
	for _, evt := range events {
		if evt.Type == sdk.EventNodeComplete && evt.NodeID == "f1" {
			sawComplete = true
		}
	}
	assert.True(t, sawComplete)
}

func TestSubmitRunWorkspaceRelative(t *testing.T) {
	ts := newTestServer(t)
	dir := t.TempDir()
	writeWorkflow(t, dir, "wf.yaml", greetWorkflow)
	_, err := ts.workspaces.Add(dir)
	require.NoError(t, err)

	rec := ts.do(http.MethodPost, "/api/v1/runs",
		`{"workflowPath": "wf.yaml", "workspace": "`+filepath.Base(dir)+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	events := sseEvents(t, rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, sdk.EventWorkflowComplete, events[len(events)-1].Type)
}

func TestSubmitRunRejectsInvalidBeforeStreaming(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/v1/runs", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/runs", `{"workflowPath": "/nonexistent/wf.yaml"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := writeWorkflow(t, t.TempDir(), "bad.yaml", "version: 3\nmetadata:\n  name: ''\n")
	rec = ts.do(http.MethodPost, "/api/v1/runs", `{"workflowPath": "`+path+`"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetRun(t *testing.T) {
	ts := newTestServer(t)
	path := writeWorkflow(t, t.TempDir(), "wf.yaml", greetWorkflow)

	rec := ts.do(http.MethodPost, "/api/v1/runs", `{"workflowPath": "`+path+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Pull the run id out of the recorded history.
	index, err := ts.history.All()
	require.NoError(t, err)
	require.Len(t, index, 1)
	var runID string
	for _, bucket := range index {
		require.NotEmpty(t, bucket)
		runID = bucket[0].ID
	}

	rec = ts.do(http.MethodGet, "/api/v1/runs/"+runID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var record history.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, runID, record.ID)
	assert.Equal(t, sdk.RunCompleted, record.Status)

	rec = ts.do(http.MethodGet, "/api/v1/runs/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListWorkspacesAndWorkflows(t *testing.T) {
	ts := newTestServer(t)
	dir := t.TempDir()
	writeWorkflow(t, dir, "wf.yaml", greetWorkflow)
	nested := filepath.Join(dir, "workflows")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	writeWorkflow(t, nested, "other.yml", greetWorkflow)

	_, err := ts.workspaces.Add(dir)
	require.NoError(t, err)

	rec := ts.do(http.MethodGet, "/api/v1/workspaces", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), filepath.Base(dir))

	rec = ts.do(http.MethodGet, "/api/v1/workflows", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Workflows []struct {
			Workspace string `json:"workspace"`
			Path      string `json:"path"`
			Name      string `json:"name"`
		} `json:"workflows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Workflows, 2)
	assert.Equal(t, "greet", body.Workflows[0].Name)

	rec = ts.do(http.MethodGet, "/api/v1/workflows?workspace=ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryEndpoints(t *testing.T) {
	ts := newTestServer(t)
	path := writeWorkflow(t, t.TempDir(), "wf.yaml", greetWorkflow)

	rec := ts.do(http.MethodPost, "/api/v1/runs", `{"workflowPath": "`+path+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "completed")

	ws := filepath.Base(filepath.Dir(path))
	rec = ts.do(http.MethodGet, "/api/v1/history/"+ws+"?workflowPath="+path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []history.RunSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "api", body.Runs[0].Source)

	rec = ts.do(http.MethodGet, "/api/v1/history/"+ws, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
