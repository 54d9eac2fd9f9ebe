package server

import (
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/strandworks/strand/common/logger"
	"github.com/strandworks/strand/engine"
	"github.com/strandworks/strand/history"
	"github.com/strandworks/strand/runner"
	"github.com/strandworks/strand/schema"
	"github.com/strandworks/strand/sdk"
	"github.com/strandworks/strand/workspace"
)

// RunHandler handles run submission and retrieval
type RunHandler struct {
	runner     *runner.Runner
	history    *history.Store
	workspaces *workspace.Registry
	log        *logger.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(r *runner.Runner, h *history.Store, w *workspace.Registry, log *logger.Logger) *RunHandler {
	return &RunHandler{
		runner:     r,
		history:    h,
		workspaces: w,
		log:        log,
	}
}

// SubmitRunRequest is the POST /api/v1/runs body.
type SubmitRunRequest struct {
	WorkflowPath   string         `json:"workflowPath"`
	Workspace      string         `json:"workspace,omitempty"`
	Cwd            string         `json:"cwd,omitempty"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	TriggerInputs  map[string]any `json:"triggerInputs,omitempty"`
	SkipValidation bool           `json:"skipValidation,omitempty"`
}

// SubmitRun starts a workflow run and streams its events over SSE
// POST /api/v1/runs
func (h *RunHandler) SubmitRun(c echo.Context) error {
	var req SubmitRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.WorkflowPath == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workflowPath is required")
	}

	path := req.WorkflowPath
	if req.Workspace != "" && !filepath.IsAbs(path) {
		ws, err := h.workspaces.Find(req.Workspace)
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		path = filepath.Join(ws.Path, path)
	}

	// Reject unloadable or invalid workflows before committing to a
	// stream; the runner re-validates but by then headers are sent.
	wf, err := schema.Load(path)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !req.SkipValidation {
		if issues := schema.Validate(wf); schema.HasErrors(issues) {
			return c.JSON(http.StatusUnprocessableEntity, map[string]any{
				"error":  "workflow validation failed",
				"issues": issues,
			})
		}
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	stream := engine.NewBroadcaster()
	events, cancel := stream.Subscribe(256)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer stream.Close()
		_, err := h.runner.Run(c.Request().Context(), runner.Spec{
			WorkflowPath:   path,
			Cwd:            req.Cwd,
			Inputs:         req.Inputs,
			TriggerInputs:  req.TriggerInputs,
			Source:         "api",
			SkipValidation: true,
		}, stream.Publish)
		if err != nil {
			stream.Publish(sdk.Event{
				Type:    sdk.EventWorkflowComplete,
				Success: sdk.Bool(false),
				Error:   err.Error(),
			})
		}
	}()

	for evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		if _, err := res.Write([]byte("data: ")); err != nil {
			break
		}
		if _, err := res.Write(payload); err != nil {
			break
		}
		if _, err := res.Write([]byte("\n\n")); err != nil {
			break
		}
		res.Flush()
	}
	<-done
	return nil
}

// GetRun retrieves a stored run record
// GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c echo.Context) error {
	rec, err := h.history.Run(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}
