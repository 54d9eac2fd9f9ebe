package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/strandworks/strand/history"
	"github.com/strandworks/strand/schema"
	"github.com/strandworks/strand/workspace"
)

// WorkflowHandler handles workspace, workflow and history queries
type WorkflowHandler struct {
	workspaces *workspace.Registry
	history    *history.Store
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(w *workspace.Registry, h *history.Store) *WorkflowHandler {
	return &WorkflowHandler{
		workspaces: w,
		history:    h,
	}
}

// ValidateRequest is the POST /api/v1/validate body. Either a path to an
// existing file or inline workflow content.
type ValidateRequest struct {
	WorkflowPath string `json:"workflowPath,omitempty"`
	Content      string `json:"content,omitempty"`
	Format       string `json:"format,omitempty"` // yaml (default) | json
}

// ValidateWorkflow runs the structural validator without executing
// POST /api/v1/validate
func (h *WorkflowHandler) ValidateWorkflow(c echo.Context) error {
	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var issues []schema.Issue
	switch {
	case req.WorkflowPath != "":
		wf, err := schema.Load(req.WorkflowPath)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		issues = schema.Validate(wf)
	case req.Content != "":
		format := schema.FormatYAML
		if strings.EqualFold(req.Format, "json") {
			format = schema.FormatJSON
		}
		wf, err := schema.Parse([]byte(req.Content), format)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		issues = schema.Validate(wf)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "workflowPath or content is required")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"valid":  !schema.HasErrors(issues),
		"issues": issues,
	})
}

// ListWorkspaces returns the registered workspaces
// GET /api/v1/workspaces
func (h *WorkflowHandler) ListWorkspaces(c echo.Context) error {
	list, err := h.workspaces.List()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"workspaces": list})
}

// workflowEntry is one discovered workflow file.
type workflowEntry struct {
	Workspace string `json:"workspace"`
	Path      string `json:"path"`
	Name      string `json:"name"`
}

// ListWorkflows scans workspaces for workflow files
// GET /api/v1/workflows?workspace=name
func (h *WorkflowHandler) ListWorkflows(c echo.Context) error {
	var targets []workspace.Workspace
	if ref := c.QueryParam("workspace"); ref != "" {
		ws, err := h.workspaces.Find(ref)
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		targets = []workspace.Workspace{*ws}
	} else {
		list, err := h.workspaces.List()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		targets = list
	}

	entries := []workflowEntry{}
	for _, ws := range targets {
		for _, path := range DiscoverWorkflows(ws.Path) {
			name := filepath.Base(path)
			if wf, err := schema.Load(path); err == nil && wf.Metadata.Name != "" {
				name = wf.Metadata.Name
			}
			entries = append(entries, workflowEntry{
				Workspace: ws.Name,
				Path:      path,
				Name:      name,
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"workflows": entries})
}

// AllHistory returns the whole history index
// GET /api/v1/history
func (h *WorkflowHandler) AllHistory(c echo.Context) error {
	index, err := h.history.All()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"history": index})
}

// WorkspaceHistory returns one workflow's run summaries
// GET /api/v1/history/:workspace?workflowPath=...
func (h *WorkflowHandler) WorkspaceHistory(c echo.Context) error {
	path := c.QueryParam("workflowPath")
	if path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workflowPath query parameter is required")
	}
	summaries, err := h.history.History(c.Param("workspace"), path)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if summaries == nil {
		summaries = []history.RunSummary{}
	}
	return c.JSON(http.StatusOK, map[string]any{"runs": summaries})
}

// DiscoverWorkflows lists the workflow files directly under a workspace
// root and its workflows/ subdirectory.
func DiscoverWorkflows(root string) []string {
	var out []string
	for _, dir := range []string{root, filepath.Join(root, "workflows")} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(entry.Name())) {
			case ".yaml", ".yml":
				out = append(out, filepath.Join(dir, entry.Name()))
			}
		}
	}
	return out
}
