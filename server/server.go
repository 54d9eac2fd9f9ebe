// Package server exposes the REST/SSE surface: run submission with a live
// event stream, validation, workspace and history queries.
package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/strandworks/strand/common/logger"
	commonserver "github.com/strandworks/strand/common/server"
	"github.com/strandworks/strand/history"
	"github.com/strandworks/strand/runner"
	"github.com/strandworks/strand/workspace"
)

// Opts contains options for creating a server.
type Opts struct {
	Runner     *runner.Runner
	History    *history.Store
	Workspaces *workspace.Registry
	Logger     *logger.Logger
	Port       int
}

// Server is the strand HTTP API.
type Server struct {
	echo *echo.Echo
	log  *logger.Logger
	port int
}

// New assembles the echo instance, middleware and routes.
func New(opts Opts) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	runs := NewRunHandler(opts.Runner, opts.History, opts.Workspaces, opts.Logger)
	workflows := NewWorkflowHandler(opts.Workspaces, opts.History)

	api := e.Group("/api/v1")
	api.POST("/runs", runs.SubmitRun)
	api.GET("/runs/:id", runs.GetRun)
	api.POST("/validate", workflows.ValidateWorkflow)
	api.GET("/workspaces", workflows.ListWorkspaces)
	api.GET("/workflows", workflows.ListWorkflows)
	api.GET("/history", workflows.AllHistory)
	api.GET("/history/:workspace", workflows.WorkspaceHistory)

	return &Server{
		echo: e,
		log:  opts.Logger,
		port: opts.Port,
	}
}

// Echo exposes the router; tests drive it directly.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start blocks until shutdown, delegating signal handling and graceful
// teardown to the shared server wrapper.
func (s *Server) Start() error {
	return commonserver.New("strand server", s.port, s.echo, s.log).Start()
}
