package bootstrap

import (
	"context"
	"fmt"

	"github.com/strandworks/strand/common/config"
	"github.com/strandworks/strand/common/logger"
	redisWrapper "github.com/strandworks/strand/common/redis"
	"github.com/strandworks/strand/engine"
	"github.com/strandworks/strand/history"
	"github.com/strandworks/strand/runner"
	"github.com/strandworks/strand/workspace"
)

// Components holds all initialized service dependencies
type Components struct {
	Config     *config.Config
	Logger     *logger.Logger
	History    *history.Store
	Workspaces *workspace.Registry
	Engine     *engine.Engine
	Runner     *runner.Runner
	// Redis is nil unless the event mirror is enabled.
	Redis *redisWrapper.Client

	cleanupFuncs []func() error
}

// Shutdown performs graceful shutdown of all components
// Should be called with defer after Setup()
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")

	var errors []error

	// Run cleanup functions in reverse order (LIFO)
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errors = append(errors, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("shutdown errors: %v", errors)
	}

	c.Logger.Info("shutdown complete")
	return nil
}

// addCleanup registers a cleanup function
func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}
