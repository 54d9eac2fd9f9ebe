// Package bootstrap wires the shared components every strand entry point
// needs: config, logger, state stores, engine and runner, plus the optional
// redis event mirror. Cleanup runs LIFO through Components.Shutdown.
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

// Setup initializes all service components
// This is the main entry point for the CLI and the server
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	// 3. State stores under the configured home
	components.History = history.NewStore(history.StoreOpts{
		Home:   components.Config.Home.Dir,
		Limit:  components.Config.History.Limit,
		Logger: components.Logger,
	})
	components.Workspaces = workspace.NewRegistry(components.Config.Home.Dir)

	// 4. Optional redis event mirror
	if components.Config.Redis.Enabled && !options.skipRedis {
		components.Redis, err = redisWrapper.Connect(ctx, components.Config.Redis, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis event mirror: %w", err)
		}
		components.addCleanup(func() error {
			components.Logger.Info("closing redis connection")
			return components.Redis.Close()
		})
	}

	// 5. Engine and runner
	components.Engine = engine.New(&engine.Opts{
		Logger: components.Logger,
		Yolo:   options.yolo,
	})

	runnerOpts := runner.Opts{
		Engine:     components.Engine,
		History:    components.History,
		Workspaces: components.Workspaces,
		Logger:     components.Logger,
	}
	if components.Redis != nil {
		runnerOpts.Mirror = components.Redis
	}
	components.Runner = runner.New(runnerOpts)

	components.Logger.Debug("components initialized",
		"service", serviceName,
		"home", components.Config.Home.Dir,
		"redis_mirror", components.Redis != nil,
	)
	return components, nil
}
