package bootstrap

import (
	"github.com/strandworks/strand/common/config"
	"github.com/strandworks/strand/common/logger"
)

// Option configures the bootstrap process
type Option func(*options)

type options struct {
	skipRedis    bool
	yolo         bool
	customLogger *logger.Logger
	customConfig *config.Config
}

// WithoutRedis skips the event mirror even when config enables it
func WithoutRedis() Option {
	return func(o *options) {
		o.skipRedis = true
	}
}

// WithYolo relaxes agent backend permission prompts for all runs
func WithYolo() Option {
	return func(o *options) {
		o.yolo = true
	}
}

// WithCustomLogger uses a custom logger instead of creating one
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.customLogger = log
	}
}

// WithCustomConfig uses a custom config instead of loading from env
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.customConfig = cfg
	}
}

func defaultOptions() *options {
	return &options{}
}
