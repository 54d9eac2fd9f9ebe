package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service  ServiceConfig
	Home     HomeConfig
	Redis    RedisConfig
	Triggers TriggerConfig
	History  HistoryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name      string
	Port      int
	LogLevel  string
	LogFormat string
}

// HomeConfig locates the persisted-state directory
type HomeConfig struct {
	// Dir is the state root: runs/, history.json, workspaces.json live here.
	Dir string
}

// RedisConfig holds the optional event mirror settings. The core never
// requires redis; when disabled no connection is attempted.
type RedisConfig struct {
	Enabled       bool
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

// TriggerConfig holds trigger scheduler settings
type TriggerConfig struct {
	Tick time.Duration
}

// HistoryConfig holds run-history settings
type HistoryConfig struct {
	// Limit caps stored summaries per workspace:workflowPath key.
	Limit int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:      serviceName,
			Port:      getEnvInt("PORT", 4680),
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "text"),
		},
		Home: HomeConfig{
			Dir: getEnv("STRAND_HOME", defaultHome()),
		},
		Redis: RedisConfig{
			Enabled:       getEnvBool("REDIS_ENABLED", false),
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			ChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "strand:events"),
		},
		Triggers: TriggerConfig{
			Tick: getEnvDuration("TRIGGER_TICK", 10*time.Second),
		},
		History: HistoryConfig{
			Limit: getEnvInt("HISTORY_LIMIT", 10),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Home.Dir == "" {
		return fmt.Errorf("state directory is required")
	}

	if c.History.Limit < 1 {
		return fmt.Errorf("history limit must be at least 1, got %d", c.History.Limit)
	}

	if c.Triggers.Tick < time.Second {
		return fmt.Errorf("trigger tick must be at least 1s, got %s", c.Triggers.Tick)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}

	return nil
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".strand"
	}
	return filepath.Join(home, ".strand")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
