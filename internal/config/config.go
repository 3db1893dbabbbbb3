// Package config provides configuration for the sprint orchestrator.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the orchestrator configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Agent registry
	AgentsFile string
	JudgeAgent string

	// Workflow settings
	MaxRetries     int
	MaxCheckpoints int

	// Timeouts
	AgentTimeout time.Duration
	JudgeTimeout time.Duration
	CLIGrace     time.Duration

	// Telemetry
	TelemetryRingSize      int
	TelemetryLogPath       string
	TelemetryFlushBytes    int
	TelemetryFlushInterval time.Duration
	MetricsEnabled         bool

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:               getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:            getEnv("DATABASE_URL", "file:sprints.db?cache=shared&mode=rwc"),
		AgentsFile:             getEnv("AGENTS_FILE", "agents.yaml"),
		JudgeAgent:             getEnv("JUDGE_AGENT", "judge"),
		MaxRetries:             getEnvInt("MAX_RETRIES", 3),
		MaxCheckpoints:         getEnvInt("MAX_CHECKPOINTS", 50),
		AgentTimeout:           time.Duration(getEnvInt("AGENT_TIMEOUT_MS", 300000)) * time.Millisecond,
		JudgeTimeout:           time.Duration(getEnvInt("JUDGE_TIMEOUT_MS", 120000)) * time.Millisecond,
		CLIGrace:               time.Duration(getEnvInt("CLI_GRACE_MS", 5000)) * time.Millisecond,
		TelemetryRingSize:      getEnvInt("TELEMETRY_RING_SIZE", 1000),
		TelemetryLogPath:       getEnv("TELEMETRY_LOG_PATH", "telemetry.jsonl"),
		TelemetryFlushBytes:    getEnvInt("TELEMETRY_FLUSH_BYTES", 65536),
		TelemetryFlushInterval: time.Duration(getEnvInt("TELEMETRY_FLUSH_INTERVAL_MS", 5000)) * time.Millisecond,
		MetricsEnabled:         getEnvBool("METRICS_ENABLED", true),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}
