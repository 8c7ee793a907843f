package app

import (
	"errors"
	"strings"
)

// secretEnvPrefix marks environment variables that are forwarded to runners
// when a job declares `secrets: inherit`.
const secretEnvPrefix = "GRIDCI_SECRET_"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	WorkflowPath string // yaml file or directory of yaml files

	DatabaseURL  string // empty selects the in-memory store
	DispatchURL  string // base URL of the runner endpoint for `uses` jobs
	DashboardURL string // socket.io endpoint for live run events, optional

	LogFormat   string
	LogLevel    string
	WorkerCount int
}

// NewConfig validates a Config and returns it, or an error describing the
// first invalid field.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkflowPath == "" {
		return nil, errors.New("WorkflowPath is a required configuration field and cannot be empty")
	}
	if cfg.WorkerCount <= 0 {
		return nil, errors.New("WorkerCount must be a positive number")
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "", "text", "json":
	default:
		return nil, errors.New("LogFormat must be 'text' or 'json'")
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return nil, errors.New("LogLevel must be 'debug', 'info', 'warn', or 'error'")
	}

	return &cfg, nil
}
