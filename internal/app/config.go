package app

import "errors"

// Backend selector values accepted on the command line.
const (
	BackendLocal    = "local"
	BackendAWSBatch = "awsbatch"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPath string // run configuration, hcl
	OutDir     string // work and output root

	Backend   string
	LogFormat string
	LogLevel  string
	Workers   int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	if cfg.OutDir == "" {
		return nil, errors.New("OutDir is a required configuration field and cannot be empty")
	}
	switch cfg.Backend {
	case BackendLocal, BackendAWSBatch:
	default:
		return nil, errors.New("Backend must be 'local' or 'awsbatch'")
	}
	return &cfg, nil
}
