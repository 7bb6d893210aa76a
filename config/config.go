// Package config reads the trainer's ambient settings from the environment.
package config

import (
	"os"
	"strings"

	"github.com/gelato-ml/sorvete/pkg/errors"
	"github.com/gelato-ml/sorvete/pkg/log"
	"github.com/gelato-ml/sorvete/tracking"
)

// Environment variables.
const (
	EnvTrackingURI    = "MLFLOW_TRACKING_URI"
	EnvExperimentName = "MLFLOW_EXPERIMENT_NAME"
	EnvLogLevel       = "TRAINER_LOG_LEVEL"
)

// Config holds settings that are not command-line flags.
type Config struct {
	TrackingURI    string
	ExperimentName string
	LogLevel       string
}

// Default returns the settings used when nothing is set.
func Default() Config {
	return Config{
		TrackingURI:    tracking.DefaultTrackingDir,
		ExperimentName: tracking.DefaultExperimentName,
		LogLevel:       "info",
	}
}

// FromEnv reads the configuration from the process environment.
func FromEnv() (Config, error) {
	return Load(os.LookupEnv)
}

// Load reads the configuration through lookup, which has the signature of
// os.LookupEnv. Unset or blank variables keep their defaults.
func Load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if v, ok := lookup(EnvTrackingURI); ok && strings.TrimSpace(v) != "" {
		cfg.TrackingURI = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvExperimentName); ok && strings.TrimSpace(v) != "" {
		cfg.ExperimentName = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	return cfg, cfg.Validate()
}

// Validate checks the log level and tracking URI.
func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.NewValidationError(EnvLogLevel, "must be one of debug, info, warn, error", c.LogLevel)
	}
	if _, err := tracking.LocalPath(c.TrackingURI); err != nil {
		return errors.NewValidationError(EnvTrackingURI, "only local paths and file: URIs are supported", c.TrackingURI)
	}
	return nil
}

// OpenStore opens the file store the tracking URI points to.
func (c Config) OpenStore() (*tracking.FileStore, error) {
	dir, err := tracking.LocalPath(c.TrackingURI)
	if err != nil {
		return nil, err
	}
	return tracking.NewFileStore(dir)
}
