// Package tracking records training runs in an experiment-tracking store.
//
// The on-disk FileStore follows the MLflow file-store layout, so an
// `mlflow ui --backend-store-uri ./mlruns` pointed at the same directory
// shows the runs. A run is opened with StartRun or, preferably, WithRun,
// which guarantees the run is closed on every exit path.
package tracking

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gelato-ml/sorvete/pkg/errors"
)

// DefaultTrackingDir is used when no tracking URI is configured.
const DefaultTrackingDir = "mlruns"

// DefaultExperimentName is the experiment runs land in when none is named.
const (
	DefaultExperimentName = "Default"
	DefaultExperimentID   = "0"
)

// RunNameTag holds the human-readable run name.
const RunNameTag = "mlflow.runName"

// RunStatus is the lifecycle state of a run. Values match MLflow's.
type RunStatus int

const (
	StatusRunning   RunStatus = 1
	StatusScheduled RunStatus = 2
	StatusFinished  RunStatus = 3
	StatusFailed    RunStatus = 4
	StatusKilled    RunStatus = 5
)

func (s RunStatus) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusScheduled:
		return "SCHEDULED"
	case StatusFinished:
		return "FINISHED"
	case StatusFailed:
		return "FAILED"
	case StatusKilled:
		return "KILLED"
	default:
		return fmt.Sprintf("RunStatus(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are allowed.
func (s RunStatus) Terminal() bool {
	return s == StatusFinished || s == StatusFailed || s == StatusKilled
}

// RunInfo describes a run as stored.
type RunInfo struct {
	RunID        string
	RunName      string
	ExperimentID string
	ArtifactURI  string
	Status       RunStatus
	StartTime    int64 // Unix milliseconds
	EndTime      int64 // Unix milliseconds, 0 while running
}

// Metric is one recorded metric value.
type Metric struct {
	Key       string
	Value     float64
	Timestamp int64
	Step      int64
}

// Store is the sink runs are written to.
type Store interface {
	GetOrCreateExperiment(name string) (string, error)
	CreateRun(experimentID, runName string) (*RunInfo, error)
	LogParam(runID, key, value string) error
	LogMetric(runID string, m Metric) error
	SetTag(runID, key, value string) error
	LogArtifact(runID, localPath string) error
	UpdateRun(runID string, status RunStatus, endTime int64) error
	GetRun(runID string) (*RunInfo, error)
}

var keyPattern = regexp.MustCompile(`^[/\w.\- ]+$`)

// ValidateKey rejects names that are empty, contain characters outside
// [A-Za-z0-9_./- ], or would escape the run directory.
func ValidateKey(kind, key string) error {
	if !keyPattern.MatchString(key) {
		return errors.NewValidationError(kind, "invalid name", key)
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if strings.HasPrefix(key, "/") || clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(clean, "/../") {
		return errors.NewValidationError(kind, "name escapes the run directory", key)
	}
	return nil
}

// LocalPath resolves a tracking URI to a directory. An empty URI means
// ./mlruns; "file:" URIs and plain paths are accepted. Remote schemes are
// rejected.
func LocalPath(uri string) (string, error) {
	if uri == "" {
		return DefaultTrackingDir, nil
	}
	if !strings.Contains(uri, "://") && !strings.HasPrefix(uri, "file:") {
		return uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.NewTrackingError("parse uri", "", err)
	}
	if u.Scheme != "file" {
		return "", errors.NewTrackingError("parse uri", "", errors.Newf("unsupported tracking scheme %q", u.Scheme))
	}
	if u.Opaque != "" {
		return u.Opaque, nil
	}
	return filepath.FromSlash(u.Path), nil
}
