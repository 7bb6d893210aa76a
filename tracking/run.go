package tracking

import (
	"sort"
	"strconv"
	"sync"

	"github.com/gelato-ml/sorvete/pkg/errors"
	"github.com/gelato-ml/sorvete/pkg/log"
)

// Run is an open run. It is safe for concurrent use.
type Run struct {
	store  Store
	logger log.Logger

	mu    sync.Mutex
	info  RunInfo
	ended bool
}

// StartRun creates a RUNNING run named runName in the experiment called
// experimentName, creating the experiment if needed. The caller must End
// the run; WithRun does that automatically.
func StartRun(store Store, experimentName, runName string) (*Run, error) {
	expID, err := store.GetOrCreateExperiment(experimentName)
	if err != nil {
		return nil, err
	}
	info, err := store.CreateRun(expID, runName)
	if err != nil {
		return nil, err
	}
	logger := log.GetLoggerWithName("tracking").With(
		log.ExperimentIDKey, expID,
		log.RunIDKey, info.RunID,
	)
	logger.Info("Run started", "run.name", runName)
	return &Run{store: store, logger: logger, info: *info}, nil
}

// ID returns the run id.
func (r *Run) ID() string {
	return r.info.RunID
}

// Info returns a snapshot of the run's metadata.
func (r *Run) Info() RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

// LogParam records one parameter.
func (r *Run) LogParam(key, value string) error {
	return r.store.LogParam(r.info.RunID, key, value)
}

// LogParams records params in key order and stops at the first failure.
func (r *Run) LogParams(params map[string]string) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := r.LogParam(k, params[k]); err != nil {
			return err
		}
	}
	return nil
}

// LogMetric records a value at step 0.
func (r *Run) LogMetric(key string, value float64) error {
	return r.LogMetricStep(key, value, 0)
}

// LogMetricStep records a value at the given step.
func (r *Run) LogMetricStep(key string, value float64, step int64) error {
	if err := r.store.LogMetric(r.info.RunID, Metric{Key: key, Value: value, Step: step}); err != nil {
		return err
	}
	r.logger.Debug("Metric logged", "metric.key", key, "metric.value", value, "metric.step", strconv.FormatInt(step, 10))
	return nil
}

// SetTag sets a tag on the run.
func (r *Run) SetTag(key, value string) error {
	return r.store.SetTag(r.info.RunID, key, value)
}

// SetTags sets tags in key order and stops at the first failure.
func (r *Run) SetTags(tags map[string]string) error {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := r.SetTag(k, tags[k]); err != nil {
			return err
		}
	}
	return nil
}

// LogArtifact copies a local file into the run's artifacts.
func (r *Run) LogArtifact(localPath string) error {
	if err := r.store.LogArtifact(r.info.RunID, localPath); err != nil {
		return err
	}
	r.logger.Debug("Artifact logged", log.PathKey, localPath)
	return nil
}

// End closes the run with a terminal status. Only the first call has an
// effect.
func (r *Run) End(status RunStatus) error {
	if !status.Terminal() {
		return errors.NewValidationError("status", "not a terminal status", status.String())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return nil
	}
	if err := r.store.UpdateRun(r.info.RunID, status, 0); err != nil {
		return err
	}
	r.ended = true
	if updated, err := r.store.GetRun(r.info.RunID); err == nil {
		r.info = *updated
	} else {
		r.info.Status = status
	}
	r.logger.Info("Run ended", log.RunStatusKey, status.String())
	return nil
}

// WithRun opens a run, calls fn with it and closes the run: FINISHED when
// fn returns nil, FAILED when it returns an error or panics. A panic is
// re-raised after the run is closed. The returned RunInfo reflects the
// final state and is non-nil whenever the run was created.
func WithRun(store Store, experimentName, runName string, fn func(*Run) error) (info *RunInfo, err error) {
	run, err := StartRun(store, experimentName, runName)
	if err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			if endErr := run.End(StatusFailed); endErr != nil {
				run.logger.Error("Failed to close run after panic", endErr)
			}
			panic(p)
		}
	}()

	fnErr := fn(run)
	status := StatusFinished
	if fnErr != nil {
		status = StatusFailed
	}
	endErr := run.End(status)

	final := run.Info()
	if fnErr != nil {
		run.logger.Error("Run failed", fnErr)
		if endErr != nil {
			run.logger.Error("Failed to close run", endErr)
		}
		return &final, fnErr
	}
	return &final, endErr
}
