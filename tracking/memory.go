package tracking

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gelato-ml/sorvete/pkg/errors"
)

// MemoryStore keeps runs in memory. It applies the same rules as FileStore
// and is meant for tests and dry runs.
type MemoryStore struct {
	mu          sync.Mutex
	experiments map[string]string // name -> id
	runs        map[string]*memoryRun
}

type memoryRun struct {
	info      RunInfo
	params    map[string]string
	tags      map[string]string
	metrics   map[string][]Metric
	artifacts []string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[string]string),
		runs:        make(map[string]*memoryRun),
	}
}

func (s *MemoryStore) GetOrCreateExperiment(name string) (string, error) {
	if name == "" {
		name = DefaultExperimentName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.experiments[name]; ok {
		return id, nil
	}
	id := strconv.Itoa(len(s.experiments) + 1)
	if name == DefaultExperimentName {
		id = DefaultExperimentID
	}
	s.experiments[name] = id
	return id, nil
}

func (s *MemoryStore) CreateRun(experimentID, runName string) (*RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	r := &memoryRun{
		info: RunInfo{
			RunID:        id,
			RunName:      runName,
			ExperimentID: experimentID,
			ArtifactURI:  "memory://" + id,
			Status:       StatusRunning,
			StartTime:    time.Now().UnixMilli(),
		},
		params:  make(map[string]string),
		tags:    make(map[string]string),
		metrics: make(map[string][]Metric),
	}
	if runName != "" {
		r.tags[RunNameTag] = runName
	}
	s.runs[id] = r
	info := r.info
	return &info, nil
}

func (s *MemoryStore) get(runID string, writable bool) (*memoryRun, error) {
	r, ok := s.runs[runID]
	if !ok {
		return nil, errors.NewTrackingError("find run", runID, errors.New("run not found"))
	}
	if writable && r.info.Status.Terminal() {
		return nil, errors.NewTrackingError("write run", runID, errors.Newf("run is %s", r.info.Status))
	}
	return r, nil
}

func (s *MemoryStore) LogParam(runID, key, value string) error {
	if err := ValidateKey("param", key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.get(runID, true)
	if err != nil {
		return err
	}
	if existing, ok := r.params[key]; ok && existing != value {
		return errors.NewTrackingError("log param "+key, runID, errors.ErrParamConflict)
	}
	r.params[key] = value
	return nil
}

func (s *MemoryStore) LogMetric(runID string, m Metric) error {
	if err := ValidateKey("metric", m.Key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.get(runID, true)
	if err != nil {
		return err
	}
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}
	r.metrics[m.Key] = append(r.metrics[m.Key], m)
	return nil
}

func (s *MemoryStore) SetTag(runID, key, value string) error {
	if err := ValidateKey("tag", key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.get(runID, false)
	if err != nil {
		return err
	}
	r.tags[key] = value
	return nil
}

// LogArtifact only records the path; nothing is copied.
func (s *MemoryStore) LogArtifact(runID, localPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.get(runID, true)
	if err != nil {
		return err
	}
	r.artifacts = append(r.artifacts, localPath)
	return nil
}

func (s *MemoryStore) UpdateRun(runID string, status RunStatus, endTime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.get(runID, false)
	if err != nil {
		return err
	}
	if r.info.Status.Terminal() {
		return errors.NewTrackingError("update run", runID, errors.Newf("run already %s", r.info.Status))
	}
	r.info.Status = status
	if status.Terminal() {
		if endTime == 0 {
			endTime = time.Now().UnixMilli()
		}
		r.info.EndTime = endTime
	}
	return nil
}

func (s *MemoryStore) GetRun(runID string) (*RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.get(runID, false)
	if err != nil {
		return nil, err
	}
	info := r.info
	return &info, nil
}

// Params returns a copy of the run's params.
func (s *MemoryStore) Params(runID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[runID]
	if r == nil {
		return nil
	}
	return copyMap(r.params)
}

// Tags returns a copy of the run's tags.
func (s *MemoryStore) Tags(runID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[runID]
	if r == nil {
		return nil
	}
	return copyMap(r.tags)
}

// Metrics returns the history of one metric.
func (s *MemoryStore) Metrics(runID, key string) []Metric {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[runID]
	if r == nil {
		return nil
	}
	return append([]Metric(nil), r.metrics[key]...)
}

// Artifacts returns the logged artifact paths.
func (s *MemoryStore) Artifacts(runID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[runID]
	if r == nil {
		return nil
	}
	return append([]string(nil), r.artifacts...)
}

// Runs returns every run, in no particular order.
func (s *MemoryStore) Runs() []RunInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunInfo, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r.info)
	}
	return out
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
