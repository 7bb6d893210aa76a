package tracking

import (
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/gelato-ml/sorvete/pkg/errors"
	"github.com/gelato-ml/sorvete/pkg/log"
)

const (
	metaFile          = "meta.yaml"
	lifecycleActive   = "active"
	sourceTypeLocal   = 4
	defaultUser       = "unknown"
	dirPerm           = 0o755
	filePerm          = 0o644
	metricLineFormat  = "%d %s %d\n"
	maxParamValueSize = 6000
)

type experimentMeta struct {
	ArtifactLocation string `yaml:"artifact_location"`
	CreationTime     int64  `yaml:"creation_time"`
	ExperimentID     string `yaml:"experiment_id"`
	LastUpdateTime   int64  `yaml:"last_update_time"`
	LifecycleStage   string `yaml:"lifecycle_stage"`
	Name             string `yaml:"name"`
}

type runMeta struct {
	ArtifactURI    string   `yaml:"artifact_uri"`
	EndTime        *int64   `yaml:"end_time"`
	EntryPointName string   `yaml:"entry_point_name"`
	ExperimentID   string   `yaml:"experiment_id"`
	LifecycleStage string   `yaml:"lifecycle_stage"`
	RunID          string   `yaml:"run_id"`
	RunName        string   `yaml:"run_name"`
	RunUUID        string   `yaml:"run_uuid"`
	SourceName     string   `yaml:"source_name"`
	SourceType     int      `yaml:"source_type"`
	SourceVersion  string   `yaml:"source_version"`
	StartTime      int64    `yaml:"start_time"`
	Status         int      `yaml:"status"`
	Tags           []string `yaml:"tags"`
	UserID         string   `yaml:"user_id"`
}

func (m *runMeta) info() *RunInfo {
	info := &RunInfo{
		RunID:        m.RunID,
		RunName:      m.RunName,
		ExperimentID: m.ExperimentID,
		ArtifactURI:  m.ArtifactURI,
		Status:       RunStatus(m.Status),
		StartTime:    m.StartTime,
	}
	if m.EndTime != nil {
		info.EndTime = *m.EndTime
	}
	return info
}

// FileStore keeps experiments and runs in a local directory using the
// MLflow file-store layout:
//
//	<root>/<experiment id>/meta.yaml
//	<root>/<experiment id>/<run id>/meta.yaml
//	<root>/<experiment id>/<run id>/params/<key>
//	<root>/<experiment id>/<run id>/metrics/<key>
//	<root>/<experiment id>/<run id>/tags/<key>
//	<root>/<experiment id>/<run id>/artifacts/
type FileStore struct {
	root string
	now  func() time.Time

	mu      sync.Mutex
	runExps map[string]string // run id -> experiment id
	logger  log.Logger
}

var _ Store = (*FileStore)(nil)

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) FileStoreOption {
	return func(s *FileStore) {
		s.now = now
	}
}

// NewFileStore opens a file store rooted at root. Nothing is written until
// the first experiment is created, so the directory may not exist yet.
func NewFileStore(root string, opts ...FileStoreOption) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewTrackingError("open store", "", err)
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return nil, errors.NewTrackingError("open store", "", errors.Newf("%s is not a directory", abs))
	}
	s := &FileStore{
		root:    abs,
		now:     time.Now,
		runExps: make(map[string]string),
		logger:  log.GetLoggerWithName("tracking"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute store directory.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) millis() int64 {
	return s.now().UnixMilli()
}

func fileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// GetOrCreateExperiment returns the id of the active experiment called
// name, creating it when absent. The Default experiment always has id "0".
func (s *FileStore) GetOrCreateExperiment(name string) (string, error) {
	if name == "" {
		name = DefaultExperimentName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	metas, err := s.listExperiments()
	if err != nil {
		return "", err
	}
	// "0" is reserved for Default, so named experiments start at "1".
	maxID := 0
	for _, m := range metas {
		if m.Name == name && m.LifecycleStage == lifecycleActive {
			return m.ExperimentID, nil
		}
		if id, err := strconv.Atoi(m.ExperimentID); err == nil && id > maxID {
			maxID = id
		}
	}

	id := strconv.Itoa(maxID + 1)
	if name == DefaultExperimentName {
		id = DefaultExperimentID
		if _, err := os.Stat(filepath.Join(s.root, id)); err == nil {
			// "0" is taken by a renamed experiment
			id = strconv.Itoa(maxID + 1)
		}
	}

	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", errors.NewTrackingError("create experiment", "", err)
	}
	now := s.millis()
	meta := experimentMeta{
		ArtifactLocation: fileURI(dir),
		CreationTime:     now,
		ExperimentID:     id,
		LastUpdateTime:   now,
		LifecycleStage:   lifecycleActive,
		Name:             name,
	}
	if err := writeYAML(filepath.Join(dir, metaFile), &meta); err != nil {
		return "", errors.NewTrackingError("create experiment", "", err)
	}
	s.logger.Info("Experiment created", log.ExperimentIDKey, id, "experiment.name", name)
	return id, nil
}

func (s *FileStore) listExperiments() ([]experimentMeta, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewTrackingError("list experiments", "", err)
	}
	var metas []experimentMeta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var m experimentMeta
		if err := readYAML(filepath.Join(s.root, e.Name(), metaFile), &m); err != nil {
			continue
		}
		metas = append(metas, m)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].ExperimentID < metas[j].ExperimentID })
	return metas, nil
}

// CreateRun starts a new RUNNING run in the experiment.
func (s *FileStore) CreateRun(experimentID, runName string) (*RunInfo, error) {
	expDir := filepath.Join(s.root, experimentID)
	if _, err := os.Stat(filepath.Join(expDir, metaFile)); err != nil {
		return nil, errors.NewTrackingError("create run", "", errors.Wrapf(err, "experiment %q", experimentID))
	}

	runID := strings.ReplaceAll(uuid.NewString(), "-", "")
	runDir := filepath.Join(expDir, runID)
	for _, sub := range []string{"params", "metrics", "tags", "artifacts"} {
		if err := os.MkdirAll(filepath.Join(runDir, sub), dirPerm); err != nil {
			return nil, errors.NewTrackingError("create run", runID, err)
		}
	}

	user := os.Getenv("USER")
	if user == "" {
		user = defaultUser
	}
	meta := runMeta{
		ArtifactURI:    fileURI(filepath.Join(runDir, "artifacts")),
		ExperimentID:   experimentID,
		LifecycleStage: lifecycleActive,
		RunID:          runID,
		RunName:        runName,
		RunUUID:        runID,
		SourceType:     sourceTypeLocal,
		StartTime:      s.millis(),
		Status:         int(StatusRunning),
		Tags:           []string{},
		UserID:         user,
	}
	if err := writeYAML(filepath.Join(runDir, metaFile), &meta); err != nil {
		return nil, errors.NewTrackingError("create run", runID, err)
	}

	s.mu.Lock()
	s.runExps[runID] = experimentID
	s.mu.Unlock()

	if runName != "" {
		if err := s.SetTag(runID, RunNameTag, runName); err != nil {
			return nil, err
		}
	}
	return meta.info(), nil
}

// runDir locates the directory of runID.
func (s *FileStore) runDir(runID string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\.`) {
		return "", errors.NewTrackingError("find run", runID, errors.New("invalid run id"))
	}

	s.mu.Lock()
	expID, ok := s.runExps[runID]
	s.mu.Unlock()
	if ok {
		return filepath.Join(s.root, expID, runID), nil
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return "", errors.NewTrackingError("find run", runID, err)
	}
	for _, e := range entries {
		dir := filepath.Join(s.root, e.Name(), runID)
		if _, err := os.Stat(filepath.Join(dir, metaFile)); err == nil {
			s.mu.Lock()
			s.runExps[runID] = e.Name()
			s.mu.Unlock()
			return dir, nil
		}
	}
	return "", errors.NewTrackingError("find run", runID, os.ErrNotExist)
}

func (s *FileStore) activeRunDir(runID string) (string, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return "", err
	}
	var meta runMeta
	if err := readYAML(filepath.Join(dir, metaFile), &meta); err != nil {
		return "", errors.NewTrackingError("read run", runID, err)
	}
	if RunStatus(meta.Status).Terminal() {
		return "", errors.NewTrackingError("write run", runID,
			errors.Newf("run is %s", RunStatus(meta.Status)))
	}
	return dir, nil
}

// LogParam records a parameter. Params are write-once: logging the same
// value again is a no-op, a different value is ErrParamConflict.
func (s *FileStore) LogParam(runID, key, value string) error {
	if err := ValidateKey("param", key); err != nil {
		return err
	}
	if len(value) > maxParamValueSize {
		return errors.NewValidationError("param "+key, "value too long", len(value))
	}
	dir, err := s.activeRunDir(runID)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, "params", filepath.FromSlash(key))
	if existing, err := os.ReadFile(path); err == nil {
		if string(existing) == value {
			return nil
		}
		return errors.NewTrackingError("log param "+key, runID, errors.ErrParamConflict)
	}
	if err := writeFile(path, []byte(value)); err != nil {
		return errors.NewTrackingError("log param "+key, runID, err)
	}
	return nil
}

// LogMetric appends a value to the metric's history. A zero Timestamp is
// replaced by the current time.
func (s *FileStore) LogMetric(runID string, m Metric) error {
	if err := ValidateKey("metric", m.Key); err != nil {
		return err
	}
	dir, err := s.activeRunDir(runID)
	if err != nil {
		return err
	}
	if m.Timestamp == 0 {
		m.Timestamp = s.millis()
	}

	path := filepath.Join(dir, "metrics", filepath.FromSlash(m.Key))
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return errors.NewTrackingError("log metric "+m.Key, runID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return errors.NewTrackingError("log metric "+m.Key, runID, err)
	}
	value := formatMetricValue(m.Value)
	if _, err := fmt.Fprintf(f, metricLineFormat, m.Timestamp, value, m.Step); err != nil {
		_ = f.Close()
		return errors.NewTrackingError("log metric "+m.Key, runID, err)
	}
	if err := f.Close(); err != nil {
		return errors.NewTrackingError("log metric "+m.Key, runID, err)
	}
	return nil
}

// SetTag sets or overwrites a tag.
func (s *FileStore) SetTag(runID, key, value string) error {
	if err := ValidateKey("tag", key); err != nil {
		return err
	}
	dir, err := s.runDir(runID)
	if err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "tags", filepath.FromSlash(key)), []byte(value)); err != nil {
		return errors.NewTrackingError("set tag "+key, runID, err)
	}
	return nil
}

// LogArtifact copies the local file into the run's artifact directory.
func (s *FileStore) LogArtifact(runID, localPath string) error {
	dir, err := s.activeRunDir(runID)
	if err != nil {
		return err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return errors.NewTrackingError("log artifact", runID, err)
	}
	defer func() { _ = src.Close() }()

	dstPath := filepath.Join(dir, "artifacts", filepath.Base(localPath))
	dst, err := os.Create(dstPath)
	if err != nil {
		return errors.NewTrackingError("log artifact", runID, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return errors.NewTrackingError("log artifact", runID, err)
	}
	if err := dst.Close(); err != nil {
		return errors.NewTrackingError("log artifact", runID, err)
	}
	return nil
}

// UpdateRun moves a run to status. Terminal runs cannot change again.
func (s *FileStore) UpdateRun(runID string, status RunStatus, endTime int64) error {
	dir, err := s.runDir(runID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, metaFile)

	s.mu.Lock()
	defer s.mu.Unlock()

	var meta runMeta
	if err := readYAML(path, &meta); err != nil {
		return errors.NewTrackingError("update run", runID, err)
	}
	if RunStatus(meta.Status).Terminal() {
		return errors.NewTrackingError("update run", runID,
			errors.Newf("run already %s", RunStatus(meta.Status)))
	}
	meta.Status = int(status)
	if status.Terminal() {
		if endTime == 0 {
			endTime = s.millis()
		}
		meta.EndTime = &endTime
	}
	if err := writeYAML(path, &meta); err != nil {
		return errors.NewTrackingError("update run", runID, err)
	}
	return nil
}

// GetRun reads the run's metadata.
func (s *FileStore) GetRun(runID string) (*RunInfo, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	var meta runMeta
	if err := readYAML(filepath.Join(dir, metaFile), &meta); err != nil {
		return nil, errors.NewTrackingError("read run", runID, err)
	}
	return meta.info(), nil
}

// Params returns every param of the run.
func (s *FileStore) Params(runID string) (map[string]string, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	return readTree(filepath.Join(dir, "params"))
}

// Tags returns every tag of the run.
func (s *FileStore) Tags(runID string) (map[string]string, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	return readTree(filepath.Join(dir, "tags"))
}

// MetricHistory returns the recorded values of one metric in log order.
func (s *FileStore) MetricHistory(runID, key string) ([]Metric, error) {
	if err := ValidateKey("metric", key); err != nil {
		return nil, err
	}
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "metrics", filepath.FromSlash(key)))
	if err != nil {
		return nil, errors.NewTrackingError("read metric "+key, runID, err)
	}

	var out []Metric
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, errors.NewTrackingError("read metric "+key, runID, errors.Newf("malformed line %q", line))
		}
		ts, err1 := strconv.ParseInt(fields[0], 10, 64)
		val, err2 := strconv.ParseFloat(fields[1], 64)
		step, err3 := strconv.ParseInt(fields[2], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, errors.NewTrackingError("read metric "+key, runID, errors.Newf("malformed line %q", line))
		}
		out = append(out, Metric{Key: key, Value: val, Timestamp: ts, Step: step})
	}
	return out, nil
}

// ArtifactDir returns the local directory holding the run's artifacts.
func (s *FileStore) ArtifactDir(runID string) (string, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "artifacts"), nil
}

func readTree(root string) (map[string]string, error) {
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, errors.NewTrackingError("read", "", err)
	}
	return out, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	return os.WriteFile(path, data, filePerm)
}

func writeYAML(path string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

func readYAML(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}

// formatMetricValue writes NaN and infinities the way the metric files spell
// them ("nan", "inf", "-inf"); ParseFloat reads all three back.
func formatMetricValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
