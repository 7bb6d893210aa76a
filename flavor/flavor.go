// Package flavor saves and loads fitted linear models as MLflow-style model
// directories.
//
// A model directory holds two files:
//
//	MLmodel     YAML descriptor listing the flavors the model can be loaded as
//	model.json  the model's weights (core/model.ModelWeights)
//
// Saving into an existing directory overwrites both files.
package flavor

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/gelato-ml/sorvete/core/model"
	"github.com/gelato-ml/sorvete/linear"
	"github.com/gelato-ml/sorvete/pkg/errors"
	"github.com/gelato-ml/sorvete/pkg/log"
)

const (
	// Name is the flavor key in MLmodel.
	Name = "go_linear"
	// MLmodelFile is the descriptor file name.
	MLmodelFile = "MLmodel"
	// ModelDataFile holds the serialized weights.
	ModelDataFile = "model.json"

	timeLayout = "2006-01-02 15:04:05.000000"
)

// MLmodel is the YAML descriptor of a model directory.
type MLmodel struct {
	ArtifactPath   string                 `yaml:"artifact_path"`
	Flavors        map[string]FlavorConf  `yaml:"flavors"`
	ModelUUID      string                 `yaml:"model_uuid"`
	UTCTimeCreated string                 `yaml:"utc_time_created"`
	Signature      *Signature             `yaml:"signature,omitempty"`
	Metadata       map[string]interface{} `yaml:"metadata,omitempty"`
}

// FlavorConf describes how one flavor loads the model.
type FlavorConf struct {
	ModelData     string  `yaml:"model_data"`
	FormatVersion string  `yaml:"format_version"`
	ModelType     string  `yaml:"model_type"`
	ModelHash     string  `yaml:"model_hash"`
	Code          *string `yaml:"code"`
}

// Signature holds the column schemas as JSON strings, as MLflow does.
type Signature struct {
	Inputs  string `yaml:"inputs"`
	Outputs string `yaml:"outputs"`
}

// ColumnSpec is one entry of a signature schema.
type ColumnSpec struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type options struct {
	artifactPath string
	target       string
	now          func() time.Time
	metadata     map[string]interface{}
}

// Option configures Save.
type Option func(*options)

// WithArtifactPath sets the artifact_path recorded in MLmodel.
func WithArtifactPath(path string) Option {
	return func(o *options) { o.artifactPath = path }
}

// WithTarget names the output column in the signature.
func WithTarget(name string) Option {
	return func(o *options) { o.target = name }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMetadata attaches free-form metadata to MLmodel.
func WithMetadata(md map[string]interface{}) Option {
	return func(o *options) { o.metadata = md }
}

// Save writes a fitted model to dir, creating it if needed.
func Save(dir string, lr *linear.LinearRegression, opts ...Option) (*MLmodel, error) {
	o := options{artifactPath: "model", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.GetLoggerWithName("flavor")

	weights, err := lr.ExportWeights()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewPersistenceError("mkdir", dir, err)
	}

	signature, err := buildSignature(weights.Features, o.target)
	if err != nil {
		return nil, errors.NewPersistenceError("signature", dir, err)
	}
	desc := &MLmodel{
		ArtifactPath: o.artifactPath,
		Flavors: map[string]FlavorConf{
			Name: {
				ModelData:     ModelDataFile,
				FormatVersion: weights.Version,
				ModelType:     weights.ModelType,
				ModelHash:     weights.Hash(),
			},
		},
		ModelUUID:      strings.ReplaceAll(uuid.NewString(), "-", ""),
		UTCTimeCreated: o.now().UTC().Format(timeLayout),
		Signature:      signature,
		Metadata:       o.metadata,
	}

	if err := model.SaveWeights(weights, filepath.Join(dir, ModelDataFile)); err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(desc)
	if err != nil {
		return nil, errors.NewPersistenceError("encode", filepath.Join(dir, MLmodelFile), err)
	}
	if err := os.WriteFile(filepath.Join(dir, MLmodelFile), data, 0o644); err != nil {
		return nil, errors.NewPersistenceError("write", filepath.Join(dir, MLmodelFile), err)
	}

	logger.Info("Model saved",
		log.OperationKey, log.OperationSave,
		log.PathKey, dir,
		"model.uuid", desc.ModelUUID,
	)
	return desc, nil
}

// ReadMLmodel parses the descriptor of the model directory.
func ReadMLmodel(dir string) (*MLmodel, error) {
	path := filepath.Join(dir, MLmodelFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewPersistenceError("read", path, err)
	}
	var desc MLmodel
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, errors.NewPersistenceError("decode", path, err)
	}
	return &desc, nil
}

// Load restores the model saved in dir. The weights must match the hash
// recorded in MLmodel.
func Load(dir string) (*linear.LinearRegression, error) {
	desc, err := ReadMLmodel(dir)
	if err != nil {
		return nil, err
	}
	conf, ok := desc.Flavors[Name]
	if !ok {
		return nil, errors.NewPersistenceError("load", dir, errors.Newf("flavor %q not found", Name))
	}
	dataPath, err := resolve(dir, conf.ModelData)
	if err != nil {
		return nil, err
	}

	weights, err := model.LoadWeights(dataPath)
	if err != nil {
		return nil, err
	}
	if conf.ModelHash != "" && conf.ModelHash != weights.Hash() {
		return nil, errors.NewPersistenceError("load", dataPath, errors.New("model data does not match MLmodel hash"))
	}

	lr := linear.NewLinearRegression()
	if err := lr.ImportWeights(weights); err != nil {
		return nil, err
	}
	log.GetLoggerWithName("flavor").Info("Model loaded",
		log.OperationKey, log.OperationLoad,
		log.PathKey, dir,
	)
	return lr, nil
}

func resolve(dir, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if rel == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.NewPersistenceError("load", dir, errors.Newf("invalid model_data %q", rel))
	}
	return filepath.Join(dir, clean), nil
}

func buildSignature(features []string, target string) (*Signature, error) {
	if len(features) == 0 {
		return nil, nil
	}
	inputs := make([]ColumnSpec, len(features))
	for i, f := range features {
		inputs[i] = ColumnSpec{Type: "double", Name: f}
	}
	in, err := json.Marshal(inputs)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal([]ColumnSpec{{Type: "double", Name: target}})
	if err != nil {
		return nil, err
	}
	return &Signature{Inputs: string(in), Outputs: string(out)}, nil
}

// Columns decodes a signature schema string.
func Columns(schema string) ([]ColumnSpec, error) {
	var cols []ColumnSpec
	if err := json.Unmarshal([]byte(schema), &cols); err != nil {
		return nil, errors.Wrap(err, "decode signature")
	}
	return cols, nil
}
