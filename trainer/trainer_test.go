package trainer

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/gelato-ml/sorvete/flavor"
	"github.com/gelato-ml/sorvete/pkg/errors"
	"github.com/gelato-ml/sorvete/pkg/log"
	"github.com/gelato-ml/sorvete/tracking"
)

func quietLogs(t *testing.T) {
	t.Helper()
	provider, _ := log.NewTestLoggerProvider(log.LevelError)
	prev := log.SetProvider(provider)
	t.Cleanup(func() { log.SetProvider(prev) })
}

func writeCSV(t *testing.T, header string, rows int, f func(i int) (float64, float64)) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(header + "\n")
	for i := 0; i < rows; i++ {
		x, y := f(i)
		fmt.Fprintf(&b, "%g,%g\n", x, y)
	}
	path := filepath.Join(t.TempDir(), "sorvete.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

const header = "Temperatura (°C),Vendas de Sorvete"

func line(i int) (float64, float64) {
	x := 15 + float64(i)
	return x, 2*x + 1
}

func TestTrain_PerfectLine(t *testing.T) {
	quietLogs(t)
	csv := writeCSV(t, header, 20, line)
	out := filepath.Join(t.TempDir(), "model")
	store, err := tracking.NewFileStore(filepath.Join(t.TempDir(), "mlruns"))
	require.NoError(t, err)

	res, err := Train(DefaultConfig(csv, out, store))
	require.NoError(t, err)

	assert.InDelta(t, 2.0, res.Slope, 1e-9)
	assert.InDelta(t, 1.0, res.Intercept, 1e-9)
	assert.InDelta(t, 0.0, res.MSE, 1e-12)
	assert.InDelta(t, 1.0, res.R2, 1e-12)
	assert.Equal(t, 16, res.NTrain)
	assert.Equal(t, 4, res.NTest)
	assert.Equal(t, "MSE=0.000  R2=1.000\nModelo salvo em: "+out+"\n", res.Summary())

	info, err := store.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, tracking.StatusFinished, info.Status)
	assert.Equal(t, RunName, info.RunName)

	params, err := store.Params(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"algoritmo": "LinearRegression",
		"feature":   "Temperatura (°C)",
	}, params)

	mse, err := store.MetricHistory(res.RunID, "mse")
	require.NoError(t, err)
	require.Len(t, mse, 1)
	r2, err := store.MetricHistory(res.RunID, "r2")
	require.NoError(t, err)
	require.Len(t, r2, 1)
	assert.InDelta(t, 1.0, r2[0].Value, 1e-12)

	artifacts, err := store.ArtifactDir(res.RunID)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(artifacts, PlotFile))

	assert.FileExists(t, filepath.Join(out, flavor.MLmodelFile))
	assert.FileExists(t, filepath.Join(out, flavor.ModelDataFile))
}

func TestTrain_SchemaErrorWritesNothing(t *testing.T) {
	quietLogs(t)
	csv := writeCSV(t, "Temperatura (F),Vendas de Sorvete", 10, line)
	out := filepath.Join(t.TempDir(), "model")
	store := tracking.NewMemoryStore()

	_, err := Train(DefaultConfig(csv, out, store))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingColumn))

	var schemaErr *errors.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "Temperatura (°C)", schemaErr.Column)

	assert.NoDirExists(t, out)
	assert.Empty(t, store.Runs())
}

func TestTrain_MissingFile(t *testing.T) {
	quietLogs(t)
	_, err := Train(DefaultConfig(filepath.Join(t.TempDir(), "nope.csv"), t.TempDir(), tracking.NewMemoryStore()))
	require.Error(t, err)

	var dataErr *errors.DataAccessError
	assert.True(t, errors.As(err, &dataErr))
}

func TestTrain_ZeroVarianceTarget(t *testing.T) {
	quietLogs(t)
	csv := writeCSV(t, header, 10, func(i int) (float64, float64) {
		return 20 + float64(i), 50
	})
	store := tracking.NewMemoryStore()

	res, err := Train(DefaultConfig(csv, filepath.Join(t.TempDir(), "model"), store))
	require.NoError(t, err)
	assert.Contains(t, []float64{0, 1}, res.R2)
	assert.InDelta(t, 0.0, res.Slope, 1e-9)
	assert.InDelta(t, 50.0, res.Intercept, 1e-9)
}

func TestTrain_RerunIntoSameDirectory(t *testing.T) {
	quietLogs(t)
	csv := writeCSV(t, header, 30, func(i int) (float64, float64) {
		x := 10 + float64(i)
		noise := float64(i%3) - 1
		return x, 12*x - 30 + noise
	})
	out := filepath.Join(t.TempDir(), "model")
	store := tracking.NewMemoryStore()

	first, err := Train(DefaultConfig(csv, out, store))
	require.NoError(t, err)
	firstModel, err := flavor.Load(out)
	require.NoError(t, err)

	second, err := Train(DefaultConfig(csv, out, store))
	require.NoError(t, err)
	secondModel, err := flavor.Load(out)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.MSE, second.MSE)
	assert.Equal(t, first.R2, second.R2)

	X := mat.NewDense(3, 1, []float64{0, 25, 40})
	p1, err := firstModel.Predict(X)
	require.NoError(t, err)
	p2, err := secondModel.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(p1, p2))
}

func TestTrain_SaveFailureMarksRunFailed(t *testing.T) {
	quietLogs(t)
	csv := writeCSV(t, header, 10, line)
	// The output path is a regular file, so the model directory cannot be made.
	out := filepath.Join(t.TempDir(), "model")
	require.NoError(t, os.WriteFile(out, []byte("not a directory"), 0o644))
	store := tracking.NewMemoryStore()

	_, err := Train(DefaultConfig(csv, out, store))
	require.Error(t, err)
	var perr *errors.PersistenceError
	assert.True(t, errors.As(err, &perr), "got %v", err)

	runs := store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, tracking.StatusFailed, runs[0].Status)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "not a directory", string(raw))
}

func TestTrain_ConstantFeature(t *testing.T) {
	quietLogs(t)
	csv := writeCSV(t, header, 10, func(i int) (float64, float64) {
		return 25, float64(i)
	})
	out := filepath.Join(t.TempDir(), "model")
	store := tracking.NewMemoryStore()

	cfg := DefaultConfig(csv, out, store)
	cfg.SkipPlot = true
	res, err := Train(cfg)
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Slope)
	// Intercept is the mean of the training targets.
	lr, err := flavor.Load(out)
	require.NoError(t, err)
	pred, err := lr.Predict(mat.NewDense(2, 1, []float64{0, 40}))
	require.NoError(t, err)
	assert.Equal(t, res.Intercept, pred.At(0, 0))
	assert.Equal(t, res.Intercept, pred.At(1, 0))
	assert.Greater(t, res.Intercept, 0.0)
	assert.Less(t, res.Intercept, 9.0)

	runs := store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, tracking.StatusFinished, runs[0].Status)
}

func TestTrain_SingleTestRow(t *testing.T) {
	quietLogs(t)
	csv := writeCSV(t, header, 5, line)
	out := filepath.Join(t.TempDir(), "model")
	store, err := tracking.NewFileStore(filepath.Join(t.TempDir(), "mlruns"))
	require.NoError(t, err)

	cfg := DefaultConfig(csv, out, store)
	cfg.SkipPlot = true
	res, err := Train(cfg)
	require.NoError(t, err)

	assert.Equal(t, 4, res.NTrain)
	assert.Equal(t, 1, res.NTest)
	assert.True(t, math.IsNaN(res.R2))
	assert.Equal(t, "MSE=0.000  R2=nan\nModelo salvo em: "+out+"\n", res.Summary())

	r2, err := store.MetricHistory(res.RunID, "r2")
	require.NoError(t, err)
	require.Len(t, r2, 1)
	assert.True(t, math.IsNaN(r2[0].Value))

	info, err := store.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, tracking.StatusFinished, info.Status)
}

func TestTrain_SplitIsDeterministic(t *testing.T) {
	quietLogs(t)
	csv := writeCSV(t, header, 25, func(i int) (float64, float64) {
		x := float64(i)
		return x, x*x/10 + 3
	})
	store := tracking.NewMemoryStore()

	a, err := Train(Config{DataCSV: csv, OutModel: filepath.Join(t.TempDir(), "a"), Store: store, Seed: 7, SkipPlot: true})
	require.NoError(t, err)
	b, err := Train(Config{DataCSV: csv, OutModel: filepath.Join(t.TempDir(), "b"), Store: store, Seed: 7, SkipPlot: true})
	require.NoError(t, err)

	assert.Equal(t, a.Slope, b.Slope)
	assert.Equal(t, a.MSE, b.MSE)
	assert.Equal(t, 5, a.NTest)
}

func TestTrain_RequiresStore(t *testing.T) {
	_, err := Train(Config{DataCSV: "a.csv", OutModel: "out"})
	assert.Error(t, err)
}
