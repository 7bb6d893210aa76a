package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gelato-ml/sorvete/flavor"
	"github.com/gelato-ml/sorvete/pkg/log"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func restoreLogger(t *testing.T) {
	t.Helper()
	provider, _ := log.NewTestLoggerProvider(log.LevelError)
	prev := log.SetProvider(provider)
	t.Cleanup(func() { log.SetProvider(prev) })
}

func writeDataset(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Temperatura (°C),Vendas de Sorvete\n")
	for i := 0; i < 20; i++ {
		x := 18 + float64(i)
		fmt.Fprintf(&b, "%g,%g\n", x, 2*x+1)
	}
	path := filepath.Join(dir, "sorvete.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestRun_Success(t *testing.T) {
	restoreLogger(t)
	dir := t.TempDir()
	data := writeDataset(t, dir)
	out := filepath.Join(dir, "model")
	var stdout, stderr bytes.Buffer

	code := run([]string{"--data_csv", data, "--out_model", out},
		env(map[string]string{"MLFLOW_TRACKING_URI": filepath.Join(dir, "mlruns")}),
		&stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	assert.Equal(t, "MSE=0.000  R2=1.000\nModelo salvo em: "+out+"\n", stdout.String())
	assert.DirExists(t, filepath.Join(dir, "mlruns", "0"))

	lr, err := flavor.Load(out)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, lr.Coef()[0], 1e-9)
}

func TestRun_MissingFlag(t *testing.T) {
	restoreLogger(t)
	dir := t.TempDir()
	tracking := filepath.Join(dir, "mlruns")

	tests := []struct {
		name string
		argv []string
	}{
		{"no flags", nil},
		{"missing out_model", []string{"--data_csv", filepath.Join(dir, "data.csv")}},
		{"missing data_csv", []string{"--out_model", filepath.Join(dir, "model")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.argv, env(map[string]string{"MLFLOW_TRACKING_URI": tracking}), &stdout, &stderr)

			assert.Equal(t, exitUsage, code)
			assert.Contains(t, stderr.String(), "required")
			assert.Empty(t, stdout.String())
			assert.NoDirExists(t, tracking)
			assert.NoDirExists(t, filepath.Join(dir, "model"))
		})
	}
}

func TestRun_SchemaError(t *testing.T) {
	restoreLogger(t)
	dir := t.TempDir()
	data := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(data, []byte("Temp,Vendas de Sorvete\n20,41\n25,51\n"), 0o644))
	out := filepath.Join(dir, "model")
	var stdout, stderr bytes.Buffer

	code := run([]string{"--data_csv", data, "--out_model", out},
		env(map[string]string{"MLFLOW_TRACKING_URI": filepath.Join(dir, "mlruns")}),
		&stdout, &stderr)

	assert.Equal(t, exitError, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "Temperatura (°C)")
	assert.NoDirExists(t, out)
	assert.NoDirExists(t, filepath.Join(dir, "mlruns"))
}

func TestRun_MissingCSV(t *testing.T) {
	restoreLogger(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "model")
	var stdout, stderr bytes.Buffer

	code := run([]string{"--data_csv", filepath.Join(dir, "nope.csv"), "--out_model", out},
		env(map[string]string{"MLFLOW_TRACKING_URI": filepath.Join(dir, "mlruns")}),
		&stdout, &stderr)

	assert.Equal(t, exitError, code)
	assert.Empty(t, stdout.String())
	assert.NotEmpty(t, stderr.String())
	assert.NoDirExists(t, out)
	assert.NoDirExists(t, filepath.Join(dir, "mlruns"))
}

func TestRun_SingleTestRowPrintsNaN(t *testing.T) {
	restoreLogger(t)
	dir := t.TempDir()
	data := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(data,
		[]byte("Temperatura (°C),Vendas de Sorvete\n20,41\n22,45\n25,51\n28,57\n31,63\n"), 0o644))
	out := filepath.Join(dir, "model")
	var stdout, stderr bytes.Buffer

	code := run([]string{"--data_csv", data, "--out_model", out},
		env(map[string]string{"MLFLOW_TRACKING_URI": filepath.Join(dir, "mlruns")}),
		&stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	assert.Equal(t, "MSE=0.000  R2=nan\nModelo salvo em: "+out+"\n", stdout.String())
}

func TestRun_BadLogLevel(t *testing.T) {
	restoreLogger(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"--data_csv", "a.csv", "--out_model", "m"},
		env(map[string]string{"TRAINER_LOG_LEVEL": "loud"}), &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
}
