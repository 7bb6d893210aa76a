package log

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sverrors "github.com/gelato-ml/sorvete/pkg/errors"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestZerologProvider(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProvider(&buf, LevelInfo)

	logger := p.GetLoggerWithName("trainer").With(ModelNameKey, "LinearRegression")
	logger.Debug("hidden")
	logger.Info("Training started", SamplesKey, 80, FeaturesKey, 1)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "Training started", lines[0]["message"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "trainer", lines[0]["logger"])
	assert.Equal(t, "LinearRegression", lines[0][ModelNameKey])
	assert.Equal(t, 80.0, lines[0][SamplesKey])

	assert.False(t, logger.Enabled(context.Background(), LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), LevelWarn))

	p.SetLevel(LevelDebug)
	buf.Reset()
	p.GetLogger().Debug("visible")
	assert.Len(t, decodeLines(t, &buf), 1)
}

func TestZerologLoggerError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologProvider(&buf, LevelDebug).GetLogger()

	err := sverrors.NewValueError("Fit", "bad input")
	logger.Error("Training failed", err, OperationKey, OperationFit)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "sorvete: Fit: bad input", lines[0]["error"])
	assert.Equal(t, OperationFit, lines[0][OperationKey])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]struct {
		in      string
		want    Level
		wantErr bool
	}{
		"debug":   {in: "debug", want: LevelDebug},
		"info":    {in: "info", want: LevelInfo},
		"empty":   {in: "", want: LevelInfo},
		"warn":    {in: "warn", want: LevelWarn},
		"error":   {in: "error", want: LevelError},
		"invalid": {in: "verbose", wantErr: true},
	}
	for name, td := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseLevel(td.in)
			if td.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, td.want, got)
		})
	}
}

func TestTestLogger(t *testing.T) {
	logger, buffer := NewTestLogger(LevelInfo)
	child := logger.With(ComponentKey, "linear")

	logger.Debug("debug message")
	child.Info("info message", "number", 42)
	child.Error("error message", sverrors.New("boom"), "code", "X")

	assert.NotEmpty(t, buffer.String())
	assert.False(t, logger.ContainsMessage("debug message"))
	assert.True(t, logger.ContainsMessage("info message"))
	assert.True(t, logger.ContainsField("number", 42.0))
	assert.True(t, logger.ContainsField(ComponentKey, "linear"))
	assert.True(t, logger.ContainsField(ErrorKey, "boom"))

	entries, err := logger.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	logger.Clear()
	assert.False(t, logger.ContainsMessage("info message"))
}

func TestGlobalProvider(t *testing.T) {
	p, captured := NewTestLoggerProvider(LevelDebug)
	prev := SetProvider(p)
	defer SetProvider(prev)

	GetLoggerWithName("tracking").Info("Run started", RunIDKey, "abc")
	assert.True(t, captured.ContainsField("logger", "tracking"))
	assert.True(t, captured.ContainsField(RunIDKey, "abc"))

	SetLevel(LevelError)
	GetLogger().Info("dropped")
	assert.False(t, captured.ContainsMessage("dropped"))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}
