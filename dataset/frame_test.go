package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gelato-ml/sorvete/pkg/errors"
)

const salesCSV = `Temperatura (°C),Vendas de Sorvete
20,105
25,130.5
30,158
35, 180
`

func TestReadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sorvete.csv")
	require.NoError(t, os.WriteFile(path, []byte(salesCSV), 0o644))

	f, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 4, f.Len())
	assert.Equal(t, []string{FeatureColumn, TargetColumn}, f.Columns())

	X, err := f.Matrix(FeatureColumn)
	require.NoError(t, err)
	r, c := X.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 1, c)
	assert.Equal(t, 35.0, X.At(3, 0))

	y, err := f.Vector(TargetColumn)
	require.NoError(t, err)
	assert.Equal(t, []float64{105, 130.5, 158, 180}, y.RawVector().Data)
}

func TestReadCSV_ByteOrderMark(t *testing.T) {
	f, err := ReadCSVFrom(strings.NewReader("\xEF\xBB\xBF"+salesCSV), "bom.csv")
	require.NoError(t, err)
	assert.True(t, f.Has(FeatureColumn))
}

func TestReadCSV_MissingFile(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)

	var dae *errors.DataAccessError
	assert.True(t, errors.As(err, &dae))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadCSV_Malformed(t *testing.T) {
	tests := map[string]string{
		"ragged row":       "a,b\n1,2\n3\n",
		"unterminated":     "a,b\n\"1,2\n",
		"empty input":      "",
		"duplicate header": "a,a\n1,2\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSVFrom(strings.NewReader(input), name)
			var dae *errors.DataAccessError
			assert.True(t, errors.As(err, &dae), "got %v", err)
		})
	}
}

func TestFrame_SchemaError(t *testing.T) {
	renamed := strings.Replace(salesCSV, "Temperatura (°C)", "Temperatura (C)", 1)
	f, err := ReadCSVFrom(strings.NewReader(renamed), "renamed.csv")
	require.NoError(t, err)

	_, err = f.Matrix(FeatureColumn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingColumn))

	var schemaErr *errors.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, FeatureColumn, schemaErr.Column)
	assert.Contains(t, schemaErr.Available, "Temperatura (C)")

	assert.Error(t, f.RequireColumns(TargetColumn, FeatureColumn))
	assert.NoError(t, f.RequireColumns(TargetColumn))
}

func TestFrame_ParseError(t *testing.T) {
	input := "Temperatura (°C),Vendas de Sorvete,Obs\n20,105,x\n25,muito,y\n"
	f, err := ReadCSVFrom(strings.NewReader(input), "bad.csv")
	require.NoError(t, err)

	_, err = f.Vector(TargetColumn)
	var dae *errors.DataAccessError
	require.True(t, errors.As(err, &dae))
	assert.Equal(t, 3, dae.Row)
	assert.Equal(t, TargetColumn, dae.Column)

	// unused non-numeric columns are fine
	_, err = f.Vector(FeatureColumn)
	assert.NoError(t, err)
}

func TestFrame_HeaderOnly(t *testing.T) {
	f, err := ReadCSVFrom(strings.NewReader("Temperatura (°C),Vendas de Sorvete\n"), "empty.csv")
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())

	_, err = f.Matrix(FeatureColumn)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}
