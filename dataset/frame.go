// Package dataset loads the numeric tables the trainer learns from.
//
// A Frame is read once from CSV and never mutated afterwards. Cells are
// parsed lazily per column, so a malformed value in a column the trainer
// does not use is not an error.
package dataset

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/gelato-ml/sorvete/core/parallel"
	"github.com/gelato-ml/sorvete/pkg/errors"
	"github.com/gelato-ml/sorvete/pkg/log"
)

// Column names of the ice-cream sales dataset. They are compared as exact
// UTF-8 strings.
const (
	FeatureColumn = "Temperatura (°C)"
	TargetColumn  = "Vendas de Sorvete"
)

// Rows above this are parsed in parallel.
const parseParallelThreshold = 4096

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Frame is an immutable table of string cells with a header.
type Frame struct {
	source  string
	columns []string
	index   map[string]int
	records [][]string
}

// ReadCSV loads the CSV file at path. A missing or unreadable file, or
// malformed CSV, yields a DataAccessError.
func ReadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewDataAccessError(path, err)
	}
	defer func() { _ = file.Close() }()

	return ReadCSVFrom(file, path)
}

// ReadCSVFrom loads CSV from r. source names the input in errors and logs.
func ReadCSVFrom(r io.Reader, source string) (*Frame, error) {
	logger := log.GetLoggerWithName("dataset")

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewDataAccessError(source, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.NewDataAccessError(source, err)
	}
	if len(records) == 0 {
		return nil, errors.NewDataAccessError(source, errors.ErrEmptyData)
	}

	header := records[0]
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, dup := index[name]; dup {
			return nil, errors.NewDataAccessError(source, errors.Newf("duplicate column %q", name))
		}
		index[name] = i
	}

	f := &Frame{
		source:  source,
		columns: header,
		index:   index,
		records: records[1:],
	}
	logger.Debug("CSV loaded",
		log.PathKey, source,
		log.SamplesKey, f.Len(),
		log.ColumnsKey, strings.Join(header, ","),
	)
	return f, nil
}

// Len returns the number of data rows.
func (f *Frame) Len() int {
	return len(f.records)
}

// Columns returns the header names in file order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// Has reports whether the frame has a column called name.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// RequireColumns returns a SchemaError for the first name not present.
func (f *Frame) RequireColumns(names ...string) error {
	for _, name := range names {
		if !f.Has(name) {
			return errors.NewSchemaError(name, f.columns)
		}
	}
	return nil
}

// Column parses the named column as float64. Rows are numbered as in the
// file (the header is row 1).
func (f *Frame) Column(name string) ([]float64, error) {
	col, ok := f.index[name]
	if !ok {
		return nil, errors.NewSchemaError(name, f.columns)
	}

	values := make([]float64, len(f.records))
	errs := make([]error, len(f.records))
	parallel.ParallelizeWithThreshold(len(f.records), parseParallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(f.records[i][col]), 64)
			if err != nil {
				errs[i] = errors.NewParseError(f.source, i+2, name, err)
				continue
			}
			values[i] = v
		}
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return values, nil
}

// Vector returns the named column as a gonum vector.
func (f *Frame) Vector(name string) (*mat.VecDense, error) {
	values, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.NewDataAccessError(f.source, errors.ErrEmptyData)
	}
	return mat.NewVecDense(len(values), values), nil
}

// Matrix returns the named columns as an n×len(names) matrix. All names are
// checked before any cell is parsed.
func (f *Frame) Matrix(names ...string) (*mat.Dense, error) {
	if len(names) == 0 {
		return nil, errors.NewValueError("Frame.Matrix", "no columns selected")
	}
	if err := f.RequireColumns(names...); err != nil {
		return nil, err
	}
	if f.Len() == 0 {
		return nil, errors.NewDataAccessError(f.source, errors.ErrEmptyData)
	}

	out := mat.NewDense(f.Len(), len(names), nil)
	for j, name := range names {
		values, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		out.SetCol(j, values)
	}
	return out, nil
}
