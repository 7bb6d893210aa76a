package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/gelato-ml/sorvete/pkg/errors"
)

func TestMSE(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   *mat.VecDense
		yPred   *mat.VecDense
		want    float64
		wantErr bool
	}{
		{
			name:  "perfect prediction",
			yTrue: mat.NewVecDense(5, []float64{1, 2, 3, 4, 5}),
			yPred: mat.NewVecDense(5, []float64{1, 2, 3, 4, 5}),
			want:  0,
		},
		{
			name:  "simple case",
			yTrue: mat.NewVecDense(4, []float64{1, 2, 3, 4}),
			yPred: mat.NewVecDense(4, []float64{1.5, 2.5, 2.5, 3.5}),
			want:  0.25,
		},
		{
			name:  "larger errors",
			yTrue: mat.NewVecDense(3, []float64{10, 20, 30}),
			yPred: mat.NewVecDense(3, []float64{12, 18, 33}),
			want:  17.0 / 3.0,
		},
		{
			name:    "dimension mismatch",
			yTrue:   mat.NewVecDense(3, []float64{1, 2, 3}),
			yPred:   mat.NewVecDense(2, []float64{1, 2}),
			wantErr: true,
		},
		{
			name:    "empty vectors",
			yTrue:   &mat.VecDense{},
			yPred:   &mat.VecDense{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MSE(tt.yTrue, tt.yPred)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-10)
		})
	}
}

func TestMSE_DimensionErrorType(t *testing.T) {
	_, err := MSE(mat.NewVecDense(3, nil), mat.NewVecDense(2, nil))
	var dimErr *errors.DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)
}

func TestRMSEAndMAE(t *testing.T) {
	yTrue := mat.NewVecDense(4, []float64{3, -0.5, 2, 7})
	yPred := mat.NewVecDense(4, []float64{2.5, 0.0, 2, 8})

	rmse, err := RMSE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(0.375), rmse, 1e-12)

	mae, err := MAE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mae, 1e-12)
}

func TestR2Score(t *testing.T) {
	tests := []struct {
		name  string
		yTrue []float64
		yPred []float64
		want  float64
	}{
		{
			name:  "perfect prediction",
			yTrue: []float64{1, 2, 3, 4, 5},
			yPred: []float64{1, 2, 3, 4, 5},
			want:  1,
		},
		{
			// scikit-learn r2_score の公式例
			name:  "sklearn example",
			yTrue: []float64{3, -0.5, 2, 7},
			yPred: []float64{2.5, 0.0, 2, 8},
			want:  0.9486081370449679,
		},
		{
			name:  "mean prediction",
			yTrue: []float64{1, 2, 3},
			yPred: []float64{2, 2, 2},
			want:  0,
		},
		{
			name:  "worse than mean",
			yTrue: []float64{1, 2, 3},
			yPred: []float64{3, 2, 1},
			want:  -3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := R2Score(mat.NewVecDense(len(tt.yTrue), tt.yTrue), mat.NewVecDense(len(tt.yPred), tt.yPred))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-10)
		})
	}
}

func TestR2Score_ZeroVariance(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(w error) {})

	constant := mat.NewVecDense(3, []float64{5, 5, 5})

	got, err := R2Score(constant, mat.NewVecDense(3, []float64{5, 5, 5}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = R2Score(constant, mat.NewVecDense(3, []float64{4, 5, 6}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	require.Len(t, warnings, 2)
	var w *errors.UndefinedMetricWarning
	require.True(t, errors.As(warnings[1], &w))
	assert.Equal(t, "r2", w.Metric)
}

func TestR2Score_SingleSample(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(w error) {})

	got, err := R2Score(mat.NewVecDense(1, []float64{41}), mat.NewVecDense(1, []float64{40}))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got))

	require.Len(t, warnings, 1)
	var w *errors.UndefinedMetricWarning
	require.True(t, errors.As(warnings[0], &w))
	assert.Equal(t, "r2", w.Metric)
	assert.Equal(t, "less than two samples", w.Condition)

	report, err := Evaluate(mat.NewVecDense(1, []float64{41}), mat.NewVecDense(1, []float64{40}))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(report.R2))
	assert.Equal(t, 1.0, report.MSE)
}

func TestExplainedVarianceScore(t *testing.T) {
	yTrue := mat.NewVecDense(4, []float64{3, -0.5, 2, 7})
	yPred := mat.NewVecDense(4, []float64{2.5, 0.0, 2, 8})

	got, err := ExplainedVarianceScore(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.9571734475374732, got, 1e-10)
}

func TestColumnVector(t *testing.T) {
	v, err := ColumnVector(mat.NewDense(3, 1, []float64{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, v.RawVector().Data)

	_, err = ColumnVector(mat.NewDense(2, 2, nil))
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	yTrue := mat.NewVecDense(4, []float64{1, 2, 3, 4})
	yPred := mat.NewVecDense(4, []float64{1.5, 2.5, 2.5, 3.5})

	r, err := Evaluate(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, r.MSE, 1e-12)
	assert.InDelta(t, 0.5, r.RMSE, 1e-12)
	assert.InDelta(t, 0.5, r.MAE, 1e-12)
	assert.InDelta(t, 0.8, r.R2, 1e-12)

	_, err = Evaluate(yTrue, mat.NewVecDense(2, nil))
	assert.Error(t, err)
}
