// Package linear implements ordinary least squares regression.
//
// LinearRegression fits y = X·w + b by least squares on centered data, solved
// through a singular value decomposition. Rank-deficient inputs get the
// minimum-norm solution instead of an error. The fitted model is immutable;
// refitting replaces it wholesale.
//
// Example usage:
//
//	lr := linear.NewLinearRegression(linear.WithFeatureNames("Temperatura (°C)"))
//	if err := lr.Fit(X, y); err != nil {
//		return err
//	}
//	predictions, err := lr.Predict(XTest)
package linear

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/gelato-ml/sorvete/core/model"
	"github.com/gelato-ml/sorvete/core/parallel"
	"github.com/gelato-ml/sorvete/metrics"
	"github.com/gelato-ml/sorvete/pkg/errors"
	"github.com/gelato-ml/sorvete/pkg/log"
)

// ModelName is the model type recorded in exported weights and logs.
const ModelName = "LinearRegression"

// Design matrices with more rows than this are assembled in parallel.
const parallelThreshold = 1000

// Machine epsilon for float64.
const eps = 0x1p-52

// LinearRegression is an ordinary least squares model.
type LinearRegression struct {
	State        *model.StateManager
	Weights      *mat.VecDense // Coefficients, one per feature
	Intercept    float64
	NFeatures    int
	FitIntercept bool
	FeatureNames []string
	logger       log.Logger
}

var _ model.Regressor = (*LinearRegression)(nil)
var _ model.LinearModel = (*LinearRegression)(nil)

// NewLinearRegression creates an unfitted model. The intercept is fitted
// unless WithFitIntercept(false) is given.
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{
		State:        model.NewStateManager(),
		FitIntercept: true,
	}
	for _, opt := range opts {
		opt(lr)
	}
	if lr.logger == nil {
		lr.logger = log.GetLoggerWithName("linear").With(
			log.ModelNameKey, ModelName,
			log.ComponentKey, "linear",
		)
	}
	return lr
}

// Fit estimates the coefficients from X (n_samples × n_features) and the
// column vector y (n_samples × 1).
//
// With an intercept, X and y are centered and the intercept is recovered as
// mean(y) - mean(X)·w. The least-squares problem is solved through an SVD and
// yields the minimum-norm solution when the design is rank deficient: a
// constant feature gets a zero coefficient, and a single sample fits the
// intercept alone.
//
// Errors:
//   - ErrEmptyData: X has no rows or no columns
//   - DimensionError: X and y disagree on the number of rows
//   - ValueError: y is not a column vector, or feature names don't match X
//   - NumericalInstabilityError: the solution is not finite
func (lr *LinearRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LinearRegression.Fit")

	startTime := time.Now()
	r, c := X.Dims()
	ry, cy := y.Dims()

	lr.logger.Info("Training started",
		log.OperationKey, log.OperationFit,
		log.PhaseKey, log.PhaseTraining,
		log.SamplesKey, r,
		log.FeaturesKey, c,
	)

	if r == 0 || c == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("LinearRegression.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("LinearRegression.Fit", "y must be a column vector")
	}
	if len(lr.FeatureNames) > 0 && len(lr.FeatureNames) != c {
		return errors.NewValueError("LinearRegression.Fit",
			fmt.Sprintf("%d feature names given for %d features", len(lr.FeatureNames), c))
	}

	xMean := make([]float64, c)
	xScale := make([]float64, c)
	var yMean float64
	if lr.FitIntercept {
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				v := X.At(i, j)
				xMean[j] += v
				xScale[j] = math.Max(xScale[j], math.Abs(v))
			}
			yMean += y.At(i, 0)
		}
		for j := range xMean {
			xMean[j] /= float64(r)
		}
		yMean /= float64(r)
	}

	design := mat.NewDense(r, c, nil)
	yVec := mat.NewVecDense(r, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				design.Set(i, j, X.At(i, j)-xMean[j])
			}
			yVec.SetVec(i, y.At(i, 0)-yMean)
		}
	})
	if lr.FitIntercept {
		zeroRoundoffColumns(design, xScale)
	}

	weights, rank, err := lstsq(design, yVec)
	if err != nil {
		return err
	}
	intercept := 0.0
	if lr.FitIntercept {
		intercept = yMean - mat.Dot(mat.NewVecDense(c, xMean), weights)
	}
	if err := errors.CheckFinite("LinearRegression.Fit", append(weights.RawVector().Data, intercept)...); err != nil {
		return err
	}

	lr.Weights = weights
	lr.Intercept = intercept
	lr.NFeatures = c
	lr.State.SetFitted(c, r)

	lr.logger.Info("Training completed",
		log.OperationKey, log.OperationFit,
		log.PhaseKey, log.PhaseTraining,
		log.DurationMsKey, time.Since(startTime).Milliseconds(),
		log.InterceptKey, lr.Intercept,
		"model.rank", rank,
	)
	return nil
}

// zeroRoundoffColumns clears centered columns whose entries are all within
// rounding error of zero, so a constant feature stays exactly constant.
func zeroRoundoffColumns(design *mat.Dense, scale []float64) {
	r, c := design.Dims()
	for j := 0; j < c; j++ {
		tol := float64(r) * eps * scale[j]
		spread := 0.0
		for i := 0; i < r; i++ {
			spread = math.Max(spread, math.Abs(design.At(i, j)))
		}
		if spread <= tol {
			for i := 0; i < r; i++ {
				design.Set(i, j, 0)
			}
		}
	}
}

// lstsq returns the minimum-norm w minimizing ||A·w - b||₂ and the effective
// rank of A. Singular values below eps·max(n, p)·σ_max are treated as zero.
func lstsq(a *mat.Dense, b *mat.VecDense) (*mat.VecDense, int, error) {
	_, p := a.Dims()
	w := mat.NewVecDense(p, nil)

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, 0, errors.NewModelError("LinearRegression.Fit", "SVD", errors.ErrNoConvergence)
	}
	values := svd.Values(nil)
	if len(values) == 0 || values[0] == 0 {
		return w, 0, nil
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	n, _ := a.Dims()
	cutoff := math.Max(float64(n), float64(p)) * eps * values[0]
	rank := 0
	for k, sigma := range values {
		if sigma <= cutoff {
			break
		}
		rank++
		coef := mat.Dot(u.ColView(k), b) / sigma
		w.AddScaledVec(w, coef, v.ColView(k))
	}
	return w, rank, nil
}

// Predict returns X·w + b as an n_samples × 1 matrix.
func (lr *LinearRegression) Predict(X mat.Matrix) (_ mat.Matrix, err error) {
	defer errors.Recover(&err, "LinearRegression.Predict")
	if err := lr.State.RequireFitted(ModelName, "Predict"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	if c != lr.NFeatures {
		return nil, errors.NewDimensionError("LinearRegression.Predict", lr.NFeatures, c, 1)
	}

	lr.logger.Debug("Prediction started",
		log.OperationKey, log.OperationPredict,
		log.PhaseKey, log.PhaseInference,
		log.SamplesKey, r,
	)

	predictions := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		pred := lr.Intercept
		for j := 0; j < c; j++ {
			pred += X.At(i, j) * lr.Weights.AtVec(j)
		}
		predictions.Set(i, 0, pred)
	}

	lr.logger.Debug("Prediction completed",
		log.OperationKey, log.OperationPredict,
		log.PredsKey, r,
	)
	return predictions, nil
}

// Score returns the coefficient of determination R² of the predictions on X
// against y.
func (lr *LinearRegression) Score(X, y mat.Matrix) (_ float64, err error) {
	defer errors.Recover(&err, "LinearRegression.Score")
	yPred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	yTrue, err := metrics.ColumnVector(y)
	if err != nil {
		return 0, err
	}
	yHat, err := metrics.ColumnVector(yPred)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(yTrue, yHat)
}

// Coef returns a copy of the fitted coefficients, or nil before Fit.
func (lr *LinearRegression) Coef() []float64 {
	if lr.Weights == nil {
		return nil
	}
	return append([]float64(nil), lr.Weights.RawVector().Data...)
}

// GetIntercept returns the fitted intercept, 0 before Fit.
func (lr *LinearRegression) GetIntercept() float64 {
	if !lr.State.IsFitted() {
		return 0
	}
	return lr.Intercept
}

// IsFitted returns whether the model has been fitted.
func (lr *LinearRegression) IsFitted() bool {
	return lr.State.IsFitted()
}

// GetParams returns the model's hyperparameters.
func (lr *LinearRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"fit_intercept": lr.FitIntercept,
	}
}

// ExportWeights captures the fitted state for persistence.
func (lr *LinearRegression) ExportWeights() (*model.ModelWeights, error) {
	if err := lr.State.RequireFitted(ModelName, "ExportWeights"); err != nil {
		return nil, err
	}
	_, nSamples := lr.State.GetDimensions()
	return &model.ModelWeights{
		ModelType:       ModelName,
		Version:         model.WeightsFormatVersion,
		Coefficients:    lr.Coef(),
		Intercept:       lr.Intercept,
		Features:        append([]string(nil), lr.FeatureNames...),
		Hyperparameters: lr.GetParams(),
		Metadata: map[string]interface{}{
			"n_samples": nSamples,
		},
		IsFitted: true,
	}, nil
}

// ImportWeights restores a model exported by ExportWeights. The restored
// model predicts exactly as the exported one did.
func (lr *LinearRegression) ImportWeights(weights *model.ModelWeights) error {
	if weights == nil {
		return errors.NewValueError("LinearRegression.ImportWeights", "weights cannot be nil")
	}
	if weights.ModelType != ModelName {
		return errors.NewValueError("LinearRegression.ImportWeights",
			fmt.Sprintf("expected %s, got %s", ModelName, weights.ModelType))
	}
	if err := weights.Validate(); err != nil {
		return err
	}
	if !weights.IsFitted {
		return errors.NewNotFittedError(ModelName, "ImportWeights")
	}

	// The model keeps its own copy of the slices.
	own := weights.Clone()
	n := len(own.Coefficients)
	lr.Weights = mat.NewVecDense(n, own.Coefficients)
	lr.Intercept = own.Intercept
	lr.NFeatures = n
	lr.FeatureNames = own.Features
	if fit, ok := own.Hyperparameters["fit_intercept"].(bool); ok {
		lr.FitIntercept = fit
	}
	lr.State.SetFitted(n, 0)
	return nil
}
