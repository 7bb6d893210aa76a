// Package metrics は回帰モデルの評価指標を提供する。
// 指標はすべてホールドアウトしたテストデータの真値と予測値から計算する。
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/gelato-ml/sorvete/pkg/errors"
)

// checkPair は長さの一致と空でないことを検証する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.IsEmpty() {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.IsEmpty() || yPred.Len() != n {
		got := 0
		if !yPred.IsEmpty() {
			got = yPred.Len()
		}
		return 0, errors.NewDimensionError(op, n, got, 0)
	}
	return n, nil
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
//
//	MSE = (1/n) * Σ(yTrue - yPred)²
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// RMSE は平方根平均二乗誤差を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}
	return sum / float64(n), nil
}

// R2Score は決定係数（R²）を計算する
//
//	R² = 1 - SS_res / SS_tot
//
// yTrueに分散がない（SS_tot == 0）場合はscikit-learnの既定動作に合わせ、
// SS_res == 0 なら1.0、それ以外は0.0を返し、UndefinedMetricWarningを発生させる。
// サンプルが2未満の場合はR²が定義されないため、警告を出してNaNを返す。
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if n < 2 {
		result := math.NaN()
		errors.Warn(errors.NewUndefinedMetricWarning("r2", "less than two samples", result))
		return result, nil
	}

	yMean := mat.Sum(yTrue) / float64(n)

	var ssTot, ssRes float64
	for i := 0; i < n; i++ {
		t := yTrue.AtVec(i)
		p := yPred.AtVec(i)
		ssTot += (t - yMean) * (t - yMean)
		ssRes += (t - p) * (t - p)
	}

	if ssTot == 0 {
		result := 0.0
		if ssRes == 0 {
			result = 1.0
		}
		errors.Warn(errors.NewUndefinedMetricWarning("r2", "zero variance in y_true", result))
		return result, nil
	}
	return 1 - ssRes/ssTot, nil
}

// ExplainedVarianceScore は説明分散スコアを計算する
//
//	EV = 1 - Var(yTrue - yPred) / Var(yTrue)
//
// 分散がない場合の扱いはR2Scoreと同じ。
func ExplainedVarianceScore(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("ExplainedVarianceScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var yTrueMean, diffMean float64
	for i := 0; i < n; i++ {
		yTrueMean += yTrue.AtVec(i)
		diffMean += yTrue.AtVec(i) - yPred.AtVec(i)
	}
	yTrueMean /= float64(n)
	diffMean /= float64(n)

	var varTrue, varDiff float64
	for i := 0; i < n; i++ {
		t := yTrue.AtVec(i)
		d := t - yPred.AtVec(i)
		varTrue += (t - yTrueMean) * (t - yTrueMean)
		varDiff += (d - diffMean) * (d - diffMean)
	}

	if varTrue == 0 {
		result := 0.0
		if varDiff == 0 {
			result = 1.0
		}
		errors.Warn(errors.NewUndefinedMetricWarning("explained_variance", "zero variance in y_true", result))
		return result, nil
	}
	return 1 - varDiff/varTrue, nil
}

// ColumnVector はn×1行列をVecDenseに変換する。Predictの戻り値を指標に渡すために使う。
func ColumnVector(m mat.Matrix) (*mat.VecDense, error) {
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewValueError("ColumnVector", "empty matrix")
	}
	if c != 1 {
		return nil, errors.NewValueError("ColumnVector", "must be a column vector (n×1 matrix)")
	}
	if v, ok := m.(*mat.VecDense); ok {
		return v, nil
	}
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		out.SetVec(i, m.At(i, 0))
	}
	return out, nil
}

// Report はトレーナーが記録・出力する評価指標の集合
type Report struct {
	MSE               float64
	RMSE              float64
	MAE               float64
	R2                float64
	ExplainedVariance float64
}

// Evaluate はyTrueとyPredからReportを計算する
func Evaluate(yTrue, yPred *mat.VecDense) (Report, error) {
	var (
		r   Report
		err error
	)
	if r.MSE, err = MSE(yTrue, yPred); err != nil {
		return Report{}, err
	}
	r.RMSE = math.Sqrt(r.MSE)
	if r.MAE, err = MAE(yTrue, yPred); err != nil {
		return Report{}, err
	}
	if r.R2, err = R2Score(yTrue, yPred); err != nil {
		return Report{}, err
	}
	if r.ExplainedVariance, err = ExplainedVarianceScore(yTrue, yPred); err != nil {
		return Report{}, err
	}
	return r, nil
}
