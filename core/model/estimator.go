// Package model defines the estimator contracts shared by the trainer and
// the persistence of fitted weights.
package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う（n×1）
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Scorer は決定係数R²を計算できるモデルのインターフェース
type Scorer interface {
	Score(X, y mat.Matrix) (float64, error)
}

// WeightExporter は学習済みの重みを書き出し・読み込みできるモデル
type WeightExporter interface {
	ExportWeights() (*ModelWeights, error)
	ImportWeights(weights *ModelWeights) error
}

// Regressor は回帰モデルが満たすインターフェースの組み合わせ
type Regressor interface {
	Fitter
	Predictor
	Scorer
	WeightExporter
	IsFitted() bool
}

// LinearModel は線形モデルの係数へのアクセスを提供する
type LinearModel interface {
	// Coef は学習された係数を返す
	Coef() []float64
	// GetIntercept は学習された切片を返す
	GetIntercept() float64
}
