package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/gelato-ml/sorvete/pkg/errors"
)

// WeightsFormatVersion is written into every ModelWeights document.
const WeightsFormatVersion = "1.0"

// ModelWeights はモデルの重みを表す構造体（シリアライゼーション用）
type ModelWeights struct {
	// ModelType はモデルの種類（LinearRegression等）
	ModelType string `json:"model_type"`

	// Version は重みフォーマットのバージョン
	Version string `json:"version"`

	// Coefficients は重み係数（特徴量の順）
	Coefficients []float64 `json:"coefficients"`

	// Intercept は切片
	Intercept float64 `json:"intercept"`

	// Features は特徴量の名前（Coefficientsと同じ順）
	Features []string `json:"features,omitempty"`

	// Hyperparameters はモデルのハイパーパラメータ
	Hyperparameters map[string]interface{} `json:"hyperparameters"`

	// Metadata は学習時の統計などの追加情報
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// IsFitted はモデルが学習済みかどうか
	IsFitted bool `json:"is_fitted"`
}

// ToJSON はModelWeightsをJSON形式にシリアライズ
func (mw *ModelWeights) ToJSON() ([]byte, error) {
	return json.MarshalIndent(mw, "", "  ")
}

// FromJSON はJSON形式からModelWeightsをデシリアライズ
func (mw *ModelWeights) FromJSON(data []byte) error {
	return json.Unmarshal(data, mw)
}

// Validate はModelWeightsの妥当性を検証
func (mw *ModelWeights) Validate() error {
	const op = "ModelWeights.Validate"
	switch {
	case mw.ModelType == "":
		return errors.NewValueError(op, "model_type is required")
	case mw.Version == "":
		return errors.NewValueError(op, "version is required")
	case mw.Version != WeightsFormatVersion:
		return errors.NewValueError(op, fmt.Sprintf("unsupported version: %s", mw.Version))
	case !mw.IsFitted && len(mw.Coefficients) > 0:
		return errors.NewValueError(op, "unfitted model should not have coefficients")
	case mw.IsFitted && len(mw.Coefficients) == 0:
		return errors.NewValueError(op, "fitted model must have coefficients")
	case len(mw.Features) > 0 && len(mw.Features) != len(mw.Coefficients):
		return errors.NewDimensionError(op, len(mw.Coefficients), len(mw.Features), 1)
	}
	return errors.CheckFinite(op, append([]float64{mw.Intercept}, mw.Coefficients...)...)
}

// Clone はModelWeightsのディープコピーを作成
func (mw *ModelWeights) Clone() *ModelWeights {
	clone := &ModelWeights{
		ModelType:       mw.ModelType,
		Version:         mw.Version,
		Intercept:       mw.Intercept,
		IsFitted:        mw.IsFitted,
		Coefficients:    append([]float64(nil), mw.Coefficients...),
		Features:        append([]string(nil), mw.Features...),
		Hyperparameters: make(map[string]interface{}, len(mw.Hyperparameters)),
		Metadata:        make(map[string]interface{}, len(mw.Metadata)),
	}
	for k, v := range mw.Hyperparameters {
		clone.Hyperparameters[k] = v
	}
	for k, v := range mw.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// Hash は係数・切片・特徴量名から計算したSHA-256（検証用）
func (mw *ModelWeights) Hash() string {
	data, err := json.Marshal(struct {
		ModelType    string    `json:"model_type"`
		Coefficients []float64 `json:"coefficients"`
		Intercept    float64   `json:"intercept"`
		Features     []string  `json:"features"`
	}{mw.ModelType, mw.Coefficients, mw.Intercept, mw.Features})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
