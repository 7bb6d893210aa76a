// Package errors はトレーナー全体で使うエラー型と警告システムを提供します。
// scikit-learnの警告・例外システムにならい、データ読み込み・スキーマ・学習・
// 永続化・トラッキングの各段階で構造化されたエラー情報を返します。
package errors

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("sorvete-warning: %v\n", w)
	}
	// pkg/log がセットする（循環importを避けるため）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は警告ハンドラを差し替えます。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します。nilで解除します。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されていれば構造化ログとして出力し、そうでなければハンドラを使います。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}
	if warningHandler != nil {
		warningHandler(w)
	}
}

// UndefinedMetricWarning は評価指標が定義できない場合に発生する警告です。
// 例えば、テスト側の目的変数に分散がなくR²の分母が0になる場合など。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ===========================================================================
//
//	モデル関連のエラー型
//
// ===========================================================================

// NotFittedError は未学習のモデルで `Predict` などを呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("sorvete: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0: 行, 1: 特徴量
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("sorvete: %s: dimension mismatch on axis %d (%s). Expected %d, got %d",
		e.Op, e.Axis, e.axisName(), e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", e.axisName()).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValueError は引数の値が不正な場合のエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("sorvete: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
// `ValueError`よりも具体的なバリデーションロジックの失敗を示します。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sorvete: validation failed for %s: %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ModelError は学習・予測・読み込みに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sorvete: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("sorvete: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// ===========================================================================
//
//	データ・永続化・トラッキングのエラー型
//
// ===========================================================================

// DataAccessError は入力ファイルが存在しない・読めない・解析できない場合のエラーです。
// Row と Column は解析エラーの位置を示します（不明な場合は0と空文字）。
type DataAccessError struct {
	Path   string
	Row    int
	Column string
	Err    error
}

func (e *DataAccessError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("sorvete: cannot read %q: row %d, column %q: %v", e.Path, e.Row, e.Column, e.Err)
	}
	return fmt.Sprintf("sorvete: cannot read %q: %v", e.Path, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DataAccessError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("path", e.Path).
		Int("row", e.Row).
		Str("column", e.Column).
		Str("type", "DataAccessError")
}

// NewDataAccessError は新しいDataAccessErrorを作成し、スタックトレースを付与します。
func NewDataAccessError(path string, err error) error {
	return errors.WithStack(&DataAccessError{Path: path, Err: err})
}

// NewParseError はセル単位の解析エラーを表すDataAccessErrorを作成します。
func NewParseError(path string, row int, column string, err error) error {
	return errors.WithStack(&DataAccessError{Path: path, Row: row, Column: column, Err: err})
}

// SchemaError は必須の列がテーブルに存在しない場合のエラーです。
type SchemaError struct {
	Column    string
	Available []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("sorvete: required column %q not found (available: %s)", e.Column, strings.Join(e.Available, ", "))
}

// Unwrap により errors.Is(err, ErrMissingColumn) が成立します。
func (e *SchemaError) Unwrap() error {
	return ErrMissingColumn
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *SchemaError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("column", e.Column).
		Strs("available", e.Available).
		Str("type", "SchemaError")
}

// NewSchemaError は新しいSchemaErrorを作成し、スタックトレースを付与します。
func NewSchemaError(column string, available []string) error {
	cols := make([]string, len(available))
	copy(cols, available)
	return errors.WithStack(&SchemaError{Column: column, Available: cols})
}

// PersistenceError はモデルディレクトリの作成や書き込みに失敗した場合のエラーです。
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("sorvete: %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError は新しいPersistenceErrorを作成し、スタックトレースを付与します。
func NewPersistenceError(op, path string, err error) error {
	return errors.WithStack(&PersistenceError{Op: op, Path: path, Err: err})
}

// TrackingError は実験トラッキングストアへの記録に失敗した場合のエラーです。
type TrackingError struct {
	Op    string
	RunID string
	Err   error
}

func (e *TrackingError) Error() string {
	if e.RunID == "" {
		return fmt.Sprintf("sorvete: tracking %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sorvete: tracking %s (run %s): %v", e.Op, e.RunID, e.Err)
}

func (e *TrackingError) Unwrap() error {
	return e.Err
}

// NewTrackingError は新しいTrackingErrorを作成し、スタックトレースを付与します。
func NewTrackingError(op, runID string, err error) error {
	return errors.WithStack(&TrackingError{Op: op, RunID: runID, Err: err})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrNoConvergence は行列分解が収束しなかった場合のエラーです。
	ErrNoConvergence = New("decomposition did not converge")

	// ErrMissingColumn は必須列が見つからない場合のエラーです。
	ErrMissingColumn = New("missing column")

	// ErrParamConflict は同じランで異なる値のパラメータを記録しようとした場合のエラーです。
	ErrParamConflict = New("param already logged with a different value")
)
