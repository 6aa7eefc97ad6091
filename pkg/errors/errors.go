// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// scikit-learnの警告・例外システムにインスパイアされており、構造化されたエラー情報を提供します。
// パイプライン固有のエラー（設定エラー、欠損カラム、スキーマ不一致、外れ値など）もここで定義され、
// KindOf によって config / data / io の3分類に振り分けられます。
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
		log.Printf("mltemplate-warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
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

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
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

// ===========================================================================
//
//	scikit-learn互換の警告型
//
// ===========================================================================

// ConvergenceWarning は最適化アルゴリズムが収束しなかった場合に発生する警告です。
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter or adjusting parameters.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning は新しいConvergenceWarningを作成します。
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// UndefinedMetricWarning は評価指標が計算できない場合に発生する警告です。
// 例えば、適合率(precision)を計算する際に、陽性クラスの予測が一つもなかった場合など。
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
//	構造化されたエラー型（モデル）
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` や `Transform` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("mltemplate: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("mltemplate: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, e.axisName(), e.Expected, e.Got)
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
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
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mltemplate: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
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
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("mltemplate: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError は機械学習モデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mltemplate: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("mltemplate: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// NumericalInstabilityError は数値計算が不安定になった場合のエラーです。
// NaN、Inf、オーバーフローなどを検出します。
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Iteration int
}

func (e *NumericalInstabilityError) Error() string {
	vals := make([]string, 0, len(e.Values))
	for i, v := range e.Values {
		if i >= 5 {
			vals = append(vals, "...")
			break
		}
		vals = append(vals, fmt.Sprintf("%.6g", v))
	}
	return fmt.Sprintf("mltemplate: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, strings.Join(vals, ", "))
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	err := &NumericalInstabilityError{Operation: operation, Values: values, Iteration: iteration}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	構造化されたエラー型（パイプライン）
//
// ===========================================================================

// ConfigError は設定値が不正・欠落している場合のエラーです。処理開始前に致命的に扱われます。
type ConfigError struct {
	Field   string
	Value   interface{}
	Allowed []string
	Reason  string
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("mltemplate: invalid configuration for '%s'", e.Field)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (got: %v)", e.Value)
	}
	if len(e.Allowed) > 0 {
		msg += fmt.Sprintf(". Expected one of %v", e.Allowed)
	}
	return msg
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ConfigError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Interface("value", e.Value).
		Strs("allowed", e.Allowed).
		Str("reason", e.Reason).
		Str("type", "ConfigError")
}

// NewConfigError は列挙値の範囲外など、設定値の誤りを表すエラーを作成します。
func NewConfigError(field string, value interface{}, allowed []string) error {
	return errors.WithStack(&ConfigError{Field: field, Value: value, Allowed: allowed})
}

// NewMissingConfigError は必須項目の欠落を表すConfigErrorを作成します。
func NewMissingConfigError(field, reason string) error {
	return errors.WithStack(&ConfigError{Field: field, Reason: reason})
}

// NewInvalidConfigError は値が条件を満たさない設定項目のConfigErrorを作成します。
func NewInvalidConfigError(field string, value interface{}, reason string) error {
	return errors.WithStack(&ConfigError{Field: field, Value: value, Reason: reason})
}

// ParameterError は推定器のハイパーパラメータが不正な場合のエラーです。
type ParameterError struct {
	Estimator string
	Param     string
	Value     interface{}
	Reason    string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("mltemplate: %s: invalid parameter '%s': %s (got: %v)", e.Estimator, e.Param, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ParameterError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("estimator", e.Estimator).
		Str("param", e.Param).
		Interface("value", e.Value).
		Str("reason", e.Reason).
		Str("type", "ParameterError")
}

// NewParameterError は新しいParameterErrorを作成します。
func NewParameterError(estimator, param string, value interface{}, reason string) error {
	return errors.WithStack(&ParameterError{Estimator: estimator, Param: param, Value: value, Reason: reason})
}

// MissingColumnError は要求されたカラムがテーブルに存在しない場合のエラーです。
type MissingColumnError struct {
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("mltemplate: missing columns: %v", e.Columns)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *MissingColumnError) MarshalZerologObject(event *zerolog.Event) {
	event.Strs("columns", e.Columns).Str("type", "MissingColumnError")
}

// NewMissingColumnError は新しいMissingColumnErrorを作成します。
func NewMissingColumnError(columns []string) error {
	return errors.WithStack(&MissingColumnError{Columns: columns})
}

// NotFoundError はファイルが存在しない場合のエラーです。
type NotFoundError struct {
	Path string
	What string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("mltemplate: %s not found: %s", e.What, e.Path)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFoundError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("path", e.Path).Str("what", e.What).Str("type", "NotFoundError")
}

// NewNotFoundError は新しいNotFoundErrorを作成します。
func NewNotFoundError(what, path string) error {
	return errors.WithStack(&NotFoundError{Path: path, What: what})
}

// StructureMismatchError は入力テーブルの構造がスキーマと一致しない場合のエラーです。
type StructureMismatchError struct {
	Partition string // "columns", "numeric", "categorical", "duplicates"
	Expected  []string
	Found     []string
}

func (e *StructureMismatchError) Error() string {
	return fmt.Sprintf("mltemplate: %s structure mismatch: expected %v, found %v", e.Partition, e.Expected, e.Found)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *StructureMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("partition", e.Partition).
		Strs("expected", e.Expected).
		Strs("found", e.Found).
		Str("type", "StructureMismatchError")
}

// NewStructureMismatchError は新しいStructureMismatchErrorを作成します。
func NewStructureMismatchError(partition string, expected, found []string) error {
	return errors.WithStack(&StructureMismatchError{Partition: partition, Expected: expected, Found: found})
}

// OutlierPosition は外れ値と判定されたセルの位置です。
type OutlierPosition struct {
	Row     int
	Feature int
	Value   float64
}

// OutlierError は値が mean ± k·std の範囲外にある場合のエラーです。
type OutlierError struct {
	Sigma     float64
	Positions []OutlierPosition
}

func (e *OutlierError) Error() string {
	return fmt.Sprintf("mltemplate: %d value(s) outside mean ± %g·std", len(e.Positions), e.Sigma)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *OutlierError) MarshalZerologObject(event *zerolog.Event) {
	rows := make([]int, len(e.Positions))
	for i, p := range e.Positions {
		rows[i] = p.Row
	}
	event.Float64("sigma", e.Sigma).
		Ints("rows", rows).
		Str("type", "OutlierError")
}

// NewOutlierError は新しいOutlierErrorを作成します。
func NewOutlierError(sigma float64, positions []OutlierPosition) error {
	return errors.WithStack(&OutlierError{Sigma: sigma, Positions: positions})
}

// ArtifactError はシリアライズされた成果物が壊れている、またはバージョンが一致しない場合のエラーです。
type ArtifactError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ArtifactError) Error() string {
	msg := "mltemplate: artifact"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// NewArtifactError は新しいArtifactErrorを作成します。
func NewArtifactError(path, reason string, err error) error {
	return errors.WithStack(&ArtifactError{Path: path, Reason: reason, Err: err})
}

// IOError はネットワーク・ディスクI/Oの失敗を表します。リトライせずに呼び出し元へ伝播します。
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("mltemplate: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// WrapIO はI/Oエラーをラップします。errがnilの場合はnilを返します。
func WrapIO(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&IOError{Op: op, Err: err})
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

	// ErrSingularMatrix は特異行列の場合のエラーです。
	ErrSingularMatrix = New("singular matrix")
)
