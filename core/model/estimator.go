package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる。y はクラスインデックスの列ベクトル。
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict はクラスインデックスを (n_samples, 1) の行列で返す
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// ProbaPredictor はクラス確率を返せるモデルのインターフェース
type ProbaPredictor interface {
	// PredictProba は (n_samples, n_classes) の確率行列を返す
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// ParameterGetter exposes hyperparameters by their snake_case names.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter sets hyperparameters by their snake_case names. Unknown keys and
// wrongly typed values are rejected.
type ParameterSetter interface {
	SetParams(params map[string]interface{}) error
}

// Classifier is the contract shared by every estimator the factory can build.
type Classifier interface {
	Fitter
	Predictor
	ProbaPredictor
	ParameterGetter
	ParameterSetter

	// IsFitted reports whether Fit has completed successfully.
	IsFitted() bool
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}
