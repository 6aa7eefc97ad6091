// Package models builds and fits the classifiers a training run can choose from.
package models

import (
	"encoding/gob"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/core/model"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
	"github.com/YuminosukeSato/mltemplate/sklearn/ensemble"
	"github.com/YuminosukeSato/mltemplate/sklearn/linear_model"
)

// Model type tags accepted in EstimatorConfig.ModelType.
const (
	LogReg       = "LogReg"
	RandomForest = "RandomForest"
	Boosting     = "Boosting"
	HistBoosting = "HistBoosting"
)

// DefaultRandomState is the seed used when a config does not set one.
const DefaultRandomState int64 = 42

var implemented = map[string]func() model.Classifier{
	LogReg:       func() model.Classifier { return linear_model.NewLogisticRegression() },
	RandomForest: func() model.Classifier { return ensemble.NewRandomForestClassifier() },
	Boosting:     func() model.Classifier { return ensemble.NewGradientBoostingClassifier() },
	HistBoosting: func() model.Classifier { return ensemble.NewHistGradientBoostingClassifier() },
}

func init() {
	gob.Register(&linear_model.LogisticRegression{})
	gob.Register(&ensemble.RandomForestClassifier{})
	gob.Register(&ensemble.GradientBoostingClassifier{})
	gob.Register(&ensemble.HistGradientBoostingClassifier{})
}

// Types returns the implemented model type tags in sorted order.
func Types() []string {
	out := make([]string, 0, len(implemented))
	for k := range implemented {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// EstimatorConfig selects the classifier of a training run and where its outputs go.
type EstimatorConfig struct {
	ModelType   string                 `yaml:"model_type" json:"model_type"`
	ModelParams map[string]interface{} `yaml:"model_params" json:"model_params"`
	RandomState int64                  `yaml:"random_state" json:"random_state"`
	// PosLabel is the positive class for precision, recall and F1.
	PosLabel          string `yaml:"pos_label" json:"pos_label"`
	MetricsPath       string `yaml:"metrics_path" json:"metrics_path"`
	ModelArtifactPath string `yaml:"model_artifact_path" json:"model_artifact_path"`
}

// Validate checks the model type tag.
func (c EstimatorConfig) Validate() error {
	if _, ok := implemented[c.ModelType]; !ok {
		return errors.NewConfigError("estimator.model_type", c.ModelType, Types())
	}
	return nil
}

// Params returns the hyperparameters passed to the estimator: ModelParams plus
// random_state when the estimator takes one and ModelParams does not set it.
func (c EstimatorConfig) Params(m model.Classifier) map[string]interface{} {
	out := make(map[string]interface{}, len(c.ModelParams)+1)
	for k, v := range c.ModelParams {
		out[k] = v
	}
	if _, set := out["random_state"]; !set {
		if _, takes := m.GetParams()["random_state"]; takes {
			out["random_state"] = c.RandomState
		}
	}
	return out
}

// Make instantiates the configured estimator. Unknown model types fail with a
// ConfigError and invalid hyperparameters with a ParameterError.
func Make(cfg EstimatorConfig) (model.Classifier, error) {
	logger := log.GetLoggerWithName("models")
	logger.Debug("Creating estimator", log.ModelNameKey, cfg.ModelType)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid model type", err, log.ModelNameKey, cfg.ModelType)
		return nil, err
	}
	m := implemented[cfg.ModelType]()
	if err := m.SetParams(cfg.Params(m)); err != nil {
		logger.Error("Invalid model args", err, log.ModelNameKey, cfg.ModelType)
		return nil, err
	}
	return m, nil
}

// MakeAndFit instantiates the configured estimator and fits it on X and the class
// indices y. A panic inside Fit is returned as an error.
func MakeAndFit(X, y mat.Matrix, cfg EstimatorConfig) (model.Classifier, error) {
	m, err := Make(cfg)
	if err != nil {
		return nil, err
	}
	logger := log.GetLoggerWithName("models")
	rows, cols := X.Dims()
	logger.Debug("Fitting estimator",
		log.ModelNameKey, cfg.ModelType,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.HyperParamsKey, m.GetParams(),
	)
	start := time.Now()
	if err := errors.SafeExecute(cfg.ModelType+".Fit", func() error { return m.Fit(X, y) }); err != nil {
		logger.Error("Fitting failed", err, log.ModelNameKey, cfg.ModelType)
		return nil, err
	}
	logger.Debug("Fitting complete",
		log.ModelNameKey, cfg.ModelType,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return m, nil
}
