package preprocessing

import (
	"encoding/gob"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/core/model"
	"github.com/YuminosukeSato/mltemplate/dataset"
	"github.com/YuminosukeSato/mltemplate/features"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

// Scaler names accepted by the preprocessor.
const (
	ScalerStandard = "standard"
	ScalerRobust   = "robust"
	ScalerMinMax   = "minmax"
)

// Scalers lists the accepted scaler names.
var Scalers = []string{ScalerStandard, ScalerRobust, ScalerMinMax}

func init() {
	gob.Register(&StandardScaler{})
	gob.Register(&MinMaxScaler{})
	gob.Register(&RobustScaler{})
	gob.Register(&OneHotEncoder{})
	gob.Register(&OrdinalEncoder{})
}

// Preprocessor drops the configured columns, then runs the column union over the
// active numeric and categorical features.
type Preprocessor struct {
	State *model.StateManager

	Config  features.Config
	Columns *ColumnTransformer
}

// NewPreprocessor validates cfg and builds an unfitted preprocessor. Every component
// name is checked here, so an invalid configuration fails before any data is read.
func NewPreprocessor(cfg features.Config) (*Preprocessor, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ct, err := buildColumnTransformer(cfg)
	if err != nil {
		return nil, err
	}
	return &Preprocessor{State: model.NewStateManager(), Config: cfg, Columns: ct}, nil
}

// buildColumnTransformer creates fresh, unfitted components for cfg.
func buildColumnTransformer(cfg features.Config) (*ColumnTransformer, error) {
	var scaler Scaler
	switch cfg.ScalerType {
	case ScalerStandard:
		scaler = NewStandardScalerDefault()
	case ScalerRobust:
		scaler = NewRobustScaler()
	case ScalerMinMax:
		scaler = NewMinMaxScalerDefault()
	default:
		return nil, errors.NewConfigError("feature.scaler_type", cfg.ScalerType, Scalers)
	}

	var encoder CategoricalEncoder
	switch cfg.EncoderType {
	case EncoderOneHot:
		encoder = NewOneHotEncoder()
	case EncoderOrdinal:
		encoder = NewOrdinalEncoder()
	default:
		return nil, errors.NewConfigError("feature.encoder_type", cfg.EncoderType, Encoders)
	}

	imputer, err := NewSimpleImputer(cfg.NumericImputerStrategy, cfg.NumericFillValue)
	if err != nil {
		return nil, err
	}

	numeric := &NumericPipeline{Imputer: imputer, Scaler: scaler}
	if cfg.PCAComponents != nil {
		if numeric.PCA, err = NewKernelPCA(*cfg.PCAComponents, cfg.PCAKernel); err != nil {
			return nil, err
		}
	} else if !validKernel(cfg.PCAKernel) {
		return nil, errors.NewConfigError("feature.pca_kernel", cfg.PCAKernel, Kernels)
	}

	return &ColumnTransformer{
		State:              model.NewStateManager(),
		NumericColumns:     append([]string(nil), cfg.NumericFeatures...),
		CategoricalColumns: append([]string(nil), cfg.CategoricalFeatures...),
		Numeric:            numeric,
		Categorical:        &CategoricalPipeline{Imputer: NewCategoricalImputer(), Encoder: encoder},
	}, nil
}

func validKernel(name string) bool {
	for _, k := range Kernels {
		if k == name {
			return true
		}
	}
	return false
}

// IsFitted reports whether Fit has completed.
func (p *Preprocessor) IsFitted() bool { return p.State.IsFitted() }

// Fit replaces all fitted state with state learned from frame.
func (p *Preprocessor) Fit(frame *dataset.Frame) error {
	_, err := p.FitTransform(frame)
	return err
}

// FitTransform fits on frame and returns the transformed training matrix.
func (p *Preprocessor) FitTransform(frame *dataset.Frame) (*mat.Dense, error) {
	logger := log.GetLoggerWithName("preprocessing")
	start := time.Now()

	active, err := p.prepare(frame)
	if err != nil {
		logger.Error("Preprocessor input is invalid", err)
		return nil, err
	}

	p.State.Reset()
	ct, err := buildColumnTransformer(p.Config)
	if err != nil {
		return nil, err
	}
	out, err := ct.FitTransform(active)
	if err != nil {
		logger.Error("Preprocessor fit failed", err)
		return nil, err
	}
	p.Columns = ct

	_, width := out.Dims()
	p.State.SetDimensions(width, active.Rows())
	p.State.SetFitted()
	logger.Info("Preprocessor fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, active.Rows(),
		log.FeaturesKey, width,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return out, nil
}

// Transform applies the fitted preprocessor to frame.
func (p *Preprocessor) Transform(frame *dataset.Frame) (*mat.Dense, error) {
	if err := p.State.RequireFitted("Preprocessor", "Transform"); err != nil {
		return nil, err
	}
	active, err := p.prepare(frame)
	if err != nil {
		return nil, err
	}
	return p.Columns.Transform(active)
}

// FeatureNames returns the names of the output columns.
func (p *Preprocessor) FeatureNames() []string {
	return p.Columns.FeatureNames()
}

// prepare drops the configured columns that are present and selects the active ones.
func (p *Preprocessor) prepare(frame *dataset.Frame) (*dataset.Frame, error) {
	var drop []string
	for _, name := range p.Config.FeaturesToDrop {
		if _, ok := frame.Column(name); ok {
			drop = append(drop, name)
		}
	}
	if len(drop) > 0 {
		var err error
		if frame, err = frame.Drop(drop); err != nil {
			return nil, err
		}
	}
	return frame.Select(p.Config.Columns())
}
