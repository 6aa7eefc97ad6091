// Package features selects target and feature columns from a loaded dataset, splits
// them into stratified train and validation parts and summarizes numeric columns.
package features

import (
	"math"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

// Config names the target and the feature columns and selects the preprocessing
// components applied to them.
type Config struct {
	Target              string   `yaml:"target"`
	NumericFeatures     []string `yaml:"numeric_features"`
	CategoricalFeatures []string `yaml:"categorical_features"`
	FeaturesToDrop      []string `yaml:"features_to_drop"`

	ScalerType             string `yaml:"scaler_type"`
	EncoderType            string `yaml:"encoder_type"`
	NumericImputerStrategy string `yaml:"numeric_imputer_strategy"`
	// NumericFillValue is used by the "constant" imputer strategy.
	NumericFillValue float64 `yaml:"numeric_fill_value"`

	// PCAComponents enables KernelPCA after scaling when set.
	PCAComponents *int   `yaml:"pca_components"`
	PCAKernel     string `yaml:"pca_kernel"`
}

// WithDefaults fills the optional choices left empty.
func (c Config) WithDefaults() Config {
	if c.ScalerType == "" {
		c.ScalerType = "standard"
	}
	if c.EncoderType == "" {
		c.EncoderType = "ohe"
	}
	if c.NumericImputerStrategy == "" {
		c.NumericImputerStrategy = "mean"
	}
	if c.PCAKernel == "" {
		c.PCAKernel = "linear"
	}
	return c
}

// Columns returns the active feature columns: numeric first, then categorical.
func (c Config) Columns() []string {
	out := make([]string, 0, len(c.NumericFeatures)+len(c.CategoricalFeatures))
	out = append(out, c.NumericFeatures...)
	return append(out, c.CategoricalFeatures...)
}

// Validate checks the column partitions. Component names are checked by the
// preprocessing builder.
func (c Config) Validate() error {
	if c.Target == "" {
		return errors.NewMissingConfigError("feature.target", "a target column is required")
	}
	if len(c.NumericFeatures)+len(c.CategoricalFeatures) == 0 {
		return errors.NewMissingConfigError("feature.numeric_features", "at least one feature column is required")
	}

	seen := make(map[string]string)
	for _, part := range []struct {
		field string
		cols  []string
	}{
		{"feature.numeric_features", c.NumericFeatures},
		{"feature.categorical_features", c.CategoricalFeatures},
		{"feature.features_to_drop", c.FeaturesToDrop},
		{"feature.target", []string{c.Target}},
	} {
		for _, col := range part.cols {
			if prev, dup := seen[col]; dup {
				return errors.NewInvalidConfigError(part.field, col, "column is already listed in "+prev)
			}
			seen[col] = part.field
		}
	}

	if c.PCAComponents != nil && *c.PCAComponents < 1 {
		return errors.NewConfigError("feature.pca_components", *c.PCAComponents, []string{">= 1"})
	}
	if math.IsNaN(c.NumericFillValue) {
		return errors.NewConfigError("feature.numeric_fill_value", c.NumericFillValue, nil)
	}
	return nil
}

// SplitConfig controls the train/validation split.
type SplitConfig struct {
	// Validation is a fraction in (0, 1) of the rows, or an absolute row count when >= 1.
	Validation  float64 `yaml:"validation"`
	RandomState int64   `yaml:"random_state"`
}

// Validate checks the validation size.
func (c SplitConfig) Validate() error {
	v := c.Validation
	switch {
	case math.IsNaN(v) || v <= 0:
		return errors.NewConfigError("splitter.validation", v, []string{"fraction in (0, 1)", "count >= 1"})
	case v >= 1 && v != math.Trunc(v):
		return errors.NewConfigError("splitter.validation", v, []string{"fraction in (0, 1)", "integral count >= 1"})
	}
	return nil
}

// validationSize resolves the number of validation rows out of n.
func (c SplitConfig) validationSize(n int) int {
	if c.Validation < 1 {
		return int(math.Ceil(c.Validation * float64(n)))
	}
	return int(c.Validation)
}
