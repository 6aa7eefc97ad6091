// Package training runs the offline part of the template: it fetches and loads the
// dataset, fits the end-to-end pipeline, evaluates it and writes every artifact the
// inference service needs.
package training

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/mltemplate/dataset"
	"github.com/YuminosukeSato/mltemplate/features"
	"github.com/YuminosukeSato/mltemplate/models"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/preprocessing"
)

// RootConfig is the training configuration file.
type RootConfig struct {
	Dataset   dataset.Config         `yaml:"dataset"`
	Splitter  features.SplitConfig   `yaml:"splitter"`
	Feature   features.Config        `yaml:"feature"`
	Estimator models.EstimatorConfig `yaml:"estimator"`
	Outputs   Outputs                `yaml:"outputs"`
	Tracking  Tracking               `yaml:"tracking"`
}

// Outputs are the optional files written next to the metrics and the artifact.
type Outputs struct {
	// SchemaPath receives the TabularSchema of the active feature columns.
	SchemaPath string `yaml:"schema_path"`
	// StatsPath receives the mean/std of the numeric training columns.
	StatsPath string `yaml:"stats_path"`
	// MetricsPlotPath receives a bar chart of the validation metrics.
	MetricsPlotPath string `yaml:"metrics_plot_path"`
}

// Tracking enables the run registry when DSN is set.
type Tracking struct {
	DSN string `yaml:"dsn"`
}

// Default returns the values used for keys a configuration file leaves out.
func Default() RootConfig {
	return RootConfig{
		Splitter:  features.SplitConfig{Validation: 0.2, RandomState: models.DefaultRandomState},
		Estimator: models.EstimatorConfig{RandomState: models.DefaultRandomState},
	}
}

// LoadConfig reads and validates the YAML file at path. Unknown keys are rejected.
func LoadConfig(path string) (RootConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RootConfig{}, errors.NewNotFoundError("training config", path)
		}
		return RootConfig{}, errors.WrapIO(err, "read training config")
	}
	return ParseConfig(raw)
}

// ParseConfig decodes and validates a YAML document.
func ParseConfig(raw []byte) (RootConfig, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return RootConfig{}, errors.NewInvalidConfigError("config", nil, err.Error())
	}
	cfg.Feature = cfg.Feature.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return RootConfig{}, err
	}
	return cfg, nil
}

// Validate checks every section without touching the filesystem or the network.
func (c RootConfig) Validate() error {
	if err := c.Dataset.Validate(); err != nil {
		return err
	}
	if err := c.Splitter.Validate(); err != nil {
		return err
	}
	if _, err := preprocessing.NewPreprocessor(c.Feature); err != nil {
		return err
	}
	if _, err := models.Make(c.Estimator); err != nil {
		return err
	}
	if c.Estimator.PosLabel == "" {
		return errors.NewMissingConfigError("estimator.pos_label", "a positive label is required for precision, recall and F1")
	}
	if c.Estimator.MetricsPath == "" {
		return errors.NewMissingConfigError("estimator.metrics_path", "a metrics output path is required")
	}
	if c.Estimator.ModelArtifactPath == "" {
		return errors.NewMissingConfigError("estimator.model_artifact_path", "an artifact output path is required")
	}
	return nil
}
