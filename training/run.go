package training

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/mltemplate/dataset"
	"github.com/YuminosukeSato/mltemplate/features"
	"github.com/YuminosukeSato/mltemplate/metrics"
	"github.com/YuminosukeSato/mltemplate/pipeline"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
	"github.com/YuminosukeSato/mltemplate/preprocessing"
	"github.com/YuminosukeSato/mltemplate/tracking"
	"github.com/YuminosukeSato/mltemplate/validation"
)

// Result summarizes a finished run.
type Result struct {
	RunID        string
	DatasetPath  string
	Report       metrics.Report
	Scores       metrics.ProbabilityScores
	Pipeline     *pipeline.Pipeline
	ArtifactPath string
	TrainSamples int
	ValSamples   int
	Duration     time.Duration
}

// Run executes the training pipeline described by cfg. configPath is only recorded
// in the run registry.
func Run(ctx context.Context, cfg RootConfig, configPath string) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	res := &Result{RunID: uuid.NewString()}
	logger := log.GetLoggerWithName("training").With(log.RunIDKey, res.RunID)
	logger.Info("Training pipeline starting", log.ModelNameKey, cfg.Estimator.ModelType)

	step := func(name string) error {
		logger.Debug("Step", log.StepKey, name)
		return ctx.Err()
	}

	if err := step("dataset"); err != nil {
		return nil, err
	}
	path, err := dataset.Create(ctx, cfg.Dataset)
	if err != nil {
		return nil, err
	}
	res.DatasetPath = path
	raw, err := dataset.Read(cfg.Dataset)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded dataset",
		log.DatasetPathKey, path,
		log.SamplesKey, raw.Rows(),
		log.FeaturesKey, raw.NCols(),
	)

	if err := step("split"); err != nil {
		return nil, err
	}
	target, err := features.ExtractTarget(raw, cfg.Feature.Target)
	if err != nil {
		return nil, err
	}
	X, err := features.ExtractFeatureColumns(raw, cfg.Feature.Columns())
	if err != nil {
		return nil, err
	}
	split, err := features.StratifiedSplit(X, target, cfg.Splitter)
	if err != nil {
		return nil, err
	}
	res.TrainSamples, res.ValSamples = len(split.TrainY), len(split.ValY)
	logger.Debug("Split dataset", "train_samples", res.TrainSamples, "val_samples", res.ValSamples)

	if err := step("fit"); err != nil {
		return nil, err
	}
	pre, err := preprocessing.NewPreprocessor(cfg.Feature)
	if err != nil {
		return nil, err
	}
	p := pipeline.New(pre, cfg.Estimator)
	if err := p.Fit(split.TrainX, split.TrainY); err != nil {
		return nil, err
	}
	res.Pipeline = p
	logger.Info("Created end-to-end inference pipeline", "output_features", len(p.Metadata.FeatureNames))

	if err := step("evaluate"); err != nil {
		return nil, err
	}
	pred, err := p.Predict(split.ValX)
	if err != nil {
		return nil, err
	}
	report, err := metrics.Evaluate(split.ValY, pred, cfg.Estimator.PosLabel)
	if err != nil {
		return nil, err
	}
	res.Report = report
	proba, err := p.PredictProba(split.ValX)
	if err != nil {
		return nil, err
	}
	scores, err := metrics.EvaluateProba(split.ValY, proba, p.Classes(), cfg.Estimator.PosLabel)
	if err != nil {
		return nil, err
	}
	res.Scores = scores
	logger.Info("Collected metrics",
		log.AccuracyKey, report.Accuracy,
		log.F1Key, report.F1,
		"precision", report.Precision,
		"recall", report.Recall,
		"roc_auc", scores.ROCAUC,
		"log_loss", scores.LogLoss,
	)

	if err := step("write"); err != nil {
		return nil, err
	}
	if err := writeOutputs(cfg, p, split, report); err != nil {
		return nil, err
	}
	res.ArtifactPath = cfg.Estimator.ModelArtifactPath
	res.Duration = time.Since(start)

	if cfg.Tracking.DSN != "" {
		if err := record(ctx, cfg, configPath, res, start); err != nil {
			return nil, err
		}
	}

	logger.Info("Training pipeline finished", log.DurationMsKey, res.Duration.Milliseconds())
	return res, nil
}

func writeOutputs(cfg RootConfig, p *pipeline.Pipeline, split *features.Split, report metrics.Report) error {
	if err := ensureDir(cfg.Estimator.MetricsPath); err != nil {
		return err
	}
	if err := report.Dump(cfg.Estimator.MetricsPath); err != nil {
		return err
	}
	if path := cfg.Outputs.MetricsPlotPath; path != "" {
		if err := ensureDir(path); err != nil {
			return err
		}
		if err := report.Plot(path, cfg.Estimator.ModelType); err != nil {
			return err
		}
	}

	if err := p.Save(cfg.Estimator.ModelArtifactPath); err != nil {
		return err
	}

	if path := cfg.Outputs.SchemaPath; path != "" {
		if err := ensureDir(path); err != nil {
			return err
		}
		if err := validation.WriteSchema(path, features.Schema(cfg.Feature)); err != nil {
			return err
		}
	}
	if path := cfg.Outputs.StatsPath; path != "" {
		stats, err := features.ComputeStats(split.TrainX, cfg.Feature.NumericFeatures)
		if err != nil {
			return err
		}
		if err := ensureDir(path); err != nil {
			return err
		}
		if err := validation.WriteStats(path, stats); err != nil {
			return err
		}
	}
	return nil
}

func record(ctx context.Context, cfg RootConfig, configPath string, res *Result, start time.Time) error {
	store, err := tracking.Open(ctx, cfg.Tracking.DSN)
	if err != nil {
		return err
	}
	defer store.Close()
	_, err = store.Record(ctx, tracking.Run{
		ID:           res.RunID,
		StartedAt:    start,
		Duration:     res.Duration,
		ModelType:    cfg.Estimator.ModelType,
		Params:       res.Pipeline.Metadata.Params,
		Dataset:      res.DatasetPath,
		TrainSamples: res.TrainSamples,
		ValSamples:   res.ValSamples,
		Report:       res.Report,
		Scores:       res.Scores,
		ArtifactPath: res.ArtifactPath,
		ConfigPath:   configPath,
	})
	return err
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapIO(err, "create output directory")
	}
	return nil
}
