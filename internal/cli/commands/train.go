package commands

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/mltemplate/pkg/log"
	"github.com/YuminosukeSato/mltemplate/training"
)

func newTrainCommand() *cobra.Command {
	var (
		configPath string
		dsn        string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the pipeline described by a training configuration",
		Example: `  mlctl train -c configs/training.yaml
  mlctl train -c configs/training.yaml --dsn outputs/runs.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := training.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if dsn != "" {
				cfg.Tracking.DSN = dsn
			}
			log.GetLoggerWithName("cli").Debug("Loaded training config", log.ConfigPathKey, configPath)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := training.Run(ctx, cfg, configPath)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printSuccess(w, "run %s finished in %s", res.RunID, res.Duration.Round(time.Millisecond))
			printPlain(w, "  train/val samples: %d/%d", res.TrainSamples, res.ValSamples)
			printPlain(w, "  accuracy %.4f  precision %.4f  recall %.4f  f1 %.4f",
				res.Report.Accuracy, res.Report.Precision, res.Report.Recall, res.Report.F1)
			printInfo(w, "  artifact: %s", res.ArtifactPath)
			printInfo(w, "  metrics:  %s", cfg.Estimator.MetricsPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/training.yaml", "training configuration file")
	cmd.Flags().StringVar(&dsn, "dsn", "", "record the run in this sqlite database")
	return cmd
}
