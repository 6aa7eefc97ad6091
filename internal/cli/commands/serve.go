package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/mltemplate/inference"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

func newServeCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a trained pipeline over HTTP",
		Long: `serve reads ARTIFACT, TABLE_SCHEMA and FEATURE_STATS (and optionally HOST, PORT,
LOG_LEVEL, LOG_ON, LOG_FORMAT, OUTLIER_SIGMA, METRICS_ENABLED) from the environment,
loads the three resources and answers /health and /predict.

A failed startup keeps the process up: /health reports 400 until it is restarted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := inference.LoadConfig(envFile)
			if err != nil {
				return err
			}
			if err := cfg.ConfigureLogging(); err != nil {
				return err
			}

			svc := inference.NewService(cfg)
			if err := svc.Start(); err != nil {
				log.GetLoggerWithName("cli").Error("Failed to start service, serving unhealthy", err,
					log.ServiceStateKey, svc.State().String())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return inference.NewServer(svc).ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&envFile, "env", "", "dotenv file with service settings")
	return cmd
}
