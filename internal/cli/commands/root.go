// Package commands implements the mlctl command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

type rootOptions struct {
	logLevel  string
	logFormat string
	quiet     bool
}

// NewRootCommand builds the mlctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "mlctl",
		Short: "Train, serve and query tabular classification pipelines",
		Long: `mlctl trains an end-to-end preprocessing and classification pipeline from a
YAML configuration, serves it over HTTP and inspects past training runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_, err := log.Configure(log.Options{
				Enabled: !opts.quiet,
				Level:   opts.logLevel,
				Format:  opts.logFormat,
				Output:  cmd.ErrOrStderr(),
			})
			if err != nil {
				return errors.NewInvalidConfigError("log", opts.logLevel+"/"+opts.logFormat, err.Error())
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "log format (json, console, slog)")
	cmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "disable logging")

	cmd.AddCommand(
		newTrainCommand(),
		newServeCommand(),
		newPredictCommand(),
		newRunsCommand(),
		newCollectCommand(),
	)
	return cmd
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		printError(cmd.ErrOrStderr(), "%v", err)
		return ExitCode(err)
	}
	return 0
}

// ExitCode maps an error to the process exit status: 2 for configuration errors,
// 3 for data errors, 4 for I/O errors and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch errors.KindOf(err) {
	case errors.KindConfig:
		return 2
	case errors.KindData:
		return 3
	case errors.KindIO:
		return 4
	}
	return 1
}
