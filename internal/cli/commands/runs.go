package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/mltemplate/tracking"
)

func newRunsCommand() *cobra.Command {
	var (
		dsn   string
		limit int
		best  string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded training runs",
		Example: `  mlctl runs --dsn outputs/runs.db --limit 10
  mlctl runs --dsn outputs/runs.db --best f1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := tracking.Open(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			var runs []tracking.Run
			if best != "" {
				run, err := store.Best(cmd.Context(), best)
				if err != nil {
					return err
				}
				runs = []tracking.Run{run}
			} else {
				runs, err = store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
			}

			if len(runs) == 0 {
				printWarning(cmd.OutOrStdout(), "no runs recorded in %s", dsn)
				return nil
			}
			return writeRuns(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "outputs/runs.db", "sqlite database with recorded runs")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().StringVar(&best, "best", "", "show only the best run by this metric ("+strings.Join(tracking.Metrics, ", ")+")")
	return cmd
}

func writeRuns(w io.Writer, runs []tracking.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	boldColor.Fprintln(tw, "ID\tSTARTED\tMODEL\tACCURACY\tPRECISION\tRECALL\tF1\tROC AUC\tLOG LOSS\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.ModelType,
			r.Report.Accuracy, r.Report.Precision, r.Report.Recall, r.Report.F1,
			r.Scores.ROCAUC, r.Scores.LogLoss,
			r.Duration.Round(time.Millisecond))
	}
	return tw.Flush()
}
