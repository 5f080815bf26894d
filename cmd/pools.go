package cmd

import (
	"context"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/THIS-Institute/thiscovery-surveys/internal/bootstrap"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
)

// bufferChecker reports the unassigned count of a pool.
type bufferChecker interface {
	BufferLow(ctx context.Context, pool personallinks.PoolID) (bool, int, error)
	Buffer() int
}

func newPoolsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pools",
		Short: "Inspect link pools",
	}
	cmd.AddCommand(newPoolsStatsCommand())
	return cmd
}

func newPoolsStatsCommand() *cobra.Command {
	var (
		account   string
		surveyIDs []string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show unassigned link counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(app *bootstrap.App) error {
				for _, surveyID := range surveyIDs {
					if err := app.Validator.ValidatePool(account, surveyID); err != nil {
						return err
					}
				}
				return renderPoolStats(cmd.Context(), app.Replenisher, account, surveyIDs, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "survey platform account")
	cmd.Flags().StringSliceVar(&surveyIDs, "survey", nil, "survey id (repeatable)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("survey")
	return cmd
}

// renderPoolStats writes one table row per pool. A pool that cannot be read
// shows its error instead of counts.
func renderPoolStats(ctx context.Context, checker bufferChecker, account string, surveyIDs []string, out io.Writer) error {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Pool", "Unassigned", "Buffer", "Low"})

	for _, surveyID := range surveyIDs {
		pool := personallinks.NewPoolID(account, surveyID)
		low, unassigned, err := checker.BufferLow(ctx, pool)
		if err != nil {
			t.AppendRow(table.Row{pool.String(), "error: " + err.Error(), checker.Buffer(), "-"})
			continue
		}
		t.AppendRow(table.Row{pool.String(), unassigned, checker.Buffer(), low})
	}

	t.Render()
	return nil
}
