package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/THIS-Institute/thiscovery-surveys/internal/bootstrap"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
	"github.com/THIS-Institute/thiscovery-surveys/internal/qualtrics"
)

// distributionPurger is the part of the survey platform client purge uses.
type distributionPurger interface {
	ListDistributions(ctx context.Context, surveyID string) ([]qualtrics.Distribution, error)
	DeleteDistribution(ctx context.Context, distributionID string) error
}

func newPurgeCommand() *cobra.Command {
	var (
		account  string
		surveyID string
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every distribution of a survey on the survey platform",
		Long: `Lists every distribution of the survey and deletes each one, invalidating
its links. Links already stored in the pool are not removed; purge reports
how many unassigned ones are left behind so the pool can be cleared.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(app *bootstrap.App) error {
				if err := app.Validator.ValidatePool(account, surveyID); err != nil {
					return err
				}
				client, ok := app.Clients[account]
				if !ok {
					return fmt.Errorf("no survey platform client for %q", account)
				}
				deleted, err := purgeDistributions(cmd.Context(), client, surveyID, dryRun, cmd.OutOrStdout())
				if deleted > 0 {
					warnStaleLinks(cmd.Context(), app.Replenisher, personallinks.NewPoolID(account, surveyID), cmd.ErrOrStderr())
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "survey platform account")
	cmd.Flags().StringVar(&surveyID, "survey", "", "survey id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list distributions without deleting them")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("survey")
	return cmd
}

// purgeDistributions deletes the distributions of surveyID and returns how
// many were deleted. With dryRun it only prints them.
func purgeDistributions(ctx context.Context, client distributionPurger, surveyID string, dryRun bool, out io.Writer) (int, error) {
	dists, err := client.ListDistributions(ctx, surveyID)
	if err != nil {
		return 0, fmt.Errorf("list distributions: %w", err)
	}

	deleted := 0
	for _, d := range dists {
		if dryRun {
			fmt.Fprintf(out, "would delete %s (%s, created %s)\n", d.ID, d.RequestType, d.CreatedDate.Format("2006-01-02"))
			continue
		}
		if err := client.DeleteDistribution(ctx, d.ID); err != nil {
			return deleted, fmt.Errorf("delete distribution %s: %w", d.ID, err)
		}
		deleted++
		fmt.Fprintf(out, "deleted %s\n", d.ID)
	}

	fmt.Fprintf(out, "%d of %d distributions deleted\n", deleted, len(dists))
	return deleted, nil
}

// warnStaleLinks reports unassigned links of the pool that belonged to the
// deleted distributions. They stay allocatable until removed from the store.
func warnStaleLinks(ctx context.Context, checker bufferChecker, pool personallinks.PoolID, out io.Writer) {
	_, unassigned, err := checker.BufferLow(ctx, pool)
	if err != nil {
		fmt.Fprintf(out, "warning: could not count stored links of %s: %v; unassigned links of deleted distributions are now dead\n", pool, err)
		return
	}
	if unassigned == 0 {
		return
	}
	fmt.Fprintf(out,
		"warning: %d unassigned links of %s are still stored and now point at deleted distributions; "+
			"delete rows with account_survey_id=%s and status=new before serving the survey again\n",
		unassigned, pool, pool)
}
