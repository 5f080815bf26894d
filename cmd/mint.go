package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/THIS-Institute/thiscovery-surveys/internal/bootstrap"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
)

func newMintCommand() *cobra.Command {
	var req personallinks.ReplenishRequest

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a batch of personal links for a pool and wait for it to be stored",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(app *bootstrap.App) error {
				req.ContactListID = app.Accounts.ContactList(req.Account, req.ContactListID)
				if err := app.Validator.ValidateReplenish(req); err != nil {
					return err
				}

				links, err := app.Replenisher.Replenish(cmd.Context(), req.Account, req.SurveyID, req.ContactListID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Minted %d links for %s\n", len(links), req.PoolID())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Account, "account", "", "survey platform account")
	cmd.Flags().StringVar(&req.SurveyID, "survey", "", "survey id")
	cmd.Flags().StringVar(&req.ContactListID, "contact-list", "", "contact list id (default: the account default)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("survey")
	return cmd
}
