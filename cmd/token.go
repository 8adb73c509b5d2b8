package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"modqueue/internal/bootstrap"
	"modqueue/internal/errs"
	"modqueue/internal/usecase/review"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the review API",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *review.Service) error {
		actor, err := resolveActorFlag(cmd, app, svc)
		if err != nil {
			return err
		}
		tokens, err := app.Tokens()
		if err != nil {
			return err
		}
		token, err := tokens.Sign(actor.ID)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), token); err != nil {
			return errs.Wrap(err, "write token output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().Uint64("actor", 0, "User id the token authenticates")
	_ = tokenCmd.MarkFlagRequired("actor")
}
