package cmd

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"modqueue/internal/bootstrap"
	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
	"modqueue/internal/usecase/review"
	"modqueue/internal/usecase/reviewconsole"
)

var consoleReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Start the moderator review console",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *review.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		actor, err := resolveActorFlag(cmd, app, svc)
		if err != nil {
			return err
		}
		kind, _ := cmd.Flags().GetString("type")
		rawStatus, _ := cmd.Flags().GetString("status")
		status, err := reviewable.ParseStatus(rawStatus)
		if err != nil {
			return err
		}
		refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")
		if refreshInterval <= 0 {
			refreshInterval = 5 * time.Second
		}

		model := reviewconsole.NewReviewModel(ctx, svc, reviewconsole.Options{
			Actor:           actor,
			Kind:            kind,
			Status:          status,
			RefreshInterval: refreshInterval,
		})

		program := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return errs.Wrap(err, "run review console")
		}
		return nil
	}),
}

func init() {
	consoleCmd.AddCommand(consoleReviewCmd)
	consoleReviewCmd.Flags().Uint64("actor", 0, "Acting moderator id (default: review.system_actor_id)")
	consoleReviewCmd.Flags().String("type", "", "Optional kind filter")
	consoleReviewCmd.Flags().String("status", "pending", "Status filter (pending|approved|rejected|ignored|deleted)")
	consoleReviewCmd.Flags().Duration("refresh-interval", 5*time.Second, "Auto refresh interval")
}
