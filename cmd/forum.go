package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"modqueue/internal/bootstrap"
	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
	"modqueue/internal/ports"
	"modqueue/internal/usecase/review"
)

var actorCmd = &cobra.Command{
	Use:   "actor",
	Short: "Manage local user accounts",
}

var actorCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, _ *review.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		var actor reviewable.Actor
		actor.ID, _ = cmd.Flags().GetUint64("id")
		actor.Username, _ = cmd.Flags().GetString("username")
		actor.Admin, _ = cmd.Flags().GetBool("admin")
		actor.Moderator, _ = cmd.Flags().GetBool("moderator")
		actor.Approved, _ = cmd.Flags().GetBool("approved")

		created, err := app.Forum.CreateActor(ctx, actor)
		if err != nil {
			logging.Error(ctx, "create actor failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "create actor")
		}
		groups, _ := cmd.Flags().GetUintSlice("group")
		for _, group := range groups {
			if err := app.Forum.AddGroupMember(ctx, uint64(group), created.ID); err != nil {
				return errs.Wrapf(err, "add actor %d to group %d", created.ID, group)
			}
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "created actor #%d %s admin=%t moderator=%t groups=%v\n", created.ID, created.Username, created.Admin, created.Moderator, groups); err != nil {
			return errs.Wrap(err, "write actor output")
		}
		return nil
	}),
}

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Manage local posts",
}

var postCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a post, opening a topic unless --topic is set",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, _ *review.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		var spec ports.ContentSpec
		spec.CreatedByID, _ = cmd.Flags().GetUint64("author")
		spec.Title, _ = cmd.Flags().GetString("title")
		spec.Raw, _ = cmd.Flags().GetString("raw")
		spec.CategoryID = optionalID(cmd, "category")
		spec.TopicID = optionalID(cmd, "topic")

		ref, err := app.Forum.CreateContent(ctx, spec)
		if err != nil {
			logging.Error(ctx, "create post failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "create post")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "created post #%d in topic #%d\n", ref.PostID, ref.TopicID); err != nil {
			return errs.Wrap(err, "write post output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(actorCmd, postCmd)
	actorCmd.AddCommand(actorCreateCmd)
	postCmd.AddCommand(postCreateCmd)

	actorCreateCmd.Flags().Uint64("id", 0, "Explicit user id (default: next id)")
	actorCreateCmd.Flags().String("username", "", "Username")
	actorCreateCmd.Flags().Bool("admin", false, "Grant admin")
	actorCreateCmd.Flags().Bool("moderator", false, "Grant moderator")
	actorCreateCmd.Flags().Bool("approved", true, "Mark the account approved")
	actorCreateCmd.Flags().UintSlice("group", nil, "Group ids to join")
	_ = actorCreateCmd.MarkFlagRequired("username")

	postCreateCmd.Flags().Uint64("author", 0, "Author user id")
	postCreateCmd.Flags().String("title", "", "Topic title (new topics only)")
	postCreateCmd.Flags().String("raw", "", "Post body")
	postCreateCmd.Flags().Uint64("category", 0, "Category id")
	postCreateCmd.Flags().Uint64("topic", 0, "Reply in this topic")
	_ = postCreateCmd.MarkFlagRequired("author")
	_ = postCreateCmd.MarkFlagRequired("raw")
}
