package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"modqueue/internal/bootstrap"
	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
	"modqueue/internal/usecase/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Inspect and act on the moderation review queue",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued items visible to an actor",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *review.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		actor, err := resolveActorFlag(cmd, app, svc)
		if err != nil {
			return err
		}
		input := review.ListInput{Actor: &actor}
		input.Kind, _ = cmd.Flags().GetString("type")
		input.Limit, _ = cmd.Flags().GetInt("limit")
		if raw, _ := cmd.Flags().GetString("status"); raw != "" {
			status, err := reviewable.ParseStatus(raw)
			if err != nil {
				return err
			}
			input.Status = &status
		}

		entries, err := svc.List(ctx, input)
		if err != nil {
			logging.Error(ctx, "list reviewables failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list reviewables")
		}

		views := make([]reviewableView, 0, len(entries))
		for _, entry := range entries {
			views = append(views, newReviewableView(entry))
		}
		output, _ := cmd.Flags().GetString("output")
		return writeOutput(cmd.OutOrStdout(), output, views, func(w io.Writer) error {
			if len(views) == 0 {
				_, err := fmt.Fprintln(w, "no reviewables")
				return err
			}
			for _, view := range views {
				if err := writeReviewableLine(w, view); err != nil {
					return errs.Wrap(err, "write list output")
				}
			}
			return nil
		})
	}),
}

var reviewShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show one item with its scores and history",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *review.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		actor, err := resolveActorFlag(cmd, app, svc)
		if err != nil {
			return err
		}
		id, _ := cmd.Flags().GetUint64("id")
		entry, err := svc.Describe(ctx, actor, id)
		if err != nil {
			return errs.Wrapf(err, "describe reviewable %d", id)
		}
		scores, err := svc.Scores(ctx, id)
		if err != nil {
			return err
		}
		history, err := svc.History(ctx, id)
		if err != nil {
			return err
		}

		view := newReviewableView(entry)
		view.Scores = newScoreViews(scores)
		view.History = newHistoryViews(history)

		output, _ := cmd.Flags().GetString("output")
		return writeOutput(cmd.OutOrStdout(), output, view, func(w io.Writer) error {
			if err := writeReviewableLine(w, view); err != nil {
				return err
			}
			for _, score := range view.Scores {
				if _, err := fmt.Fprintf(w, "  score reviewer=%d type=%s status=%s weight=%.1f\n", score.ReviewerID, score.ScoreType, score.Status, score.Weight); err != nil {
					return err
				}
			}
			for _, entry := range view.History {
				if _, err := fmt.Fprintf(w, "  %s %s by=%d at=%s %s\n", entry.Type, entry.Status, entry.CreatedByID, entry.CreatedAt, strings.Join(entry.Edited, ",")); err != nil {
					return err
				}
			}
			return nil
		})
	}),
}

var reviewCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Queue a new item for review",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *review.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		input, err := createInputFromFlags(cmd)
		if err != nil {
			return err
		}

		reuse, _ := cmd.Flags().GetBool("reuse")
		var item reviewable.Item
		if reuse {
			item, err = svc.NeedsReview(ctx, input)
		} else {
			item, err = svc.Create(ctx, input)
		}
		if err != nil {
			logging.Error(ctx, "create reviewable failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "create reviewable")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "queued reviewable #%d type=%s version=%d\n", item.ID, item.Kind, item.Version); err != nil {
			return errs.Wrap(err, "write create output")
		}
		return nil
	}),
}

var reviewFlagCmd = &cobra.Command{
	Use:   "flag",
	Short: "Flag a post and add the flagger's score",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *review.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		postID, _ := cmd.Flags().GetUint64("post")
		by, _ := cmd.Flags().GetUint64("by")
		scoreType, _ := cmd.Flags().GetString("score-type")

		result, err := svc.Flag(ctx, review.FlagInput{PostID: postID, FlaggedByID: by, ScoreType: scoreType})
		if err != nil {
			logging.Error(ctx, "flag post failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "flag post")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "flagged post %d: reviewable #%d score=%.1f\n", postID, result.Item.ID, result.Item.Score); err != nil {
			return errs.Wrap(err, "write flag output")
		}
		return nil
	}),
}

var reviewUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Edit the editable fields of an item",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *review.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		actor, err := resolveActorFlag(cmd, app, svc)
		if err != nil {
			return err
		}
		id, _ := cmd.Flags().GetUint64("id")
		pairs, _ := cmd.Flags().GetStringArray("set")
		params, err := parseAssignments(pairs)
		if err != nil {
			return err
		}

		result, err := svc.UpdateReviewable(ctx, review.UpdateInput{
			ReviewableID: id,
			Actor:        actor,
			Params:       params,
			Version:      versionFlag(cmd),
		})
		if err != nil {
			return errs.Wrapf(err, "update reviewable %d", id)
		}
		if !result.Saved {
			return fmt.Errorf("reviewable %d not saved: %s", id, strings.Join(result.Errors.Messages(), "; "))
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "updated reviewable #%d version=%d changes=%d\n", id, result.Item.Version, len(result.Changes)); err != nil {
			return errs.Wrap(err, "write update output")
		}
		return nil
	}),
}

var reviewPerformCmd = &cobra.Command{
	Use:   "perform",
	Short: "Perform an action on an item",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *review.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		actor, err := resolveActorFlag(cmd, app, svc)
		if err != nil {
			return err
		}
		id, _ := cmd.Flags().GetUint64("id")
		action, _ := cmd.Flags().GetString("action")
		pairs, _ := cmd.Flags().GetStringArray("arg")
		args, err := parseAssignments(pairs)
		if err != nil {
			return err
		}

		result, err := svc.PerformReviewable(ctx, review.PerformInput{
			ReviewableID: id,
			PerformedBy:  actor,
			ActionID:     action,
			Args:         reviewable.Args(args),
			Version:      versionFlag(cmd),
		})
		if err != nil {
			return errs.Wrapf(err, "perform %s on reviewable %d", action, id)
		}
		if !result.Success {
			return fmt.Errorf("perform %s on reviewable %d failed: %s", action, id, strings.Join(result.Errors, "; "))
		}

		output, _ := cmd.Flags().GetString("output")
		return writeOutput(cmd.OutOrStdout(), output, result, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "performed %s on reviewable #%d version=%d removed=%v\n", action, id, result.Version, result.RemoveReviewableIDs)
			return err
		})
	}),
}

var reviewTransitionCmd = &cobra.Command{
	Use:   "transition",
	Short: "Move an item to a status without running an action",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *review.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		actor, err := resolveActorFlag(cmd, app, svc)
		if err != nil {
			return err
		}
		if !actor.IsStaff() {
			return errs.Wrap(reviewable.ErrForbidden, "transition requires a staff actor")
		}
		id, _ := cmd.Flags().GetUint64("id")
		raw, _ := cmd.Flags().GetString("status")
		status, err := reviewable.ParseStatus(raw)
		if err != nil {
			return err
		}

		item, err := svc.TransitionTo(ctx, review.TransitionInput{ReviewableID: id, Status: status, PerformedByID: actor.ID})
		if err != nil {
			return errs.Wrapf(err, "transition reviewable %d", id)
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "reviewable #%d is %s version=%d\n", item.ID, item.Status, item.Version); err != nil {
			return errs.Wrap(err, "write transition output")
		}
		return nil
	}),
}

var reviewSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reject pending items older than the configured age",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *review.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		olderThan := review.AutoHandleAge(app.Config.Review.AutoHandleQueuedAge)
		if cmd.Flags().Changed("older-than") {
			olderThan, _ = cmd.Flags().GetDuration("older-than")
		}
		result, err := svc.SweepStale(ctx, olderThan)
		if _, writeErr := fmt.Fprintf(cmd.OutOrStdout(), "swept older-than=%s rejected=%d skipped=%d\n", olderThan, len(result.Rejected), len(result.Skipped)); writeErr != nil {
			return errs.Wrap(writeErr, "write sweep output")
		}
		if err != nil {
			return errs.Wrap(err, "sweep stale reviewables")
		}
		return nil
	}),
}

var reviewBulkCmd = &cobra.Command{
	Use:   "bulk-perform",
	Short: "Perform an action on every item of a kind for the given targets",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *review.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		actor, err := resolveActorFlag(cmd, app, svc)
		if err != nil {
			return err
		}
		input := review.BulkPerformInput{Actor: actor}
		input.ActionID, _ = cmd.Flags().GetString("action")
		input.Kind, _ = cmd.Flags().GetString("type")
		input.TargetType, _ = cmd.Flags().GetString("target-type")
		targetIDs, _ := cmd.Flags().GetUintSlice("target-id")
		for _, id := range targetIDs {
			input.TargetIDs = append(input.TargetIDs, uint64(id))
		}

		results, err := svc.BulkPerformTargets(ctx, input)
		if err != nil {
			return errs.Wrap(err, "bulk perform")
		}
		for _, result := range results {
			status := "ok"
			if !result.Success {
				status = "failed: " + strings.Join(result.Errors, "; ")
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "reviewable #%d %s %s\n", result.ReviewableID, input.ActionID, status); err != nil {
				return errs.Wrap(err, "write bulk output")
			}
		}
		return nil
	}),
}

type actorResolver interface {
	ResolveActor(ctx context.Context, id uint64) (reviewable.Actor, error)
}

// resolveActorFlag loads --actor, falling back to the system actor.
func resolveActorFlag(cmd *cobra.Command, app *bootstrap.App, actors actorResolver) (reviewable.Actor, error) {
	id, _ := cmd.Flags().GetUint64("actor")
	if id == 0 {
		id = app.Config.Review.SystemActorID
	}
	actor, err := actors.ResolveActor(cmd.Context(), id)
	if err != nil {
		return reviewable.Actor{}, errs.Wrapf(err, "resolve actor %d", id)
	}
	return actor, nil
}

func versionFlag(cmd *cobra.Command) *int64 {
	if !cmd.Flags().Changed("version") {
		return nil
	}
	version, _ := cmd.Flags().GetInt64("version")
	return &version
}

func createInputFromFlags(cmd *cobra.Command) (review.CreateInput, error) {
	var input review.CreateInput
	input.Kind, _ = cmd.Flags().GetString("type")
	input.CreatedByID, _ = cmd.Flags().GetUint64("created-by")
	input.ReviewableByModerator, _ = cmd.Flags().GetBool("moderator")

	targetType, _ := cmd.Flags().GetString("target-type")
	targetID, _ := cmd.Flags().GetUint64("target-id")
	if targetType != "" || targetID != 0 {
		if targetType == "" || targetID == 0 {
			return review.CreateInput{}, errors.New("target-type and target-id must be set together")
		}
		input.Target = &reviewable.TargetRef{Type: targetType, ID: targetID}
	}
	input.TargetCreatedByID = optionalID(cmd, "target-owner")
	input.ReviewableByGroupID = optionalID(cmd, "group")
	input.CategoryID = optionalID(cmd, "category")
	input.TopicID = optionalID(cmd, "topic")

	payload := reviewable.Payload{}
	if raw, _ := cmd.Flags().GetString("payload-json"); strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return review.CreateInput{}, errs.Wrap(err, "parse payload-json")
		}
	}
	pairs, _ := cmd.Flags().GetStringArray("payload")
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return review.CreateInput{}, fmt.Errorf("invalid payload entry %q (want key=value)", pair)
		}
		payload[strings.TrimSpace(key)] = parseValue(value)
	}
	if len(payload) > 0 {
		input.Payload = payload
	}
	return input, nil
}

func optionalID(cmd *cobra.Command, name string) *uint64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	id, _ := cmd.Flags().GetUint64(name)
	return &id
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(
		reviewListCmd,
		reviewShowCmd,
		reviewCreateCmd,
		reviewFlagCmd,
		reviewUpdateCmd,
		reviewPerformCmd,
		reviewTransitionCmd,
		reviewSweepCmd,
		reviewBulkCmd,
	)

	for _, c := range []*cobra.Command{reviewListCmd, reviewShowCmd, reviewUpdateCmd, reviewPerformCmd, reviewTransitionCmd, reviewBulkCmd} {
		c.Flags().Uint64("actor", 0, "Acting user id (default: review.system_actor_id)")
	}
	for _, c := range []*cobra.Command{reviewListCmd, reviewShowCmd, reviewPerformCmd} {
		c.Flags().StringP("output", "o", "text", "Output format (text|yaml|json)")
	}
	for _, c := range []*cobra.Command{reviewShowCmd, reviewUpdateCmd, reviewPerformCmd, reviewTransitionCmd} {
		c.Flags().Uint64("id", 0, "Reviewable id")
		_ = c.MarkFlagRequired("id")
	}
	for _, c := range []*cobra.Command{reviewUpdateCmd, reviewPerformCmd} {
		c.Flags().Int64("version", 0, "Version last seen by the caller (required)")
	}

	reviewListCmd.Flags().String("status", "pending", "Status filter (pending|approved|rejected|ignored|deleted)")
	reviewListCmd.Flags().String("type", "", "Optional kind filter")
	reviewListCmd.Flags().Int("limit", 50, "Maximum rows")

	reviewCreateCmd.Flags().String("type", "", "Reviewable kind (flagged_post|queued_post|queued_user)")
	reviewCreateCmd.Flags().Uint64("created-by", 0, "Creator user id")
	reviewCreateCmd.Flags().String("target-type", "", "Target type (post|user)")
	reviewCreateCmd.Flags().Uint64("target-id", 0, "Target id")
	reviewCreateCmd.Flags().Uint64("target-owner", 0, "Owner of the target")
	reviewCreateCmd.Flags().Bool("moderator", true, "Reviewable by moderators")
	reviewCreateCmd.Flags().Uint64("group", 0, "Reviewable by this group")
	reviewCreateCmd.Flags().Uint64("category", 0, "Category id")
	reviewCreateCmd.Flags().Uint64("topic", 0, "Topic id")
	reviewCreateCmd.Flags().StringArray("payload", nil, "Payload entry key=value (repeatable)")
	reviewCreateCmd.Flags().String("payload-json", "", "Payload as a JSON object")
	reviewCreateCmd.Flags().Bool("reuse", false, "Reopen an existing item for the same target instead of failing")
	_ = reviewCreateCmd.MarkFlagRequired("type")
	_ = reviewCreateCmd.MarkFlagRequired("created-by")

	reviewFlagCmd.Flags().Uint64("post", 0, "Post id")
	reviewFlagCmd.Flags().Uint64("by", 0, "Flagging user id")
	reviewFlagCmd.Flags().String("score-type", "spam", "Score type from the review profile")
	_ = reviewFlagCmd.MarkFlagRequired("post")
	_ = reviewFlagCmd.MarkFlagRequired("by")

	reviewUpdateCmd.Flags().StringArray("set", nil, "Field assignment path=value, e.g. payload.raw=... (repeatable)")

	reviewPerformCmd.Flags().String("action", "", "Action id")
	reviewPerformCmd.Flags().StringArray("arg", nil, "Action argument key=value (repeatable)")
	_ = reviewPerformCmd.MarkFlagRequired("action")

	reviewTransitionCmd.Flags().String("status", "", "Target status")
	_ = reviewTransitionCmd.MarkFlagRequired("status")

	reviewSweepCmd.Flags().Duration("older-than", 0, "Override review.auto_handle_queued_age")

	reviewBulkCmd.Flags().String("action", "", "Action id")
	reviewBulkCmd.Flags().String("type", "", "Reviewable kind")
	reviewBulkCmd.Flags().String("target-type", "", "Target type")
	reviewBulkCmd.Flags().UintSlice("target-id", nil, "Target ids")
	_ = reviewBulkCmd.MarkFlagRequired("action")
	_ = reviewBulkCmd.MarkFlagRequired("type")
	_ = reviewBulkCmd.MarkFlagRequired("target-type")
}
