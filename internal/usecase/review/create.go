package review

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
	"modqueue/internal/ports"
)

type CreateInput struct {
	Kind                  string
	CreatedByID           uint64
	Target                *reviewable.TargetRef
	TargetCreatedByID     *uint64
	ReviewableByModerator bool
	ReviewableByGroupID   *uint64
	CategoryID            *uint64
	TopicID               *uint64
	Payload               reviewable.Payload
}

// Create inserts a pending item. A (kind, target) pair that is already queued
// is rejected; use NeedsReview to reopen it instead.
func (s *Service) Create(ctx context.Context, input CreateInput) (reviewable.Item, error) {
	if err := s.ready(ctx); err != nil {
		return reviewable.Item{}, err
	}
	if err := s.validateCreate(input); err != nil {
		return reviewable.Item{}, err
	}

	queue := &dispatchQueue{}
	var created reviewable.Item
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		item, inserted, err := s.insertTx(txCtx, input, queue)
		if err != nil {
			return err
		}
		if !inserted {
			return reviewable.NewValidationError("target", "is already queued for review")
		}
		created = item
		return nil
	}); err != nil {
		return reviewable.Item{}, err
	}

	s.flush(ctx, queue)
	logging.Info(logging.WithReviewable(ctx, created.ID, created.Kind), "reviewable created")
	return created, nil
}

// NeedsReview creates the item, or when (kind, target) already exists resets
// that row to pending and reuses it.
func (s *Service) NeedsReview(ctx context.Context, input CreateInput) (reviewable.Item, error) {
	if err := s.ready(ctx); err != nil {
		return reviewable.Item{}, err
	}
	if err := s.validateCreate(input); err != nil {
		return reviewable.Item{}, err
	}

	queue := &dispatchQueue{}
	var item reviewable.Item
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		out, err := s.needsReviewTx(txCtx, input, queue)
		if err != nil {
			return err
		}
		item = out
		return nil
	}); err != nil {
		return reviewable.Item{}, err
	}

	s.flush(ctx, queue)
	return item, nil
}

func (s *Service) validateCreate(input CreateInput) error {
	invalid := reviewable.FieldErrors{}
	kind := strings.TrimSpace(input.Kind)
	if kind == "" {
		invalid.Add("type", "can't be blank")
	} else if _, ok := s.registry.Lookup(kind); !ok {
		invalid.Add("type", "is not a registered kind")
	}
	if input.CreatedByID == 0 {
		invalid.Add("created_by_id", "can't be blank")
	}
	if input.Target != nil && strings.TrimSpace(input.Target.Type) == "" {
		invalid.Add("target_type", "can't be blank")
	}
	if !invalid.Empty() {
		return &reviewable.ValidationError{Fields: invalid}
	}
	return nil
}

func (s *Service) insertTx(ctx context.Context, input CreateInput, queue *dispatchQueue) (reviewable.Item, bool, error) {
	item, inserted, err := s.repo.InsertReviewable(ctx, ports.ReviewableCreate{
		Kind:                  strings.TrimSpace(input.Kind),
		Status:                reviewable.StatusPending,
		CreatedByID:           input.CreatedByID,
		Target:                input.Target,
		TargetCreatedByID:     input.TargetCreatedByID,
		ReviewableByModerator: input.ReviewableByModerator,
		ReviewableByGroupID:   input.ReviewableByGroupID,
		CategoryID:            input.CategoryID,
		TopicID:               input.TopicID,
		Payload:               input.Payload,
	})
	if err != nil || !inserted {
		return reviewable.Item{}, inserted, err
	}

	if _, err := s.repo.AppendHistory(ctx, ports.HistoryCreate{
		ReviewableID: item.ID,
		Type:         reviewable.HistoryCreated,
		Status:       item.Status,
		CreatedByID:  input.CreatedByID,
	}); err != nil {
		return reviewable.Item{}, false, err
	}

	queue.event(reviewable.Event{
		Name:         reviewable.EventReviewableCreated,
		ReviewableID: item.ID,
		Kind:         item.Kind,
		Status:       item.Status,
		Data:         map[string]any{"created_by_id": item.CreatedByID},
	})
	if kind, ok := s.registry.Lookup(item.Kind); ok {
		if hook, ok := kind.(reviewable.CreateHook); ok {
			for _, event := range hook.OnCreate(item) {
				queue.event(event)
			}
		}
	}
	if item.Status.IsPending() {
		queue.pendingChanged(item.ID)
	}
	s.metrics.observeCreated(item.Kind)
	return item, true, nil
}

func (s *Service) needsReviewTx(ctx context.Context, input CreateInput, queue *dispatchQueue) (reviewable.Item, error) {
	item, inserted, err := s.insertTx(ctx, input, queue)
	if err != nil {
		return reviewable.Item{}, err
	}
	if inserted {
		return item, nil
	}
	if input.Target == nil {
		return reviewable.Item{}, errors.New("reviewable insert conflicted without a target")
	}

	existing, err := s.repo.FindByTarget(ctx, strings.TrimSpace(input.Kind), *input.Target)
	if err != nil {
		return reviewable.Item{}, errs.Wrap(err, "load reused reviewable")
	}
	wasPending := existing.Status.IsPending()

	version, err := s.repo.IncrementVersion(ctx, existing.ID, nil)
	if err != nil {
		return reviewable.Item{}, err
	}
	if err := s.repo.UpdateStatus(ctx, existing.ID, reviewable.StatusPending); err != nil {
		return reviewable.Item{}, err
	}
	if _, err := s.repo.AppendHistory(ctx, ports.HistoryCreate{
		ReviewableID: existing.ID,
		Type:         reviewable.HistoryTransitioned,
		Status:       reviewable.StatusPending,
		CreatedByID:  input.CreatedByID,
	}); err != nil {
		return reviewable.Item{}, err
	}

	existing.Version = version
	existing.Status = reviewable.StatusPending
	if !wasPending {
		queue.event(reviewable.Event{
			Name:         reviewable.EventReviewableTransitioned,
			ReviewableID: existing.ID,
			Kind:         existing.Kind,
			Status:       reviewable.StatusPending,
			Data:         map[string]any{"reopened": true, "performed_by_id": input.CreatedByID},
		})
		queue.pendingChanged(existing.ID)
	}

	logging.Info(
		logging.WithReviewable(ctx, existing.ID, existing.Kind),
		"reviewable reused",
		slog.Bool("was_pending", wasPending),
		slog.Int64("version", version),
	)
	return existing, nil
}

type FlagInput struct {
	PostID      uint64
	FlaggedByID uint64
	ScoreType   string
}

type FlagResult struct {
	Item  reviewable.Item
	Score reviewable.Score
}

// Flag queues a post for moderator review and records the flagger's score.
func (s *Service) Flag(ctx context.Context, input FlagInput) (FlagResult, error) {
	if err := s.ready(ctx); err != nil {
		return FlagResult{}, err
	}
	if s.posts == nil {
		return FlagResult{}, errors.New("post directory is required")
	}
	if _, ok := s.registry.Lookup(KindFlaggedPost); !ok {
		return FlagResult{}, errs.Wrapf(reviewable.ErrUnknownKind, "kind %q", KindFlaggedPost)
	}

	scoreType := strings.TrimSpace(input.ScoreType)
	weight, ok := s.profile.Weight(scoreType)
	if !ok {
		return FlagResult{}, reviewable.NewValidationError("score_type", "is not a known score type")
	}
	if input.FlaggedByID == 0 {
		return FlagResult{}, reviewable.NewValidationError("created_by_id", "can't be blank")
	}

	post, err := s.posts.GetPost(ctx, input.PostID)
	if err != nil {
		if errors.Is(err, ports.ErrPostNotFound) {
			return FlagResult{}, reviewable.NewValidationError("post_id", "does not exist")
		}
		return FlagResult{}, err
	}

	author := post.AuthorID
	queue := &dispatchQueue{}
	var result FlagResult
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		item, err := s.needsReviewTx(txCtx, CreateInput{
			Kind:                  KindFlaggedPost,
			CreatedByID:           input.FlaggedByID,
			Target:                &reviewable.TargetRef{Type: TargetTypePost, ID: post.ID},
			TargetCreatedByID:     &author,
			ReviewableByModerator: true,
			CategoryID:            post.CategoryID,
			TopicID:               &post.TopicID,
		}, queue)
		if err != nil {
			return err
		}

		score, err := s.repo.AddScore(txCtx, ports.ScoreCreate{
			ReviewableID: item.ID,
			ReviewerID:   input.FlaggedByID,
			ScoreType:    scoreType,
			Weight:       weight,
		})
		if err != nil {
			return err
		}
		total, err := s.repo.RecalculateScore(txCtx, item.ID)
		if err != nil {
			return err
		}

		item.Score = total
		result = FlagResult{Item: item, Score: score}
		return nil
	}); err != nil {
		return FlagResult{}, err
	}

	s.flush(ctx, queue)
	logging.Info(
		logging.WithReviewable(ctx, result.Item.ID, result.Item.Kind),
		"post flagged",
		slog.Uint64("post_id", post.ID),
		slog.String("score_type", scoreType),
		slog.Float64("score", result.Item.Score),
	)
	return result, nil
}
