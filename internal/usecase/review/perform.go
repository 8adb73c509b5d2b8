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

type PerformInput struct {
	ReviewableID uint64
	PerformedBy  reviewable.Actor
	ActionID     string
	Args         reviewable.Args
	// Version gates the action; nil is for system callers and always wins.
	Version *int64
}

// Perform runs one action. The actor must be offered the action; the version
// bump, the handler, payload writes and the resulting transition share one
// unit of work, and events go out only after it commits.
func (s *Service) Perform(ctx context.Context, input PerformInput) (*reviewable.PerformResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	actionID := strings.TrimSpace(input.ActionID)
	item, err := s.repo.GetReviewable(ctx, input.ReviewableID)
	if err != nil {
		return nil, err
	}
	logCtx := logging.WithReviewable(ctx, item.ID, item.Kind)

	if input.Version != nil && *input.Version != item.Version {
		s.metrics.observeConflict("perform")
		s.metrics.observeAction(item.Kind, actionID, outcomeConflict)
		return nil, reviewable.ErrUpdateConflict
	}

	kind, err := s.kindFor(item)
	if err != nil {
		return nil, err
	}
	guardian := reviewable.NewGuardian(&input.PerformedBy)
	actions, err := s.ActionsFor(ctx, item, guardian, input.Args)
	if err != nil {
		return nil, err
	}
	handler := kind.Handlers()[actionID]
	if !actions.Has(actionID) || handler == nil {
		s.metrics.observeAction(item.Kind, actionID, outcomeInvalid)
		return nil, &reviewable.InvalidActionError{ActionID: actionID, Kind: item.Kind}
	}

	queue := &dispatchQueue{}
	var result *reviewable.PerformResult
	err = s.uow.WithTx(ctx, func(txCtx context.Context) error {
		version, err := s.repo.IncrementVersion(txCtx, item.ID, input.Version)
		if err != nil {
			return err
		}

		working := item.Clone()
		working.Version = version
		pc := reviewable.NewPerformContext(&working, input.PerformedBy, input.Args)

		out, err := handler(txCtx, pc)
		if err != nil {
			return err
		}
		if out == nil {
			return errs.Wrapf(errors.New("handler returned no result"), "perform %s", actionID)
		}

		if pc.PayloadChanged() {
			if err := s.repo.UpdateFields(txCtx, working); err != nil {
				return err
			}
		}
		for _, event := range pc.Events() {
			queue.event(event)
		}
		if out.Success && out.TransitionTo != nil {
			if err := s.transitionTx(txCtx, &working, *out.TransitionTo, input.PerformedBy.ID, queue); err != nil {
				return err
			}
		}

		out.ReviewableID = working.ID
		out.ActionID = actionID
		out.Version = working.Version
		result = out
		return nil
	})
	if err != nil {
		outcome := outcomeError
		if errors.Is(err, reviewable.ErrUpdateConflict) {
			outcome = outcomeConflict
			s.metrics.observeConflict("perform")
		}
		s.metrics.observeAction(item.Kind, actionID, outcome)
		logging.Warn(logCtx, "perform failed", slog.String("action", actionID), slog.Any("err", errs.Loggable(err)))
		return nil, err
	}

	s.flush(ctx, queue)
	outcome := outcomeSuccess
	if !result.Success {
		outcome = outcomeFailed
	}
	s.metrics.observeAction(item.Kind, actionID, outcome)
	logging.Info(
		logCtx,
		"reviewable action performed",
		slog.String("action", actionID),
		slog.Bool("success", result.Success),
		slog.Uint64("performed_by_id", input.PerformedBy.ID),
		slog.Int64("version", result.Version),
	)
	return result, nil
}

// PerformReviewable is the request-facing perform: the version is mandatory
// and the item must be visible to the performer.
func (s *Service) PerformReviewable(ctx context.Context, input PerformInput) (*reviewable.PerformResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if input.Version == nil {
		return nil, reviewable.ErrVersionRequired
	}
	if _, err := s.GetVisible(ctx, reviewable.NewGuardian(&input.PerformedBy), input.ReviewableID); err != nil {
		return nil, err
	}
	return s.Perform(ctx, input)
}

type TransitionInput struct {
	ReviewableID  uint64
	Status        reviewable.Status
	PerformedByID uint64
}

// TransitionTo moves an item to status outside of any action. It is meant for
// system callers and bumps the version unconditionally.
func (s *Service) TransitionTo(ctx context.Context, input TransitionInput) (reviewable.Item, error) {
	if err := s.ready(ctx); err != nil {
		return reviewable.Item{}, err
	}
	if !input.Status.Valid() {
		return reviewable.Item{}, reviewable.ErrInvalidStatus
	}

	queue := &dispatchQueue{}
	var item reviewable.Item
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		loaded, err := s.repo.GetReviewable(txCtx, input.ReviewableID)
		if err != nil {
			return err
		}
		version, err := s.repo.IncrementVersion(txCtx, loaded.ID, nil)
		if err != nil {
			return err
		}
		loaded.Version = version
		if err := s.transitionTx(txCtx, &loaded, input.Status, input.PerformedByID, queue); err != nil {
			return err
		}
		item = loaded
		return nil
	}); err != nil {
		return reviewable.Item{}, err
	}

	s.flush(ctx, queue)
	return item, nil
}

// transitionTx saves the new status, logs it, cascades pending scores and
// queues the transition event. The pending count is signalled only when the
// item leaves pending.
func (s *Service) transitionTx(ctx context.Context, item *reviewable.Item, status reviewable.Status, performedByID uint64, queue *dispatchQueue) error {
	wasPending := item.Status.IsPending()
	from := item.Status

	if err := s.repo.UpdateStatus(ctx, item.ID, status); err != nil {
		return err
	}
	item.Status = status

	if _, err := s.repo.AppendHistory(ctx, ports.HistoryCreate{
		ReviewableID: item.ID,
		Type:         reviewable.HistoryTransitioned,
		Status:       status,
		CreatedByID:  performedByID,
	}); err != nil {
		return err
	}

	queue.event(reviewable.Event{
		Name:         reviewable.EventReviewableTransitioned,
		ReviewableID: item.ID,
		Kind:         item.Kind,
		Status:       status,
		Data: map[string]any{
			"from":            from.String(),
			"to":              status.String(),
			"performed_by_id": performedByID,
		},
	})

	if scoreStatus, ok := reviewable.ScoreStatusFor(status); ok {
		if _, err := s.repo.CascadePendingScores(ctx, item.ID, scoreStatus); err != nil {
			return err
		}
	}

	if wasPending {
		queue.pendingChanged(item.ID)
	}
	s.metrics.observeTransition(item.Kind, status)
	return nil
}

type BulkPerformInput struct {
	Actor      reviewable.Actor
	ActionID   string
	Kind       string
	TargetType string
	TargetIDs  []uint64
	Args       reviewable.Args
}

// BulkPerformTargets performs actionID, unversioned, on every item of kind the
// actor can see for the given targets. Items that do not offer the action get
// a failed result instead of aborting the batch.
func (s *Service) BulkPerformTargets(ctx context.Context, input BulkPerformInput) ([]*reviewable.PerformResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if len(input.TargetIDs) == 0 {
		return nil, nil
	}

	items, err := s.repo.ListReviewables(ctx, ports.ReviewableFilter{
		Kind:       input.Kind,
		TargetType: input.TargetType,
		TargetIDs:  input.TargetIDs,
		Visibility: visibilityFor(reviewable.NewGuardian(&input.Actor)),
	})
	if err != nil {
		return nil, err
	}

	results := make([]*reviewable.PerformResult, 0, len(items))
	for _, item := range items {
		result, err := s.Perform(ctx, PerformInput{
			ReviewableID: item.ID,
			PerformedBy:  input.Actor,
			ActionID:     input.ActionID,
			Args:         input.Args,
		})
		if err != nil {
			var invalid *reviewable.InvalidActionError
			if errors.As(err, &invalid) {
				failed := reviewable.Failed(invalid.Error())
				failed.ReviewableID = item.ID
				failed.ActionID = input.ActionID
				results = append(results, failed)
				continue
			}
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
