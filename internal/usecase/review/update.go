package review

import (
	"context"
	"errors"
	"log/slog"

	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
	"modqueue/internal/ports"
)

type UpdateFieldsInput struct {
	ReviewableID  uint64
	Params        map[string]any
	PerformedByID uint64
	// Version gates the update; nil increments unconditionally.
	Version *int64
}

type UpdateResult struct {
	Saved   bool
	Item    reviewable.Item
	Changes reviewable.Changes
	Errors  reviewable.FieldErrors
}

// invalidEdit aborts the unit of work so a failed validation leaves no trace.
type invalidEdit struct {
	fields reviewable.FieldErrors
}

func (e *invalidEdit) Error() string { return "invalid edit" }

// UpdateFields merges params into the item. It trusts that the caller already
// checked params against the editable fields. A validation failure is
// reported in the result with Saved false and nothing persisted.
func (s *Service) UpdateFields(ctx context.Context, input UpdateFieldsInput) (UpdateResult, error) {
	if err := s.ready(ctx); err != nil {
		return UpdateResult{}, err
	}

	if len(input.Params) == 0 {
		item, err := s.repo.GetReviewable(ctx, input.ReviewableID)
		if err != nil {
			return UpdateResult{}, err
		}
		return UpdateResult{Saved: true, Item: item}, nil
	}

	var result UpdateResult
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		item, err := s.repo.GetReviewable(txCtx, input.ReviewableID)
		if err != nil {
			return err
		}

		working := item.Clone()
		changes, err := reviewable.ApplyEdit(&working, input.Params)
		if err != nil {
			if fields, ok := reviewable.AsValidation(err); ok {
				return &invalidEdit{fields: fields}
			}
			return err
		}

		if len(changes) == 0 {
			if input.Version != nil && *input.Version != item.Version {
				return reviewable.ErrUpdateConflict
			}
			result = UpdateResult{Saved: true, Item: item, Changes: changes}
			return nil
		}

		version, err := s.repo.IncrementVersion(txCtx, item.ID, input.Version)
		if err != nil {
			return err
		}

		kind, err := s.kindFor(working)
		if err != nil {
			return err
		}
		if validator, ok := kind.(reviewable.Validator); ok {
			if fields := validator.Validate(working); !fields.Empty() {
				return &invalidEdit{fields: fields}
			}
		}

		if err := s.repo.UpdateFields(txCtx, working); err != nil {
			return err
		}
		if _, err := s.repo.AppendHistory(txCtx, ports.HistoryCreate{
			ReviewableID: item.ID,
			Type:         reviewable.HistoryEdited,
			Status:       working.Status,
			CreatedByID:  input.PerformedByID,
			Edited:       changes,
		}); err != nil {
			return err
		}

		working.Version = version
		result = UpdateResult{Saved: true, Item: working, Changes: changes}
		return nil
	})

	var invalid *invalidEdit
	switch {
	case errors.As(err, &invalid):
		item, loadErr := s.repo.GetReviewable(ctx, input.ReviewableID)
		if loadErr != nil {
			return UpdateResult{}, loadErr
		}
		return UpdateResult{Saved: false, Item: item, Errors: invalid.fields}, nil
	case errors.Is(err, reviewable.ErrUpdateConflict):
		s.metrics.observeConflict("update")
		return UpdateResult{}, err
	case err != nil:
		return UpdateResult{}, err
	}

	if len(result.Changes) > 0 {
		logging.Info(
			logging.WithReviewable(ctx, result.Item.ID, result.Item.Kind),
			"reviewable edited",
			slog.Int("changes", len(result.Changes)),
			slog.Int64("version", result.Item.Version),
		)
	}
	return result, nil
}

type UpdateInput struct {
	ReviewableID uint64
	Actor        reviewable.Actor
	Params       map[string]any
	Version      *int64
}

// UpdateReviewable is the request-facing edit: the version is mandatory, the
// item must be visible, and every touched path must be editable by the actor.
func (s *Service) UpdateReviewable(ctx context.Context, input UpdateInput) (UpdateResult, error) {
	if err := s.ready(ctx); err != nil {
		return UpdateResult{}, err
	}
	if input.Version == nil {
		return UpdateResult{}, reviewable.ErrVersionRequired
	}

	guardian := reviewable.NewGuardian(&input.Actor)
	item, err := s.GetVisible(ctx, guardian, input.ReviewableID)
	if err != nil {
		return UpdateResult{}, err
	}

	editable, err := s.EditableFor(ctx, item, guardian, nil)
	if err != nil {
		return UpdateResult{}, err
	}
	if path, ok := editable.Permits(input.Params); !ok {
		return UpdateResult{}, errs.Wrapf(reviewable.ErrForbidden, "field %q is not editable", path)
	}

	return s.UpdateFields(ctx, UpdateFieldsInput{
		ReviewableID:  item.ID,
		Params:        input.Params,
		PerformedByID: input.Actor.ID,
		Version:       input.Version,
	})
}
