package review

import (
	"context"
	"errors"

	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
)

// ActionsFor builds the actions guardian may perform on item right now.
func (s *Service) ActionsFor(ctx context.Context, item reviewable.Item, guardian reviewable.Guardian, args reviewable.Args) (*reviewable.Actions, error) {
	kind, err := s.kindFor(item)
	if err != nil {
		return nil, err
	}
	bc, err := s.buildContext(ctx, item, guardian, args)
	if err != nil {
		return nil, err
	}

	actions := reviewable.NewActions()
	kind.BuildActions(actions, bc)
	return actions, nil
}

// EditableFor builds the fields guardian may edit on item right now.
func (s *Service) EditableFor(ctx context.Context, item reviewable.Item, guardian reviewable.Guardian, args reviewable.Args) (*reviewable.EditableFields, error) {
	kind, err := s.kindFor(item)
	if err != nil {
		return nil, err
	}
	bc, err := s.buildContext(ctx, item, guardian, args)
	if err != nil {
		return nil, err
	}

	fields := reviewable.NewEditableFields()
	kind.BuildEditableFields(fields, bc)
	return fields, nil
}

func (s *Service) buildContext(ctx context.Context, item reviewable.Item, guardian reviewable.Guardian, args reviewable.Args) (reviewable.BuildContext, error) {
	if args == nil {
		args = reviewable.Args{}
	}
	bc := reviewable.BuildContext{Item: item, Guardian: guardian, Args: args}
	if s.actors == nil || item.CreatedByID == 0 {
		return bc, nil
	}

	createdBy, err := s.actors.GetActor(ctx, item.CreatedByID)
	if err != nil {
		if errors.Is(err, reviewable.ErrActorNotFound) {
			return bc, nil
		}
		return reviewable.BuildContext{}, errs.Wrap(err, "load reviewable creator")
	}
	bc.CreatedBy = &createdBy
	return bc, nil
}
