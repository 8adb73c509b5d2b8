package review

import (
	"context"
	"errors"

	"modqueue/internal/domain/reviewable"
	"modqueue/internal/ports"
)

type ListInput struct {
	Actor *reviewable.Actor
	// Status defaults to pending.
	Status *reviewable.Status
	Kind   string
	Limit  int
}

// ListEntry is one queue row with what the viewer may do to it.
type ListEntry struct {
	Item           reviewable.Item
	Actions        []reviewable.Action
	EditableFields []reviewable.EditableField
	Serialized     map[string]any
}

// List returns the items input.Actor can see, highest score first, then most
// recent. An absent actor sees nothing.
func (s *Service) List(ctx context.Context, input ListInput) ([]ListEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if input.Actor == nil {
		return nil, nil
	}

	status := reviewable.StatusPending
	if input.Status != nil {
		status = *input.Status
	}
	guardian := reviewable.NewGuardian(input.Actor)

	items, err := s.repo.ListReviewables(ctx, ports.ReviewableFilter{
		Status:     &status,
		Kind:       input.Kind,
		Visibility: visibilityFor(guardian),
		Limit:      input.Limit,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]ListEntry, 0, len(items))
	for _, item := range items {
		entry, err := s.describe(ctx, item, guardian)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Describe returns a visible item with its capabilities and wire shape.
func (s *Service) Describe(ctx context.Context, actor reviewable.Actor, reviewableID uint64) (ListEntry, error) {
	if err := s.ready(ctx); err != nil {
		return ListEntry{}, err
	}

	guardian := reviewable.NewGuardian(&actor)
	item, err := s.GetVisible(ctx, guardian, reviewableID)
	if err != nil {
		return ListEntry{}, err
	}
	return s.describe(ctx, item, guardian)
}

func (s *Service) describe(ctx context.Context, item reviewable.Item, guardian reviewable.Guardian) (ListEntry, error) {
	kind, err := s.kindFor(item)
	if err != nil {
		return ListEntry{}, err
	}
	actions, err := s.ActionsFor(ctx, item, guardian, nil)
	if err != nil {
		return ListEntry{}, err
	}
	editable, err := s.EditableFor(ctx, item, guardian, nil)
	if err != nil {
		return ListEntry{}, err
	}

	return ListEntry{
		Item:           item,
		Actions:        actions.List(),
		EditableFields: editable.List(),
		Serialized:     kind.Serialize(item),
	}, nil
}

func (s *Service) Get(ctx context.Context, reviewableID uint64) (reviewable.Item, error) {
	if err := s.ready(ctx); err != nil {
		return reviewable.Item{}, err
	}
	return s.repo.GetReviewable(ctx, reviewableID)
}

// GetVisible loads an item and hides it behind ErrNotFound when guardian
// cannot see it.
func (s *Service) GetVisible(ctx context.Context, guardian reviewable.Guardian, reviewableID uint64) (reviewable.Item, error) {
	item, err := s.Get(ctx, reviewableID)
	if err != nil {
		return reviewable.Item{}, err
	}
	if !guardian.CanSee(item) {
		return reviewable.Item{}, reviewable.ErrNotFound
	}
	return item, nil
}

// PendingCount is the number of pending items actor can see.
func (s *Service) PendingCount(ctx context.Context, actor *reviewable.Actor) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if actor == nil {
		return 0, nil
	}

	pending := reviewable.StatusPending
	return s.repo.CountReviewables(ctx, ports.ReviewableFilter{
		Status:     &pending,
		Visibility: visibilityFor(reviewable.NewGuardian(actor)),
	})
}

// PendingCountFor resolves actorID first; an unknown actor counts zero.
func (s *Service) PendingCountFor(ctx context.Context, actorID uint64) (int64, error) {
	actor, err := s.ResolveActor(ctx, actorID)
	if err != nil {
		if errors.Is(err, reviewable.ErrActorNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return s.PendingCount(ctx, &actor)
}

func visibilityFor(guardian reviewable.Guardian) *ports.Visibility {
	return &ports.Visibility{
		All:      guardian.IsAdmin(),
		Staff:    guardian.IsStaff(),
		GroupIDs: guardian.GroupIDs(),
	}
}
