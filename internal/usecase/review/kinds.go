package review

import (
	"modqueue/internal/domain/reviewable"
	"modqueue/internal/ports"
)

const (
	KindFlaggedPost = "flagged_post"
	KindQueuedPost  = "queued_post"
	KindQueuedUser  = "queued_user"

	TargetTypePost = "post"
	TargetTypeUser = "user"

	DefaultMinPostLength = 20
)

// KindDeps are the collaborators the built-in kinds act through.
type KindDeps struct {
	Reviews       ports.ReviewableReadRepository
	Content       ports.ContentCreator
	Destroyer     ports.ActorDestroyer
	Approver      ports.ActorApprover
	MinPostLength int
}

// NewRegistry registers the built-in kinds the profile enables.
func NewRegistry(profile Profile, deps KindDeps) (*reviewable.Registry, error) {
	candidates := []reviewable.Kind{
		NewFlaggedPostKind(),
		NewQueuedPostKind(deps.Content, deps.Destroyer, deps.Reviews, deps.MinPostLength),
		NewQueuedUserKind(deps.Approver, deps.Destroyer),
	}

	registry, err := reviewable.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, kind := range candidates {
		if !profile.KindEnabled(kind.Name()) {
			continue
		}
		if err := registry.Register(kind); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
