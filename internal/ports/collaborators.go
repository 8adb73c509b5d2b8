package ports

import (
	"context"
	"errors"
	"time"

	"modqueue/internal/domain/reviewable"
)

var ErrPostNotFound = errors.New("post not found")

// ActorDirectory resolves accounts for permission checks and notifications.
type ActorDirectory interface {
	GetActor(ctx context.Context, id uint64) (reviewable.Actor, error)
	ListStaff(ctx context.Context) ([]reviewable.Actor, error)
	ListGroupMembers(ctx context.Context, groupID uint64) ([]reviewable.Actor, error)
}

type DestroyActorOptions struct {
	PerformedByID   uint64
	Context         string
	DeletePosts     bool
	DeleteAsSpammer bool
}

type ActorDestroyer interface {
	DestroyActor(ctx context.Context, actorID uint64, options DestroyActorOptions) error
}

type ActorApprover interface {
	ApproveActor(ctx context.Context, actorID uint64, approvedByID uint64) error
}

// ContentSpec is what a queued post turns into once approved. A nil TopicID
// means a new topic is created from Title and CategoryID.
type ContentSpec struct {
	CreatedByID       uint64
	Raw               string
	Title             string
	Tags              []string
	CategoryID        *uint64
	TopicID           *uint64
	ReplyToPostNumber *int
	Extra             map[string]any
}

type ContentRef struct {
	PostID       uint64
	TopicID      uint64
	CreatedTopic bool
}

// ContentCreator materializes content; failures are *reviewable.ValidationError.
type ContentCreator interface {
	CreateContent(ctx context.Context, spec ContentSpec) (ContentRef, error)
}

type PostRef struct {
	ID         uint64
	TopicID    uint64
	CategoryID *uint64
	AuthorID   uint64
}

type PostDirectory interface {
	GetPost(ctx context.Context, id uint64) (PostRef, error)
}

// Event is the envelope handed to the bus.
type Event struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	ReviewableID uint64         `json:"reviewable_id,omitempty"`
	Kind         string         `json:"kind,omitempty"`
	Status       string         `json:"status,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// EventBus is fire-and-forget; a publish error is logged, never propagated
// into the workflow.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
}

// PendingNotifier is told when the pending count may have changed.
type PendingNotifier interface {
	ReviewableChanged(ctx context.Context, reviewableID uint64)
}
