package ports

import (
	"context"
	"time"

	"modqueue/internal/domain/reviewable"
)

type ReviewableCreate struct {
	Kind                  string
	Status                reviewable.Status
	CreatedByID           uint64
	Target                *reviewable.TargetRef
	TargetCreatedByID     *uint64
	ReviewableByModerator bool
	ReviewableByGroupID   *uint64
	CategoryID            *uint64
	TopicID               *uint64
	Payload               reviewable.Payload
}

// Visibility restricts a listing to what one actor may see. All bypasses the
// predicate (admins); otherwise an item matches when it is moderator-reviewable
// and Staff is set, or its group is in GroupIDs.
type Visibility struct {
	All      bool
	Staff    bool
	GroupIDs []uint64
}

type ReviewableFilter struct {
	Status        *reviewable.Status
	Kind          string
	CreatedByID   *uint64
	CreatedBefore *time.Time
	TargetType    string
	TargetIDs     []uint64
	ExcludeIDs    []uint64
	ModeratorOnly bool
	GroupID       *uint64
	Visibility    *Visibility
	Limit         int
}

type ScoreCreate struct {
	ReviewableID uint64
	ReviewerID   uint64
	ScoreType    string
	Weight       float64
}

type HistoryCreate struct {
	ReviewableID uint64
	Type         reviewable.HistoryType
	Status       reviewable.Status
	CreatedByID  uint64
	Edited       reviewable.Changes
}

type ReviewableReadRepository interface {
	GetReviewable(ctx context.Context, id uint64) (reviewable.Item, error)
	FindByTarget(ctx context.Context, kind string, target reviewable.TargetRef) (reviewable.Item, error)
	ListReviewables(ctx context.Context, filter ReviewableFilter) ([]reviewable.Item, error)
	CountReviewables(ctx context.Context, filter ReviewableFilter) (int64, error)
	ListScores(ctx context.Context, reviewableID uint64) ([]reviewable.Score, error)
	ListHistory(ctx context.Context, reviewableID uint64) ([]reviewable.HistoryEntry, error)
}

type ReviewableRepository interface {
	ReviewableReadRepository

	// InsertReviewable inserts unless (kind, target) already exists; inserted
	// is false on that conflict and the returned item is zero.
	InsertReviewable(ctx context.Context, input ReviewableCreate) (item reviewable.Item, inserted bool, err error)

	// IncrementVersion bumps the version in one conditional statement. With a
	// non-nil expected it only matches that version and returns
	// reviewable.ErrUpdateConflict otherwise.
	IncrementVersion(ctx context.Context, id uint64, expected *int64) (int64, error)

	UpdateStatus(ctx context.Context, id uint64, status reviewable.Status) error
	UpdateFields(ctx context.Context, item reviewable.Item) error
	RecalculateScore(ctx context.Context, id uint64) (float64, error)

	AddScore(ctx context.Context, input ScoreCreate) (reviewable.Score, error)
	// CascadePendingScores moves every still-pending score of the reviewable to status.
	CascadePendingScores(ctx context.Context, reviewableID uint64, status reviewable.ScoreStatus) (int64, error)

	AppendHistory(ctx context.Context, input HistoryCreate) (reviewable.HistoryEntry, error)
}
