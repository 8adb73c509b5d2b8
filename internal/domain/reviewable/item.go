package reviewable

import (
	"fmt"
	"time"
)

// TargetRef points at the domain object under review.
type TargetRef struct {
	Type string
	ID   uint64
}

func (t TargetRef) String() string {
	return fmt.Sprintf("%s#%d", t.Type, t.ID)
}

// Item is a queued unit of moderation work.
type Item struct {
	ID                    uint64
	Kind                  string
	Status                Status
	CreatedByID           uint64
	Target                *TargetRef
	TargetCreatedByID     *uint64
	ReviewableByModerator bool
	ReviewableByGroupID   *uint64
	CategoryID            *uint64
	TopicID               *uint64
	Score                 float64
	Payload               Payload
	Version               int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (i Item) HasTarget() bool { return i.Target != nil }

// Clone returns a copy whose payload and pointers can be mutated freely.
func (i Item) Clone() Item {
	out := i
	out.Payload = i.Payload.Clone()
	if i.Target != nil {
		target := *i.Target
		out.Target = &target
	}
	out.TargetCreatedByID = cloneID(i.TargetCreatedByID)
	out.ReviewableByGroupID = cloneID(i.ReviewableByGroupID)
	out.CategoryID = cloneID(i.CategoryID)
	out.TopicID = cloneID(i.TopicID)
	return out
}

func cloneID(id *uint64) *uint64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

type Score struct {
	ID           uint64
	ReviewableID uint64
	ReviewerID   uint64
	ScoreType    string
	Status       ScoreStatus
	Weight       float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type HistoryEntry struct {
	ID           uint64
	ReviewableID uint64
	Type         HistoryType
	Status       Status
	CreatedByID  uint64
	Edited       Changes
	CreatedAt    time.Time
}

// Event is a fire-and-forget notification raised by the workflow.
type Event struct {
	Name         string
	ReviewableID uint64
	Kind         string
	Status       Status
	Data         map[string]any
}

const (
	EventReviewableCreated      = "reviewable_created"
	EventReviewableTransitioned = "reviewable_transitioned_to"
	EventPendingCountChanged    = "pending-count-changed"
)
