package model

import "time"

type Reviewable struct {
	ID                    uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	Kind                  string         `gorm:"column:kind;type:varchar(64);not null;uniqueIndex:idx_reviewables_kind_target,priority:1;index:idx_reviewables_status_kind,priority:2"`
	Status                int            `gorm:"column:status;not null;default:0;index:idx_reviewables_status_score,priority:1;index:idx_reviewables_status_kind,priority:1"`
	CreatedByID           uint64         `gorm:"column:created_by_id;not null;index"`
	ReviewableByModerator bool           `gorm:"column:reviewable_by_moderator;not null;default:false"`
	ReviewableByGroupID   *uint64        `gorm:"column:reviewable_by_group_id;index"`
	CategoryID            *uint64        `gorm:"column:category_id"`
	TopicID               *uint64        `gorm:"column:topic_id"`
	Score                 float64        `gorm:"column:score;not null;default:0;index:idx_reviewables_status_score,priority:2"`
	TargetType            *string        `gorm:"column:target_type;type:varchar(64);uniqueIndex:idx_reviewables_kind_target,priority:2"`
	TargetID              *uint64        `gorm:"column:target_id;uniqueIndex:idx_reviewables_kind_target,priority:3"`
	TargetCreatedByID     *uint64        `gorm:"column:target_created_by_id"`
	Payload               map[string]any `gorm:"column:payload;type:text;serializer:json"`
	Version               int64          `gorm:"column:version;not null;default:0"`
	CreatedAt             time.Time      `gorm:"column:created_at;not null;index"`
	UpdatedAt             time.Time      `gorm:"column:updated_at;not null"`
}

func (Reviewable) TableName() string {
	return "reviewables"
}
