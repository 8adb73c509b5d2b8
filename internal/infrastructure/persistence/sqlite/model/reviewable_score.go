package model

import "time"

type ReviewableScore struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	ReviewableID uint64    `gorm:"column:reviewable_id;not null;index;uniqueIndex:idx_reviewable_scores_unique,priority:1"`
	ReviewerID   uint64    `gorm:"column:reviewer_id;not null;uniqueIndex:idx_reviewable_scores_unique,priority:2"`
	ScoreType    string    `gorm:"column:score_type;type:varchar(64);not null;uniqueIndex:idx_reviewable_scores_unique,priority:3"`
	Status       int       `gorm:"column:status;not null;default:0"`
	Score        float64   `gorm:"column:score;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

func (ReviewableScore) TableName() string {
	return "reviewable_scores"
}
