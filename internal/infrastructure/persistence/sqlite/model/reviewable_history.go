package model

import (
	"time"

	"modqueue/internal/domain/reviewable"
)

type ReviewableHistory struct {
	ID           uint64             `gorm:"column:id;primaryKey;autoIncrement"`
	ReviewableID uint64             `gorm:"column:reviewable_id;not null;index"`
	HistoryType  int                `gorm:"column:history_type;not null"`
	Status       int                `gorm:"column:status;not null"`
	CreatedByID  uint64             `gorm:"column:created_by_id;not null"`
	Edited       reviewable.Changes `gorm:"column:edited;type:text;serializer:json"`
	CreatedAt    time.Time          `gorm:"column:created_at;not null"`
}

func (ReviewableHistory) TableName() string {
	return "reviewable_histories"
}
