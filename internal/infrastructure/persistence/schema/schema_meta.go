package schema

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"modqueue/internal/errs"
)

// Version is bumped whenever a migration changes table shapes.
const Version = "3"

const versionKey = "schema_version"

// Meta is a key/value table for installation-wide markers.
type Meta struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Key       string    `gorm:"column:key;type:text;uniqueIndex;not null"`
	Value     string    `gorm:"column:value;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime"`
}

func (Meta) TableName() string {
	return "schema_meta"
}

// RecordVersion stores Version, replacing whatever an earlier migration left.
func RecordVersion(ctx context.Context, db *gorm.DB) error {
	row := Meta{Key: versionKey, Value: Version}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return errs.Wrap(err, "record schema version")
	}
	return nil
}

// CurrentVersion returns the recorded version, or "" on a fresh database.
func CurrentVersion(ctx context.Context, db *gorm.DB) (string, error) {
	var row Meta
	err := db.WithContext(ctx).Where("key = ?", versionKey).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errs.Wrap(err, "read schema version")
	}
	return row.Value, nil
}
