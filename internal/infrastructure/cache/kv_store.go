package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"modqueue/internal/errs"
	"modqueue/internal/infrastructure/persistence/sqlite/model"
	"modqueue/internal/ports"
)

// KVStore keeps short-lived values (per-actor pending counts) in the
// cache_entries table of whichever database gorm is connected to.
type KVStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ ports.Cache = (*KVStore)(nil)

func NewKVStore(db *gorm.DB) *KVStore {
	return &KVStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Get reports found=false for missing and expired keys alike.
func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	key, err := checkKey(ctx, key)
	if err != nil {
		return "", false, err
	}

	var entry model.CacheEntry
	err = s.db.WithContext(ctx).
		Where("key = ?", key).
		Where("expires_at IS NULL OR expires_at > ?", s.now()).
		Take(&entry).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", false, nil
	case err != nil:
		return "", false, errs.Wrapf(err, "get cache key %q", key)
	}
	return entry.Value, true, nil
}

// Set upserts key. ttl <= 0 stores the value without expiry.
func (s *KVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	key, err := checkKey(ctx, key)
	if err != nil {
		return err
	}

	now := s.now()
	entry := model.CacheEntry{Key: key, Value: value, UpdatedAt: now}
	if ttl > 0 {
		expires := now.Add(ttl)
		entry.ExpiresAt = &expires
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&entry).Error
	return errs.Wrapf(err, "set cache key %q", key)
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	key, err := checkKey(ctx, key)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Delete(&model.CacheEntry{}, "key = ?", key).Error
	return errs.Wrapf(err, "delete cache key %q", key)
}

// PurgeExpired removes entries whose ttl has passed and returns how many went.
func (s *KVStore) PurgeExpired(ctx context.Context) (int64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now()).
		Delete(&model.CacheEntry{})
	if result.Error != nil {
		return 0, errs.Wrap(result.Error, "purge expired cache entries")
	}
	return result.RowsAffected, nil
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	return errs.Wrap(ctx.Err(), "check context")
}

func checkKey(ctx context.Context, key string) (string, error) {
	if err := checkContext(ctx); err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("key is required")
	}
	return key, nil
}
