package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
	"modqueue/internal/infrastructure/persistence/sqlite/model"
	"modqueue/internal/ports"
)

type ReviewableRepository struct {
	db  *gorm.DB
	now func() time.Time
}

var _ ports.ReviewableRepository = (*ReviewableRepository)(nil)

func NewReviewableRepository(db *gorm.DB) *ReviewableRepository {
	return &ReviewableRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *ReviewableRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	return dbFromContext(ctx, r.db)
}

// dbFromContext joins the transaction carried by ctx, if any.
func dbFromContext(ctx context.Context, db *gorm.DB) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

// storeErr marks an unexpected database failure with where it surfaced.
func storeErr(err error, msg string) error {
	return errs.WithStack(errs.Wrap(err, msg))
}

func (r *ReviewableRepository) GetReviewable(ctx context.Context, id uint64) (reviewable.Item, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return reviewable.Item{}, err
	}

	var row model.Reviewable
	if err := db.Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reviewable.Item{}, reviewable.ErrNotFound
		}
		return reviewable.Item{}, storeErr(err, "query reviewable")
	}
	return mapReviewable(row), nil
}

func (r *ReviewableRepository) FindByTarget(ctx context.Context, kind string, target reviewable.TargetRef) (reviewable.Item, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return reviewable.Item{}, err
	}

	var row model.Reviewable
	if err := db.
		Where("kind = ? AND target_type = ? AND target_id = ?", kind, target.Type, target.ID).
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reviewable.Item{}, reviewable.ErrNotFound
		}
		return reviewable.Item{}, storeErr(err, "query reviewable by target")
	}
	return mapReviewable(row), nil
}

func (r *ReviewableRepository) ListReviewables(ctx context.Context, filter ports.ReviewableFilter) ([]reviewable.Item, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := applyReviewableFilter(db.Model(&model.Reviewable{}), filter).
		Order("score desc").
		Order("created_at desc").
		Order("id desc")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []model.Reviewable
	if err := query.Find(&rows).Error; err != nil {
		return nil, storeErr(err, "query reviewables")
	}

	items := make([]reviewable.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapReviewable(row))
	}
	return items, nil
}

func (r *ReviewableRepository) CountReviewables(ctx context.Context, filter ports.ReviewableFilter) (int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := applyReviewableFilter(db.Model(&model.Reviewable{}), filter).Count(&count).Error; err != nil {
		return 0, storeErr(err, "count reviewables")
	}
	return count, nil
}

func applyReviewableFilter(query *gorm.DB, filter ports.ReviewableFilter) *gorm.DB {
	if filter.Status != nil {
		query = query.Where("status = ?", int(*filter.Status))
	}
	if kind := strings.TrimSpace(filter.Kind); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if filter.CreatedByID != nil {
		query = query.Where("created_by_id = ?", *filter.CreatedByID)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", filter.CreatedBefore.UTC())
	}
	if targetType := strings.TrimSpace(filter.TargetType); targetType != "" {
		query = query.Where("target_type = ?", targetType)
	}
	if len(filter.TargetIDs) > 0 {
		query = query.Where("target_id IN ?", filter.TargetIDs)
	}
	if len(filter.ExcludeIDs) > 0 {
		query = query.Where("id NOT IN ?", filter.ExcludeIDs)
	}
	if filter.ModeratorOnly {
		query = query.Where("reviewable_by_moderator = ?", true)
	}
	if filter.GroupID != nil {
		query = query.Where("reviewable_by_group_id = ?", *filter.GroupID)
	}

	if v := filter.Visibility; v != nil && !v.All {
		switch {
		case v.Staff && len(v.GroupIDs) > 0:
			query = query.Where("(reviewable_by_moderator = ? OR reviewable_by_group_id IN ?)", true, v.GroupIDs)
		case v.Staff:
			query = query.Where("reviewable_by_moderator = ?", true)
		case len(v.GroupIDs) > 0:
			query = query.Where("reviewable_by_group_id IN ?", v.GroupIDs)
		default:
			query = query.Where("1 = 0")
		}
	}
	return query
}

func (r *ReviewableRepository) InsertReviewable(ctx context.Context, input ports.ReviewableCreate) (reviewable.Item, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return reviewable.Item{}, false, err
	}

	now := r.now()
	row := model.Reviewable{
		Kind:                  input.Kind,
		Status:                int(input.Status),
		CreatedByID:           input.CreatedByID,
		ReviewableByModerator: input.ReviewableByModerator,
		ReviewableByGroupID:   input.ReviewableByGroupID,
		CategoryID:            input.CategoryID,
		TopicID:               input.TopicID,
		TargetCreatedByID:     input.TargetCreatedByID,
		Payload:               map[string]any(input.Payload.Clone()),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if input.Target != nil {
		targetType := input.Target.Type
		targetID := input.Target.ID
		row.TargetType = &targetType
		row.TargetID = &targetID
	}

	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return reviewable.Item{}, false, nil
		}
		return reviewable.Item{}, false, storeErr(result.Error, "insert reviewable")
	}
	if result.RowsAffected == 0 {
		return reviewable.Item{}, false, nil
	}
	return mapReviewable(row), true, nil
}

func (r *ReviewableRepository) IncrementVersion(ctx context.Context, id uint64, expected *int64) (int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	query := db.Model(&model.Reviewable{}).Where("id = ?", id)
	if expected != nil {
		query = query.Where("version = ?", *expected)
	}
	result := query.Updates(map[string]any{
		"version":    gorm.Expr("version + 1"),
		"updated_at": r.now(),
	})
	if result.Error != nil {
		return 0, storeErr(result.Error, "increment reviewable version")
	}
	if result.RowsAffected == 0 {
		if expected != nil {
			return 0, reviewable.ErrUpdateConflict
		}
		return 0, reviewable.ErrNotFound
	}
	if expected != nil {
		return *expected + 1, nil
	}

	var row model.Reviewable
	if err := db.Select("version").Where("id = ?", id).Take(&row).Error; err != nil {
		return 0, storeErr(err, "read reviewable version")
	}
	return row.Version, nil
}

func (r *ReviewableRepository) UpdateStatus(ctx context.Context, id uint64, status reviewable.Status) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	result := db.Model(&model.Reviewable{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     int(status),
			"updated_at": r.now(),
		})
	if result.Error != nil {
		return storeErr(result.Error, "update reviewable status")
	}
	if result.RowsAffected == 0 {
		return reviewable.ErrNotFound
	}
	return nil
}

func (r *ReviewableRepository) UpdateFields(ctx context.Context, item reviewable.Item) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	result := db.Model(&model.Reviewable{}).
		Where("id = ?", item.ID).
		Select("payload", "category_id", "topic_id", "updated_at").
		Updates(&model.Reviewable{
			Payload:    map[string]any(item.Payload.Clone()),
			CategoryID: item.CategoryID,
			TopicID:    item.TopicID,
			UpdatedAt:  r.now(),
		})
	if result.Error != nil {
		return storeErr(result.Error, "update reviewable fields")
	}
	if result.RowsAffected == 0 {
		return reviewable.ErrNotFound
	}
	return nil
}

// RecalculateScore sets score to the sum of the item's score weights in one
// statement and returns the stored value.
func (r *ReviewableRepository) RecalculateScore(ctx context.Context, id uint64) (float64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	sum := db.Model(&model.ReviewableScore{}).
		Select("COALESCE(SUM(score), 0)").
		Where("reviewable_id = ?", id)
	result := db.Model(&model.Reviewable{}).
		Where("id = ?", id).
		Update("score", sum)
	if result.Error != nil {
		return 0, storeErr(result.Error, "recalculate reviewable score")
	}
	if result.RowsAffected == 0 {
		return 0, reviewable.ErrNotFound
	}

	var row model.Reviewable
	if err := db.Select("score").Where("id = ?", id).Take(&row).Error; err != nil {
		return 0, storeErr(err, "read reviewable score")
	}
	return row.Score, nil
}

// AddScore records one reviewer's score. A repeated (reviewer, score type)
// pair keeps the existing row.
func (r *ReviewableRepository) AddScore(ctx context.Context, input ports.ScoreCreate) (reviewable.Score, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return reviewable.Score{}, err
	}

	now := r.now()
	row := model.ReviewableScore{
		ReviewableID: input.ReviewableID,
		ReviewerID:   input.ReviewerID,
		ScoreType:    input.ScoreType,
		Status:       int(reviewable.ScoreStatusPending),
		Score:        input.Weight,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil && !isUniqueViolation(result.Error) {
		return reviewable.Score{}, storeErr(result.Error, "insert reviewable score")
	}
	if result.Error == nil && result.RowsAffected > 0 {
		return mapScore(row), nil
	}

	var existing model.ReviewableScore
	if err := db.
		Where("reviewable_id = ? AND reviewer_id = ? AND score_type = ?", input.ReviewableID, input.ReviewerID, input.ScoreType).
		Take(&existing).Error; err != nil {
		return reviewable.Score{}, storeErr(err, "query existing reviewable score")
	}
	return mapScore(existing), nil
}

func (r *ReviewableRepository) CascadePendingScores(ctx context.Context, reviewableID uint64, status reviewable.ScoreStatus) (int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	result := db.Model(&model.ReviewableScore{}).
		Where("reviewable_id = ? AND status = ?", reviewableID, int(reviewable.ScoreStatusPending)).
		Updates(map[string]any{
			"status":     int(status),
			"updated_at": r.now(),
		})
	if result.Error != nil {
		return 0, storeErr(result.Error, "cascade reviewable scores")
	}
	return result.RowsAffected, nil
}

func (r *ReviewableRepository) ListScores(ctx context.Context, reviewableID uint64) ([]reviewable.Score, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.ReviewableScore
	if err := db.Where("reviewable_id = ?", reviewableID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, storeErr(err, "query reviewable scores")
	}

	scores := make([]reviewable.Score, 0, len(rows))
	for _, row := range rows {
		scores = append(scores, mapScore(row))
	}
	return scores, nil
}

func (r *ReviewableRepository) AppendHistory(ctx context.Context, input ports.HistoryCreate) (reviewable.HistoryEntry, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return reviewable.HistoryEntry{}, err
	}

	row := model.ReviewableHistory{
		ReviewableID: input.ReviewableID,
		HistoryType:  int(input.Type),
		Status:       int(input.Status),
		CreatedByID:  input.CreatedByID,
		Edited:       input.Edited,
		CreatedAt:    r.now(),
	}
	if err := db.Create(&row).Error; err != nil {
		return reviewable.HistoryEntry{}, storeErr(err, "insert reviewable history")
	}
	return mapHistory(row), nil
}

func (r *ReviewableRepository) ListHistory(ctx context.Context, reviewableID uint64) ([]reviewable.HistoryEntry, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.ReviewableHistory
	if err := db.Where("reviewable_id = ?", reviewableID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, storeErr(err, "query reviewable history")
	}

	entries := make([]reviewable.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, mapHistory(row))
	}
	return entries, nil
}

func mapReviewable(row model.Reviewable) reviewable.Item {
	item := reviewable.Item{
		ID:                    row.ID,
		Kind:                  row.Kind,
		Status:                reviewable.Status(row.Status),
		CreatedByID:           row.CreatedByID,
		TargetCreatedByID:     row.TargetCreatedByID,
		ReviewableByModerator: row.ReviewableByModerator,
		ReviewableByGroupID:   row.ReviewableByGroupID,
		CategoryID:            row.CategoryID,
		TopicID:               row.TopicID,
		Score:                 row.Score,
		Payload:               reviewable.Payload(row.Payload),
		Version:               row.Version,
		CreatedAt:             row.CreatedAt,
		UpdatedAt:             row.UpdatedAt,
	}
	if item.Payload == nil {
		item.Payload = reviewable.Payload{}
	}
	if row.TargetType != nil && row.TargetID != nil {
		item.Target = &reviewable.TargetRef{Type: *row.TargetType, ID: *row.TargetID}
	}
	return item
}

func mapScore(row model.ReviewableScore) reviewable.Score {
	return reviewable.Score{
		ID:           row.ID,
		ReviewableID: row.ReviewableID,
		ReviewerID:   row.ReviewerID,
		ScoreType:    row.ScoreType,
		Status:       reviewable.ScoreStatus(row.Status),
		Weight:       row.Score,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func mapHistory(row model.ReviewableHistory) reviewable.HistoryEntry {
	return reviewable.HistoryEntry{
		ID:           row.ID,
		ReviewableID: row.ReviewableID,
		Type:         reviewable.HistoryType(row.HistoryType),
		Status:       reviewable.Status(row.Status),
		CreatedByID:  row.CreatedByID,
		Edited:       row.Edited,
		CreatedAt:    row.CreatedAt,
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := err.Error()
	return strings.Contains(message, "UNIQUE constraint failed") || strings.Contains(message, "duplicate key value")
}
