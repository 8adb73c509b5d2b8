package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"modqueue/internal/domain/reviewable"
	"modqueue/internal/infrastructure/persistence/sqlite/model"
	"modqueue/internal/ports"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "modqueue.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func setupReviewableRepository(t *testing.T) *ReviewableRepository {
	t.Helper()
	return NewReviewableRepository(setupDB(t))
}

func insertPending(t *testing.T, repo *ReviewableRepository, input ports.ReviewableCreate) reviewable.Item {
	t.Helper()

	if input.Kind == "" {
		input.Kind = "flagged_post"
	}
	if input.CreatedByID == 0 {
		input.CreatedByID = 1
	}
	item, inserted, err := repo.InsertReviewable(context.Background(), input)
	if err != nil {
		t.Fatalf("InsertReviewable() error = %v", err)
	}
	if !inserted {
		t.Fatalf("InsertReviewable() inserted = false")
	}
	return item
}

func TestInsertReviewableConflictsOnKindAndTarget(t *testing.T) {
	repo := setupReviewableRepository(t)
	ctx := context.Background()
	target := &reviewable.TargetRef{Type: "post", ID: 42}

	first := insertPending(t, repo, ports.ReviewableCreate{
		Target:  target,
		Payload: reviewable.Payload{"raw": "spam"},
	})
	if first.ID == 0 || first.Version != 0 || first.Payload.String("raw") != "spam" {
		t.Fatalf("first insert = %+v", first)
	}

	_, inserted, err := repo.InsertReviewable(ctx, ports.ReviewableCreate{Kind: "flagged_post", CreatedByID: 2, Target: target})
	if err != nil {
		t.Fatalf("duplicate InsertReviewable() error = %v", err)
	}
	if inserted {
		t.Fatal("duplicate (kind, target) should not insert")
	}

	other := insertPending(t, repo, ports.ReviewableCreate{Kind: "queued_post", Target: target})
	if other.ID == first.ID {
		t.Fatal("different kind on same target should insert")
	}

	found, err := repo.FindByTarget(ctx, "flagged_post", *target)
	if err != nil || found.ID != first.ID {
		t.Fatalf("FindByTarget() = %+v, %v", found, err)
	}
}

func TestInsertReviewableWithoutTargetNeverConflicts(t *testing.T) {
	repo := setupReviewableRepository(t)

	a := insertPending(t, repo, ports.ReviewableCreate{Kind: "queued_post"})
	b := insertPending(t, repo, ports.ReviewableCreate{Kind: "queued_post"})
	if a.ID == b.ID {
		t.Fatal("untargeted items should be distinct rows")
	}
	if a.HasTarget() {
		t.Fatal("untargeted item reports a target")
	}
}

func TestIncrementVersionCompareAndSwap(t *testing.T) {
	repo := setupReviewableRepository(t)
	ctx := context.Background()
	item := insertPending(t, repo, ports.ReviewableCreate{})

	expected := int64(0)
	version, err := repo.IncrementVersion(ctx, item.ID, &expected)
	if err != nil || version != 1 {
		t.Fatalf("IncrementVersion(0) = %d, %v", version, err)
	}

	if _, err := repo.IncrementVersion(ctx, item.ID, &expected); !errors.Is(err, reviewable.ErrUpdateConflict) {
		t.Fatalf("stale IncrementVersion() err = %v, want ErrUpdateConflict", err)
	}

	version, err = repo.IncrementVersion(ctx, item.ID, nil)
	if err != nil || version != 2 {
		t.Fatalf("unversioned IncrementVersion() = %d, %v", version, err)
	}

	if _, err := repo.IncrementVersion(ctx, item.ID+100, nil); !errors.Is(err, reviewable.ErrNotFound) {
		t.Fatalf("missing IncrementVersion() err = %v", err)
	}
}

func TestIncrementVersionOnlyTouchesOneRow(t *testing.T) {
	repo := setupReviewableRepository(t)
	ctx := context.Background()
	a := insertPending(t, repo, ports.ReviewableCreate{Kind: "queued_post"})
	b := insertPending(t, repo, ports.ReviewableCreate{Kind: "queued_post"})

	if _, err := repo.IncrementVersion(ctx, a.ID, nil); err != nil {
		t.Fatalf("IncrementVersion() error = %v", err)
	}

	got, err := repo.GetReviewable(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetReviewable() error = %v", err)
	}
	if got.Version != 0 {
		t.Fatalf("untouched row version = %d, want 0", got.Version)
	}
}

func TestListReviewablesVisibilityAndOrdering(t *testing.T) {
	repo := setupReviewableRepository(t)
	ctx := context.Background()
	groupID := uint64(7)

	low := insertPending(t, repo, ports.ReviewableCreate{Kind: "queued_post", ReviewableByModerator: true})
	high := insertPending(t, repo, ports.ReviewableCreate{Kind: "queued_post", ReviewableByModerator: true})
	group := insertPending(t, repo, ports.ReviewableCreate{Kind: "queued_post", ReviewableByGroupID: &groupID})
	if err := repo.db.Model(&model.Reviewable{}).Where("id = ?", high.ID).Update("score", 5.0).Error; err != nil {
		t.Fatalf("seed score: %v", err)
	}

	testCases := []struct {
		name       string
		visibility ports.Visibility
		want       []uint64
	}{
		{name: "admin", visibility: ports.Visibility{All: true}, want: []uint64{high.ID, group.ID, low.ID}},
		{name: "moderator", visibility: ports.Visibility{Staff: true}, want: []uint64{high.ID, low.ID}},
		{name: "group member", visibility: ports.Visibility{GroupIDs: []uint64{groupID}}, want: []uint64{group.ID}},
		{name: "moderator in group", visibility: ports.Visibility{Staff: true, GroupIDs: []uint64{groupID}}, want: []uint64{high.ID, group.ID, low.ID}},
		{name: "nobody", visibility: ports.Visibility{}, want: nil},
	}

	pending := reviewable.StatusPending
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			visibility := testCase.visibility
			items, err := repo.ListReviewables(ctx, ports.ReviewableFilter{Status: &pending, Visibility: &visibility})
			if err != nil {
				t.Fatalf("ListReviewables() error = %v", err)
			}
			if len(items) != len(testCase.want) {
				t.Fatalf("ListReviewables() len = %d, want %d", len(items), len(testCase.want))
			}
			for i, item := range items {
				if item.ID != testCase.want[i] {
					t.Fatalf("ListReviewables()[%d] = %d, want %d", i, item.ID, testCase.want[i])
				}
			}

			count, err := repo.CountReviewables(ctx, ports.ReviewableFilter{Status: &pending, Visibility: &visibility})
			if err != nil || count != int64(len(testCase.want)) {
				t.Fatalf("CountReviewables() = %d, %v", count, err)
			}
		})
	}
}

func TestListReviewablesFilters(t *testing.T) {
	repo := setupReviewableRepository(t)
	ctx := context.Background()

	old := insertPending(t, repo, ports.ReviewableCreate{Kind: "queued_post", CreatedByID: 3})
	past := time.Now().UTC().Add(-72 * time.Hour)
	if err := repo.db.Model(&model.Reviewable{}).Where("id = ?", old.ID).Update("created_at", past).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
	fresh := insertPending(t, repo, ports.ReviewableCreate{Kind: "queued_post", CreatedByID: 3})
	insertPending(t, repo, ports.ReviewableCreate{Kind: "flagged_post", CreatedByID: 4, Target: &reviewable.TargetRef{Type: "post", ID: 9}})

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	items, err := repo.ListReviewables(ctx, ports.ReviewableFilter{Kind: "queued_post", CreatedBefore: &cutoff})
	if err != nil || len(items) != 1 || items[0].ID != old.ID {
		t.Fatalf("CreatedBefore filter = %+v, %v", items, err)
	}

	creator := uint64(3)
	items, err = repo.ListReviewables(ctx, ports.ReviewableFilter{CreatedByID: &creator, ExcludeIDs: []uint64{old.ID}})
	if err != nil || len(items) != 1 || items[0].ID != fresh.ID {
		t.Fatalf("CreatedByID/ExcludeIDs filter = %+v, %v", items, err)
	}

	items, err = repo.ListReviewables(ctx, ports.ReviewableFilter{TargetType: "post", TargetIDs: []uint64{9, 10}})
	if err != nil || len(items) != 1 || items[0].Kind != "flagged_post" {
		t.Fatalf("target filter = %+v, %v", items, err)
	}
}

func TestScoresAggregateAndCascade(t *testing.T) {
	repo := setupReviewableRepository(t)
	ctx := context.Background()
	item := insertPending(t, repo, ports.ReviewableCreate{Target: &reviewable.TargetRef{Type: "post", ID: 1}})

	for _, input := range []ports.ScoreCreate{
		{ReviewableID: item.ID, ReviewerID: 10, ScoreType: "spam", Weight: 1.5},
		{ReviewableID: item.ID, ReviewerID: 11, ScoreType: "spam", Weight: 2},
	} {
		if _, err := repo.AddScore(ctx, input); err != nil {
			t.Fatalf("AddScore() error = %v", err)
		}
	}

	duplicate, err := repo.AddScore(ctx, ports.ScoreCreate{ReviewableID: item.ID, ReviewerID: 10, ScoreType: "spam", Weight: 9})
	if err != nil {
		t.Fatalf("duplicate AddScore() error = %v", err)
	}
	if duplicate.Weight != 1.5 {
		t.Fatalf("duplicate AddScore() weight = %v, want existing 1.5", duplicate.Weight)
	}

	total, err := repo.RecalculateScore(ctx, item.ID)
	if err != nil || total != 3.5 {
		t.Fatalf("RecalculateScore() = %v, %v", total, err)
	}

	scores, err := repo.ListScores(ctx, item.ID)
	if err != nil || len(scores) != 2 {
		t.Fatalf("ListScores() = %+v, %v", scores, err)
	}
	if err := repo.db.Model(&model.ReviewableScore{}).Where("id = ?", scores[1].ID).Update("status", int(reviewable.ScoreStatusIgnored)).Error; err != nil {
		t.Fatalf("seed ignored score: %v", err)
	}

	moved, err := repo.CascadePendingScores(ctx, item.ID, reviewable.ScoreStatusAgreed)
	if err != nil || moved != 1 {
		t.Fatalf("CascadePendingScores() = %d, %v", moved, err)
	}

	scores, _ = repo.ListScores(ctx, item.ID)
	if scores[0].Status != reviewable.ScoreStatusAgreed || scores[1].Status != reviewable.ScoreStatusIgnored {
		t.Fatalf("score statuses = %v, %v", scores[0].Status, scores[1].Status)
	}
}

func TestUpdateFieldsAndHistory(t *testing.T) {
	repo := setupReviewableRepository(t)
	ctx := context.Background()
	item := insertPending(t, repo, ports.ReviewableCreate{Kind: "queued_post", Payload: reviewable.Payload{"raw": "before"}})

	category := uint64(12)
	item.Payload["raw"] = "after"
	item.CategoryID = &category
	if err := repo.UpdateFields(ctx, item); err != nil {
		t.Fatalf("UpdateFields() error = %v", err)
	}
	if err := repo.UpdateStatus(ctx, item.ID, reviewable.StatusApproved); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	got, err := repo.GetReviewable(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetReviewable() error = %v", err)
	}
	if got.Payload.String("raw") != "after" || got.CategoryID == nil || *got.CategoryID != 12 || got.Status != reviewable.StatusApproved {
		t.Fatalf("GetReviewable() = %+v", got)
	}

	if _, err := repo.AppendHistory(ctx, ports.HistoryCreate{
		ReviewableID: item.ID,
		Type:         reviewable.HistoryEdited,
		Status:       reviewable.StatusPending,
		CreatedByID:  2,
		Edited:       reviewable.Changes{"payload.raw": {From: "before", To: "after"}},
	}); err != nil {
		t.Fatalf("AppendHistory() error = %v", err)
	}

	history, err := repo.ListHistory(ctx, item.ID)
	if err != nil || len(history) != 1 {
		t.Fatalf("ListHistory() = %+v, %v", history, err)
	}
	if change := history[0].Edited["payload.raw"]; change.From != "before" || change.To != "after" {
		t.Fatalf("history edited = %+v", history[0].Edited)
	}

	if _, err := repo.GetReviewable(ctx, item.ID+99); !errors.Is(err, reviewable.ErrNotFound) {
		t.Fatalf("GetReviewable(missing) err = %v", err)
	}
}
