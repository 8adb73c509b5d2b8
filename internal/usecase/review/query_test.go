package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"modqueue/internal/domain/reviewable"
)

func seedVisibilityItems(t *testing.T, env *testEnv) (moderatorItem reviewable.Item, groupItem reviewable.Item) {
	t.Helper()
	ctx := context.Background()
	groupID := testGroupID

	moderatorItem = env.queuePost(t, "a queued post for moderators")
	groupItem, err := env.svc.Create(ctx, CreateInput{
		Kind:                KindQueuedPost,
		CreatedByID:         env.author.ID,
		ReviewableByGroupID: &groupID,
		Payload:             reviewable.Payload{"raw": "a queued post for the group", "title": "Group topic"},
	})
	if err != nil {
		t.Fatalf("Create(group) error = %v", err)
	}
	return moderatorItem, groupItem
}

func TestListHonoursVisibility(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	moderatorItem, groupItem := seedVisibilityItems(t, env)

	testCases := []struct {
		name  string
		actor *reviewable.Actor
		want  []uint64
	}{
		{name: "anonymous", actor: nil, want: nil},
		{name: "regular user", actor: &env.outsider, want: nil},
		{name: "moderator", actor: &env.moderator, want: []uint64{moderatorItem.ID}},
		{name: "group member", actor: &env.member, want: []uint64{groupItem.ID}},
		{name: "admin", actor: &env.system, want: []uint64{groupItem.ID, moderatorItem.ID}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			entries, err := env.svc.List(ctx, ListInput{Actor: testCase.actor})
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(entries) != len(testCase.want) {
				t.Fatalf("List() = %d entries, want %v", len(entries), testCase.want)
			}
			for i, entry := range entries {
				if entry.Item.ID != testCase.want[i] {
					t.Fatalf("entry %d = %d, want %d", i, entry.Item.ID, testCase.want[i])
				}
			}

			count, err := env.svc.PendingCount(ctx, testCase.actor)
			if err != nil || count != int64(len(testCase.want)) {
				t.Fatalf("PendingCount() = %d, %v", count, err)
			}
		})
	}
}

func TestListOrdersByScoreAndDescribesEntries(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	low := env.queuePost(t, "a low scoring queued post")
	env.queuePost(t, "a high scoring queued post")

	if _, err := env.svc.AddScore(ctx, AddScoreInput{ReviewableID: low.ID, ReviewerID: env.moderator.ID, ScoreType: "spam", Weight: 3}); err != nil {
		t.Fatalf("AddScore() error = %v", err)
	}
	if _, err := env.svc.RecalculateScore(ctx, low.ID); err != nil {
		t.Fatalf("RecalculateScore() error = %v", err)
	}

	entries, err := env.svc.List(ctx, ListInput{Actor: &env.moderator})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Item.ID != low.ID {
		t.Fatalf("entries = %+v", entries)
	}
	first := entries[0]
	if len(first.Actions) != 3 || first.Actions[0].ID != "approve" {
		t.Fatalf("actions = %+v", first.Actions)
	}
	if len(first.EditableFields) == 0 {
		t.Fatal("staff should get editable fields")
	}
	if first.Serialized["raw"] != "a low scoring queued post" || first.Serialized["type"] != KindQueuedPost {
		t.Fatalf("serialized = %v", first.Serialized)
	}

	limited, err := env.svc.List(ctx, ListInput{Actor: &env.moderator, Limit: 1})
	if err != nil || len(limited) != 1 {
		t.Fatalf("List(limit) = %d, %v", len(limited), err)
	}

	rejected := reviewable.StatusRejected
	none, err := env.svc.List(ctx, ListInput{Actor: &env.moderator, Status: &rejected})
	if err != nil || len(none) != 0 {
		t.Fatalf("List(rejected) = %d, %v", len(none), err)
	}
}

func TestDescribeHidesInvisibleItems(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	moderatorItem, groupItem := seedVisibilityItems(t, env)

	entry, err := env.svc.Describe(ctx, env.member, groupItem.ID)
	if err != nil {
		t.Fatalf("Describe(member) error = %v", err)
	}
	if len(entry.Actions) != 2 {
		t.Fatalf("member actions = %+v", entry.Actions)
	}

	if _, err := env.svc.Describe(ctx, env.member, moderatorItem.ID); !errors.Is(err, reviewable.ErrNotFound) {
		t.Fatalf("Describe(hidden) err = %v", err)
	}
}

func TestPendingCountFor(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	seedVisibilityItems(t, env)

	if count, err := env.svc.PendingCountFor(ctx, env.system.ID); err != nil || count != 2 {
		t.Fatalf("PendingCountFor(admin) = %d, %v", count, err)
	}
	if count, err := env.svc.PendingCountFor(ctx, 999); err != nil || count != 0 {
		t.Fatalf("PendingCountFor(unknown) = %d, %v", count, err)
	}
}

func TestSweepStaleRejectsOldPendingItems(t *testing.T) {
	later := time.Now().UTC().Add(48 * time.Hour)
	env := setupEnv(t, WithClock(func() time.Time { return later }))
	ctx := context.Background()
	first := env.queuePost(t, "an old queued post body")
	post := env.createPost(t)
	flagged, err := env.svc.Flag(ctx, FlagInput{PostID: post.PostID, FlaggedByID: env.outsider.ID, ScoreType: "spam"})
	if err != nil {
		t.Fatalf("Flag() error = %v", err)
	}

	if result, err := env.svc.SweepStale(ctx, 0); err != nil || len(result.Rejected) != 0 {
		t.Fatalf("SweepStale(0) = %+v, %v", result, err)
	}
	if result, err := env.svc.SweepStale(ctx, 72*time.Hour); err != nil || len(result.Rejected) != 0 {
		t.Fatalf("SweepStale(72h) = %+v, %v", result, err)
	}

	result, err := env.svc.SweepStale(ctx, AutoHandleAge(1))
	if err != nil {
		t.Fatalf("SweepStale() error = %v", err)
	}
	if len(result.Rejected) != 2 || len(result.Skipped) != 0 {
		t.Fatalf("sweep = %+v", result)
	}

	for _, id := range []uint64{first.ID, flagged.Item.ID} {
		if stored := env.reload(t, id); stored.Status != reviewable.StatusRejected {
			t.Fatalf("item %d status = %v", id, stored.Status)
		}
	}
	history, err := env.svc.History(ctx, first.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if last := history[len(history)-1]; last.CreatedByID != env.system.ID {
		t.Fatalf("sweep ran as %d", last.CreatedByID)
	}
	scores, err := env.svc.Scores(ctx, flagged.Item.ID)
	if err != nil || len(scores) != 1 || scores[0].Status != reviewable.ScoreStatusDisagreed {
		t.Fatalf("scores = %+v, %v", scores, err)
	}
}

func TestAutoHandleAge(t *testing.T) {
	if got := AutoHandleAge(0); got != 0 {
		t.Fatalf("AutoHandleAge(0) = %v", got)
	}
	if got := AutoHandleAge(-3); got != 0 {
		t.Fatalf("AutoHandleAge(-3) = %v", got)
	}
	if got := AutoHandleAge(2); got != 48*time.Hour {
		t.Fatalf("AutoHandleAge(2) = %v", got)
	}
}
