package review

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"modqueue/internal/domain/reviewable"
	"modqueue/internal/infrastructure/events"
	"modqueue/internal/ports"
)

type testCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newTestCache() *testCache {
	return &testCache{data: make(map[string]string)}
}

func (c *testCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *testCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *testCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// recipientCounts flattens pending-count events into recipient -> counts.
func recipientCounts(t *testing.T, published []ports.Event) map[uint64][]int64 {
	t.Helper()
	out := map[uint64][]int64{}
	for _, event := range published {
		count, ok := event.Data["count"].(int64)
		if !ok {
			t.Fatalf("count = %#v", event.Data["count"])
		}
		recipients, ok := event.Data["recipient_ids"].([]uint64)
		if !ok {
			t.Fatalf("recipient_ids = %#v", event.Data["recipient_ids"])
		}
		for _, id := range recipients {
			out[id] = append(out[id], count)
		}
	}
	return out
}

func TestCountNotifierContactsEachReviewerOnce(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	if err := env.forum.AddGroupMember(ctx, testGroupID, env.moderator.ID); err != nil {
		t.Fatalf("AddGroupMember() error = %v", err)
	}
	groupID := testGroupID

	moderatorItem, groupItem := seedVisibilityItems(t, env)
	sharedItem, err := env.svc.Create(ctx, CreateInput{
		Kind:                  KindQueuedPost,
		CreatedByID:           env.author.ID,
		ReviewableByModerator: true,
		ReviewableByGroupID:   &groupID,
		Payload:               reviewable.Payload{"raw": "a post for both audiences"},
	})
	if err != nil {
		t.Fatalf("Create(shared) error = %v", err)
	}

	bus := events.NewMemoryBus()
	cache := newTestCache()
	metrics := NewMetrics(prometheus.NewRegistry())
	notifier := NewCountNotifier(env.repo, env.forum, bus, cache, metrics)

	testCases := []struct {
		name string
		item reviewable.Item
		want map[uint64][]int64
	}{
		{
			name: "moderator item",
			item: moderatorItem,
			want: map[uint64][]int64{env.system.ID: {3}, env.moderator.ID: {2}},
		},
		{
			name: "group item",
			item: groupItem,
			want: map[uint64][]int64{env.system.ID: {3}, env.moderator.ID: {2}, env.member.ID: {2}},
		},
		{
			name: "moderator and group item",
			item: sharedItem,
			want: map[uint64][]int64{env.system.ID: {3}, env.moderator.ID: {2}, env.member.ID: {2}},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			bus.Reset()
			if err := notifier.Notify(ctx, testCase.item.ID); err != nil {
				t.Fatalf("Notify() error = %v", err)
			}

			got := recipientCounts(t, bus.Named(reviewable.EventPendingCountChanged))
			if len(got) != len(testCase.want) {
				t.Fatalf("recipients = %v, want %v", got, testCase.want)
			}
			for id, counts := range testCase.want {
				if len(got[id]) != 1 || got[id][0] != counts[0] {
					t.Fatalf("recipient %d counts = %v, want %v", id, got[id], counts)
				}
			}
		})
	}

	if value, ok, _ := cache.Get(ctx, PendingCountCacheKey(env.system.ID)); !ok || value != "3" {
		t.Fatalf("admin cached count = %q, %v", value, ok)
	}
	if value, ok, _ := cache.Get(ctx, PendingCountCacheKey(env.member.ID)); !ok || value != "2" {
		t.Fatalf("member cached count = %q, %v", value, ok)
	}
	if got := testutil.ToFloat64(metrics.Pending); got != 3 {
		t.Fatalf("pending gauge = %v", got)
	}
}

func TestCountNotifierIgnoresMissingItems(t *testing.T) {
	env := setupEnv(t)
	bus := events.NewMemoryBus()
	notifier := NewCountNotifier(env.repo, env.forum, bus, nil, nil)

	notifier.ReviewableChanged(context.Background(), 999)
	if len(bus.Events()) != 0 {
		t.Fatalf("events = %+v", bus.Events())
	}
}

func TestServiceWiresCountNotifier(t *testing.T) {
	bus := events.NewMemoryBus()
	env := setupEnv(t, WithEventBus(bus))
	env.svc.notifier = NewCountNotifier(env.repo, env.forum, bus, newTestCache(), nil)

	item := env.queuePost(t, "a queued post body long enough")
	if len(bus.Named(reviewable.EventPendingCountChanged)) == 0 {
		t.Fatal("create should publish pending counts")
	}

	bus.Reset()
	if _, err := env.svc.Perform(context.Background(), PerformInput{
		ReviewableID: item.ID,
		PerformedBy:  env.moderator,
		ActionID:     "reject",
		Version:      versionPtr(item.Version),
	}); err != nil {
		t.Fatalf("Perform() error = %v", err)
	}
	got := recipientCounts(t, bus.Named(reviewable.EventPendingCountChanged))
	if counts := got[env.system.ID]; len(counts) != 1 || counts[0] != 0 {
		t.Fatalf("admin counts after reject = %v", counts)
	}
}
