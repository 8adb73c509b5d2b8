package review

import (
	"context"
	"testing"
	"time"

	"modqueue/internal/domain/reviewable"
)

func TestNewSweepSchedulerValidates(t *testing.T) {
	env := setupEnv(t)

	if _, err := NewSweepScheduler(nil, "@every 1h", time.Hour); err == nil {
		t.Fatalf("NewSweepScheduler(nil) should fail")
	}
	if _, err := NewSweepScheduler(env.svc, "  ", time.Hour); err == nil {
		t.Fatalf("NewSweepScheduler(blank) should fail")
	}
	if _, err := NewSweepScheduler(env.svc, "not a schedule", time.Hour); err == nil {
		t.Fatalf("NewSweepScheduler(invalid) should fail")
	}
}

func TestSweepSchedulerDisabledReturns(t *testing.T) {
	env := setupEnv(t)
	scheduler, err := NewSweepScheduler(env.svc, "@every 1h", 0)
	if err != nil {
		t.Fatalf("NewSweepScheduler() error = %v", err)
	}
	if err := scheduler.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestSweepSchedulerStopsWithContext(t *testing.T) {
	env := setupEnv(t)
	scheduler, err := NewSweepScheduler(env.svc, "@every 1h", time.Hour)
	if err != nil {
		t.Fatalf("NewSweepScheduler() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run() did not stop after cancel")
	}
}

func TestSweepSchedulerTickRejectsStaleItems(t *testing.T) {
	later := time.Now().UTC().Add(48 * time.Hour)
	env := setupEnv(t, WithClock(func() time.Time { return later }))
	item := env.queuePost(t, "an old queued post body")

	scheduler, err := NewSweepScheduler(env.svc, "@every 1h", AutoHandleAge(1))
	if err != nil {
		t.Fatalf("NewSweepScheduler() error = %v", err)
	}
	scheduler.tick(context.Background())

	if got := env.reload(t, item.ID); got.Status != reviewable.StatusRejected {
		t.Fatalf("status = %s, want rejected", got.Status)
	}
}

type countingPurger struct {
	calls int
}

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls++
	return 2, nil
}

func TestSweepSchedulerTickPurgesWithSweepDisabled(t *testing.T) {
	env := setupEnv(t)
	item := env.queuePost(t, "a fresh queued post body")
	purger := &countingPurger{}

	scheduler, err := NewSweepScheduler(env.svc, "@every 1h", 0)
	if err != nil {
		t.Fatalf("NewSweepScheduler() error = %v", err)
	}
	scheduler.PurgeCache(purger).tick(context.Background())

	if purger.calls != 1 {
		t.Fatalf("PurgeExpired calls = %d, want 1", purger.calls)
	}
	if got := env.reload(t, item.ID); got.Status != reviewable.StatusPending {
		t.Fatalf("status = %s, want pending with the sweep disabled", got.Status)
	}
}
