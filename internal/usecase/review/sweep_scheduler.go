package review

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/errs"
)

// ExpiredPurger drops cached values whose ttl has passed.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// SweepScheduler runs SweepStale on a cron schedule and, when given a purger,
// clears expired cached pending counts on the same tick.
type SweepScheduler struct {
	svc      *Service
	cron     *cron.Cron
	age      time.Duration
	schedule string
	purger   ExpiredPurger
}

func NewSweepScheduler(svc *Service, schedule string, age time.Duration) (*SweepScheduler, error) {
	if svc == nil {
		return nil, errors.New("review service is required")
	}
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return nil, errors.New("sweep schedule is required")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, errs.Wrapf(err, "parse sweep schedule %q", schedule)
	}
	return &SweepScheduler{svc: svc, cron: cron.New(), age: age, schedule: schedule}, nil
}

func (s *SweepScheduler) PurgeCache(purger ExpiredPurger) *SweepScheduler {
	s.purger = purger
	return s
}

// Run blocks until ctx is done. With the sweep disabled and no purger there is
// nothing to schedule and it returns immediately.
func (s *SweepScheduler) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	logCtx := logging.WithComponent(ctx, "review.sweep_scheduler")
	if s.age <= 0 {
		logging.Info(logCtx, "stale sweep disabled")
		if s.purger == nil {
			return nil
		}
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.tick(logCtx) }); err != nil {
		return errs.Wrapf(err, "schedule sweep %q", s.schedule)
	}
	s.cron.Start()
	logging.Info(logCtx, "review maintenance scheduled", slog.String("schedule", s.schedule), slog.Duration("older_than", s.age))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

func (s *SweepScheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.age > 0 {
		result, err := s.svc.SweepStale(ctx, s.age)
		if err != nil {
			logging.Warn(ctx, "stale sweep finished with errors", slog.Any("err", errs.Loggable(err)))
		}
		if len(result.Rejected) > 0 || len(result.Skipped) > 0 {
			logging.Info(ctx, "stale sweep ran", slog.Int("rejected", len(result.Rejected)), slog.Int("skipped", len(result.Skipped)))
		}
	}
	if s.purger != nil {
		purged, err := s.purger.PurgeExpired(ctx)
		if err != nil {
			logging.Warn(ctx, "purge cached counts failed", slog.Any("err", errs.Loggable(err)))
			return
		}
		if purged > 0 {
			logging.Debug(ctx, "cached counts purged", slog.Int64("purged", purged))
		}
	}
}
