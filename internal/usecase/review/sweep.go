package review

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
	"modqueue/internal/ports"
)

type SweepResult struct {
	Rejected []uint64
	Skipped  []uint64
}

// SweepStale rejects, as the system actor, every pending item older than
// olderThan. A non-positive age disables the sweep. Individual failures are
// logged and joined into the returned error without stopping the sweep.
func (s *Service) SweepStale(ctx context.Context, olderThan time.Duration) (SweepResult, error) {
	if err := s.ready(ctx); err != nil {
		return SweepResult{}, err
	}

	logCtx := logging.WithComponent(ctx, "review.sweep")
	if olderThan <= 0 {
		logging.Debug(logCtx, "stale sweep disabled")
		return SweepResult{}, nil
	}

	cutoff := s.now().Add(-olderThan)
	pending := reviewable.StatusPending
	items, err := s.repo.ListReviewables(ctx, ports.ReviewableFilter{
		Status:        &pending,
		CreatedBefore: &cutoff,
	})
	if err != nil {
		return SweepResult{}, err
	}

	system := s.systemActor(ctx)
	var result SweepResult
	var failures []error
	for _, item := range items {
		_, err := s.Perform(ctx, PerformInput{
			ReviewableID: item.ID,
			PerformedBy:  system,
			ActionID:     "reject",
		})
		switch {
		case err == nil:
			result.Rejected = append(result.Rejected, item.ID)
		case errs.IsAny(err, reviewable.ErrForbidden, reviewable.ErrUpdateConflict, reviewable.ErrNotFound):
			// Resolved or changed by someone else since it was listed.
			result.Skipped = append(result.Skipped, item.ID)
		default:
			result.Skipped = append(result.Skipped, item.ID)
			failures = append(failures, errs.Wrapf(err, "reject reviewable %d", item.ID))
		}
	}

	logging.Info(
		logCtx,
		"stale sweep finished",
		slog.Time("cutoff", cutoff),
		slog.Int("rejected", len(result.Rejected)),
		slog.Int("skipped", len(result.Skipped)),
	)
	return result, errors.Join(failures...)
}

// AutoHandleAge converts the configured age in days into a duration.
func AutoHandleAge(days int) time.Duration {
	if days <= 0 {
		return 0
	}
	return time.Duration(days) * 24 * time.Hour
}
