package review

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
	"modqueue/internal/ports"
)

const pendingCountCacheTTL = 10 * time.Minute

func PendingCountCacheKey(actorID uint64) string {
	return "reviewable_count:" + strconv.FormatUint(actorID, 10)
}

// CountNotifier tells reviewers their pending count changed. Admins get the
// total, moderators the moderator-visible count when the item is
// moderator-reviewable, and members of the item's group the sum over all of
// their groups. Nobody is contacted twice for one change.
type CountNotifier struct {
	repo   ports.ReviewableReadRepository
	actors ports.ActorDirectory
	bus    ports.EventBus
	cache  ports.Cache

	metrics *Metrics
	now     func() time.Time
}

var _ ports.PendingNotifier = (*CountNotifier)(nil)

func NewCountNotifier(repo ports.ReviewableReadRepository, actors ports.ActorDirectory, bus ports.EventBus, cache ports.Cache, metrics *Metrics) *CountNotifier {
	return &CountNotifier{
		repo:    repo,
		actors:  actors,
		bus:     bus,
		cache:   cache,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ReviewableChanged is fire-and-forget; failures are logged.
func (n *CountNotifier) ReviewableChanged(ctx context.Context, reviewableID uint64) {
	if err := n.Notify(ctx, reviewableID); err != nil {
		logging.Warn(
			logging.WithComponent(ctx, "review.notifier"),
			"pending count notification failed",
			slog.Uint64("reviewable_id", reviewableID),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}

func (n *CountNotifier) Notify(ctx context.Context, reviewableID uint64) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if n.repo == nil || n.actors == nil {
		return errors.New("notifier repository and actor directory are required")
	}

	item, err := n.repo.GetReviewable(ctx, reviewableID)
	if err != nil {
		if errors.Is(err, reviewable.ErrNotFound) {
			return nil
		}
		return err
	}

	staff, err := n.actors.ListStaff(ctx)
	if err != nil {
		return err
	}

	pending := reviewable.StatusPending
	contacted := map[uint64]struct{}{}

	var admins []uint64
	for _, actor := range staff {
		if actor.Admin {
			admins = append(admins, actor.ID)
		}
	}
	total, err := n.repo.CountReviewables(ctx, ports.ReviewableFilter{Status: &pending})
	if err != nil {
		return err
	}
	n.metrics.setPending(total)
	if err := n.publish(ctx, total, admins, contacted); err != nil {
		return err
	}

	if item.ReviewableByModerator {
		var moderators []uint64
		for _, actor := range staff {
			if actor.Moderator && !seen(contacted, actor.ID) {
				moderators = append(moderators, actor.ID)
			}
		}
		count, err := n.repo.CountReviewables(ctx, ports.ReviewableFilter{Status: &pending, ModeratorOnly: true})
		if err != nil {
			return err
		}
		if err := n.publish(ctx, count, moderators, contacted); err != nil {
			return err
		}
	}

	if item.ReviewableByGroupID != nil {
		members, err := n.actors.ListGroupMembers(ctx, *item.ReviewableByGroupID)
		if err != nil {
			return err
		}

		groupCounts := map[uint64]int64{}
		for _, member := range members {
			if seen(contacted, member.ID) {
				continue
			}
			var count int64
			for _, groupID := range member.GroupIDs {
				groupCount, ok := groupCounts[groupID]
				if !ok {
					id := groupID
					groupCount, err = n.repo.CountReviewables(ctx, ports.ReviewableFilter{Status: &pending, GroupID: &id})
					if err != nil {
						return err
					}
					groupCounts[groupID] = groupCount
				}
				count += groupCount
			}
			if err := n.publish(ctx, count, []uint64{member.ID}, contacted); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *CountNotifier) publish(ctx context.Context, count int64, recipients []uint64, contacted map[uint64]struct{}) error {
	if len(recipients) == 0 {
		return nil
	}
	for _, id := range recipients {
		contacted[id] = struct{}{}
		if n.cache != nil {
			if err := n.cache.Set(ctx, PendingCountCacheKey(id), strconv.FormatInt(count, 10), pendingCountCacheTTL); err != nil {
				logging.Warn(ctx, "cache pending count failed", slog.Uint64("actor_id", id), slog.Any("err", errs.Loggable(err)))
			}
		}
	}

	if n.bus == nil {
		return nil
	}
	return n.bus.Publish(ctx, ports.Event{
		Name: reviewable.EventPendingCountChanged,
		Data: map[string]any{
			"count":         count,
			"recipient_ids": append([]uint64(nil), recipients...),
		},
		OccurredAt: n.now(),
	})
}

func seen(contacted map[uint64]struct{}, id uint64) bool {
	_, ok := contacted[id]
	return ok
}
