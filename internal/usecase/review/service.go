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

const DefaultSystemActorID uint64 = 1

// Service is the review workflow: item lifecycle, version-gated edits and
// actions, scoring and the moderator queue.
type Service struct {
	repo     ports.ReviewableRepository
	uow      ports.UnitOfWork
	actors   ports.ActorDirectory
	registry *reviewable.Registry

	posts         ports.PostDirectory
	bus           ports.EventBus
	notifier      ports.PendingNotifier
	metrics       *Metrics
	profile       *ProfileStore
	systemActorID uint64
	now           func() time.Time
}

type Option func(*Service)

func WithPostDirectory(posts ports.PostDirectory) Option {
	return func(s *Service) { s.posts = posts }
}

func WithEventBus(bus ports.EventBus) Option {
	return func(s *Service) { s.bus = bus }
}

func WithNotifier(notifier ports.PendingNotifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

func WithMetrics(metrics *Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

func WithProfile(profile *ProfileStore) Option {
	return func(s *Service) { s.profile = profile }
}

func WithSystemActorID(id uint64) Option {
	return func(s *Service) {
		if id > 0 {
			s.systemActorID = id
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the workflow with its store, actor directory and kinds.
func NewService(repo ports.ReviewableRepository, uow ports.UnitOfWork, actors ports.ActorDirectory, registry *reviewable.Registry, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		uow:           uow,
		actors:        actors,
		registry:      registry,
		systemActorID: DefaultSystemActorID,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.profile == nil {
		s.profile = NewProfileStore(DefaultProfile())
	}
	return s
}

func (s *Service) Registry() *reviewable.Registry { return s.registry }

func (s *Service) ready(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return errors.New("reviewable repository is required")
	}
	if s.uow == nil {
		return errors.New("review unit of work is required")
	}
	if s.registry == nil {
		return errors.New("reviewable registry is required")
	}
	return nil
}

func (s *Service) kindFor(item reviewable.Item) (reviewable.Kind, error) {
	kind, ok := s.registry.Lookup(item.Kind)
	if !ok {
		return nil, errs.Wrapf(reviewable.ErrUnknownKind, "kind %q", item.Kind)
	}
	return kind, nil
}

// ResolveActor loads an actor by id.
func (s *Service) ResolveActor(ctx context.Context, id uint64) (reviewable.Actor, error) {
	if s.actors == nil {
		return reviewable.Actor{}, errors.New("actor directory is required")
	}
	if id == 0 {
		return reviewable.Actor{}, reviewable.ErrActorNotFound
	}
	return s.actors.GetActor(ctx, id)
}

// systemActor is who automated transitions run as. A missing account still
// yields an admin actor with the configured id.
func (s *Service) systemActor(ctx context.Context) reviewable.Actor {
	if s.actors != nil {
		actor, err := s.actors.GetActor(ctx, s.systemActorID)
		if err == nil {
			actor.Admin = true
			return actor
		}
	}
	return reviewable.Actor{ID: s.systemActorID, Username: "system", Admin: true}
}

// dispatchQueue buffers side effects raised inside a unit of work. They are
// delivered by flush once the unit of work has committed.
type dispatchQueue struct {
	events []reviewable.Event
	notify []uint64
}

func (q *dispatchQueue) event(event reviewable.Event) {
	q.events = append(q.events, event)
}

func (q *dispatchQueue) pendingChanged(reviewableID uint64) {
	for _, id := range q.notify {
		if id == reviewableID {
			return
		}
	}
	q.notify = append(q.notify, reviewableID)
}

func (s *Service) flush(ctx context.Context, q *dispatchQueue) {
	if q == nil {
		return
	}

	if s.bus != nil {
		for _, event := range q.events {
			if err := s.bus.Publish(ctx, toBusEvent(event, s.now())); err != nil {
				logging.Warn(
					ctx,
					"publish review event failed",
					slog.String("event", event.Name),
					slog.Uint64("reviewable_id", event.ReviewableID),
					slog.Any("err", errs.Loggable(err)),
				)
			}
		}
	}

	if s.notifier != nil {
		for _, id := range q.notify {
			s.notifier.ReviewableChanged(ctx, id)
		}
	}
}

func toBusEvent(event reviewable.Event, now time.Time) ports.Event {
	return ports.Event{
		Name:         event.Name,
		ReviewableID: event.ReviewableID,
		Kind:         event.Kind,
		Status:       event.Status.String(),
		Data:         event.Data,
		OccurredAt:   now,
	}
}

func statusPtr(status reviewable.Status) *reviewable.Status { return &status }
