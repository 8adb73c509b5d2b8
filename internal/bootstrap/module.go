package bootstrap

import (
	"context"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"modqueue/internal/bootstrap/config"
	"modqueue/internal/bootstrap/database"
	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
	cacheinfra "modqueue/internal/infrastructure/cache"
	"modqueue/internal/infrastructure/events"
	sqliterepo "modqueue/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "modqueue/internal/infrastructure/persistence/sqlite/uow"
	"modqueue/internal/ports"
	"modqueue/internal/usecase/review"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(sqliterepo.NewReviewableRepository),
	fx.Provide(sqliterepo.NewForumRepository),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			cacheinfra.NewKVStore,
			fx.As(new(ports.Cache)),
		),
	),
	fx.Provide(events.NewMemoryBus),
	fx.Provide(provideEventBus),
	fx.Provide(provideMetricsRegistry),
	fx.Provide(
		fx.Annotate(
			review.NewMetrics,
			fx.From(new(*prometheus.Registry)),
		),
	),
	fx.Provide(provideProfile),
	fx.Provide(provideRegistry),
	fx.Provide(provideNotifier),
	fx.Provide(provideReviewService),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideEventBus(lc fx.Lifecycle, ctx context.Context, cfg config.Config, local *events.MemoryBus) (ports.EventBus, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	switch strings.ToLower(cfg.Events.Driver) {
	case "nats":
		bus, err := events.NewNATSBus(logCtx, cfg.Events.URL, cfg.Events.SubjectPrefix)
		if err != nil {
			return nil, errs.Wrap(err, "connect nats")
		}
		lc.Append(fx.Hook{
			OnStop: func(_ context.Context) error { return bus.Close() },
		})
		return events.NewFanout(local, bus), nil
	default:
		return local, nil
	}
}

func provideMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideProfile(ctx context.Context, cfg config.Config) (*review.ProfileStore, error) {
	path := strings.TrimSpace(cfg.Review.ProfileFile)
	if path == "" {
		return review.NewProfileStore(review.DefaultProfile()), nil
	}
	profile, err := review.LoadProfile(path)
	if err != nil {
		return nil, errs.Wrapf(err, "load review profile %q", path)
	}
	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")),
		"review profile loaded",
		slog.String("path", path),
		slog.Int("score_types", len(profile.ScoreTypes)),
	)
	return review.NewProfileStore(profile), nil
}

func provideRegistry(
	cfg config.Config,
	profile *review.ProfileStore,
	reviews *sqliterepo.ReviewableRepository,
	forum *sqliterepo.ForumRepository,
) (*reviewable.Registry, error) {
	return review.NewRegistry(profile.Current(), review.KindDeps{
		Reviews:       reviews,
		Content:       forum,
		Destroyer:     forum,
		Approver:      forum,
		MinPostLength: cfg.Review.MinPostLength,
	})
}

func provideNotifier(
	reviews *sqliterepo.ReviewableRepository,
	forum *sqliterepo.ForumRepository,
	bus ports.EventBus,
	cache ports.Cache,
	metrics *review.Metrics,
) *review.CountNotifier {
	return review.NewCountNotifier(reviews, forum, bus, cache, metrics)
}

type serviceParams struct {
	fx.In

	Config   config.Config
	Reviews  *sqliterepo.ReviewableRepository
	Forum    *sqliterepo.ForumRepository
	UOW      ports.UnitOfWork
	Registry *reviewable.Registry
	Bus      ports.EventBus
	Notifier *review.CountNotifier
	Metrics  *review.Metrics
	Profile  *review.ProfileStore
}

func provideReviewService(p serviceParams) *review.Service {
	return review.NewService(
		p.Reviews,
		p.UOW,
		p.Forum,
		p.Registry,
		review.WithPostDirectory(p.Forum),
		review.WithEventBus(p.Bus),
		review.WithNotifier(p.Notifier),
		review.WithMetrics(p.Metrics),
		review.WithProfile(p.Profile),
		review.WithSystemActorID(p.Config.Review.SystemActorID),
	)
}

type appParams struct {
	fx.In

	Config  config.Config
	DB      *gorm.DB
	Forum   *sqliterepo.ForumRepository
	Profile *review.ProfileStore
	Metrics *prometheus.Registry
	Events  *events.MemoryBus
}

func provideApp(p appParams) *App {
	return &App{
		Config:  p.Config,
		DB:      p.DB,
		Forum:   p.Forum,
		Profile: p.Profile,
		Metrics: p.Metrics,
		Events:  p.Events,
	}
}
