package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"modqueue/internal/bootstrap/config"
	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/errs"
	"modqueue/internal/httpapi"
	"modqueue/internal/infrastructure/events"
	"modqueue/internal/infrastructure/persistence/schema"
	"modqueue/internal/infrastructure/persistence/sqlite/model"
	sqliterepo "modqueue/internal/infrastructure/persistence/sqlite/repository"
	"modqueue/internal/usecase/review"
)

type App struct {
	Config  config.Config
	DB      *gorm.DB
	Forum   *sqliterepo.ForumRepository
	Profile *review.ProfileStore
	Metrics *prometheus.Registry
	// Events is the in-process side of the event bus; the websocket stream
	// subscribes to it.
	Events  *events.MemoryBus
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration")

	tables := append(model.All(), &schema.Meta{})
	if err := a.DB.WithContext(ctx).AutoMigrate(tables...); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}
	if err := schema.RecordVersion(ctx, a.DB); err != nil {
		return err
	}

	logging.Info(logCtx, "schema migration completed", slog.String("schema_version", schema.Version))
	return nil
}

// Tokens builds the bearer token signer from http.jwt_secret.
func (a *App) Tokens() (*httpapi.Tokens, error) {
	ttl := time.Duration(0)
	if raw := a.Config.HTTP.TokenTTL; raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, errs.Wrapf(err, "parse http.token_ttl %q", raw)
		}
		ttl = parsed
	}
	tokens, err := httpapi.NewTokens(a.Config.HTTP.JWTSecret, ttl)
	if err != nil {
		return nil, errs.Wrap(err, "http.jwt_secret")
	}
	return tokens, nil
}

func (a *App) Close(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	sqlDB, err := a.DB.DB()
	if err != nil {
		return errs.Wrap(err, "get sql db")
	}

	if err := sqlDB.Close(); err != nil {
		return errs.Wrap(err, "close sql db")
	}

	logging.Info(logging.WithAttrs(ctx, slog.String("component", "bootstrap.app")), "database connection closed")
	return nil
}
