package config

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/errs"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Review   ReviewConfig   `mapstructure:"review"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Events   EventsConfig   `mapstructure:"events"`
}

type AppConfig struct {
	Name      string `mapstructure:"name"`
	Env       string `mapstructure:"env"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type ReviewConfig struct {
	// AutoHandleQueuedAge is in days; 0 disables the stale sweep.
	AutoHandleQueuedAge int    `mapstructure:"auto_handle_queued_age"`
	SweepSchedule       string `mapstructure:"sweep_schedule"`
	ProfileFile         string `mapstructure:"profile_file"`
	MinPostLength       int    `mapstructure:"min_post_length"`
	SystemActorID       uint64 `mapstructure:"system_actor_id"`
}

type HTTPConfig struct {
	Addr      string `mapstructure:"addr"`
	JWTSecret string `mapstructure:"jwt_secret"`
	// TokenTTL is a Go duration string such as "24h".
	TokenTTL string `mapstructure:"token_ttl"`
}

type EventsConfig struct {
	Driver        string `mapstructure:"driver"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			// Keep default and env-backed config when no file is provided.
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("events_driver", cfg.Events.Driver),
	)

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if c.Review.AutoHandleQueuedAge < 0 {
		return errors.New("review.auto_handle_queued_age must not be negative")
	}
	if c.Review.MinPostLength < 0 {
		return errors.New("review.min_post_length must not be negative")
	}
	if c.Review.SystemActorID == 0 {
		return errors.New("review.system_actor_id is required")
	}
	switch strings.ToLower(c.App.LogFormat) {
	case "text", "json", "":
	default:
		return errs.Wrapf(errors.New("unsupported log format"), "app.log_format %q", c.App.LogFormat)
	}
	switch strings.ToLower(c.Events.Driver) {
	case "memory", "":
	case "nats":
		if strings.TrimSpace(c.Events.URL) == "" {
			return errors.New("events.url is required for the nats driver")
		}
	default:
		return errs.Wrapf(errors.New("unsupported events driver"), "events.driver %q", c.Events.Driver)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "modqueue")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".modqueue/state/modqueue.sqlite")
	v.SetDefault("review.auto_handle_queued_age", 0)
	v.SetDefault("review.sweep_schedule", "@every 1h")
	v.SetDefault("review.profile_file", "")
	v.SetDefault("review.min_post_length", 20)
	v.SetDefault("review.system_actor_id", 1)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.jwt_secret", "")
	v.SetDefault("http.token_ttl", "24h")
	v.SetDefault("events.driver", "memory")
	v.SetDefault("events.url", "")
	v.SetDefault("events.subject_prefix", "modqueue")
}
