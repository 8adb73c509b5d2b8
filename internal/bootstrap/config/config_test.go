package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load(context.Background(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Name != "modqueue" || cfg.Database.Driver != "sqlite" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Review.MinPostLength != 20 || cfg.Review.SystemActorID != 1 || cfg.Review.AutoHandleQueuedAge != 0 {
		t.Fatalf("review defaults = %+v", cfg.Review)
	}
	if cfg.Events.Driver != "memory" || cfg.HTTP.Addr != ":8080" {
		t.Fatalf("transport defaults = %+v / %+v", cfg.Events, cfg.HTTP)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte(`
database:
  dsn: ` + filepath.Join(dir, "queue.sqlite") + `
review:
  auto_handle_queued_age: 3
  sweep_schedule: "@every 10m"
events:
  driver: nats
  url: nats://127.0.0.1:4222
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MQ_HTTP_ADDR", ":9999")

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Review.AutoHandleQueuedAge != 3 || cfg.Review.SweepSchedule != "@every 10m" {
		t.Fatalf("review = %+v", cfg.Review)
	}
	if cfg.Events.Driver != "nats" || cfg.Events.URL != "nats://127.0.0.1:4222" {
		t.Fatalf("events = %+v", cfg.Events)
	}
	if cfg.HTTP.Addr != ":9999" {
		t.Fatalf("http.addr = %q, want env override", cfg.HTTP.Addr)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "x.sqlite"},
		Review:   ReviewConfig{SystemActorID: 1},
		Events:   EventsConfig{Driver: "memory"},
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing dsn", mutate: func(c *Config) { c.Database.DSN = " " }, wantErr: true},
		{name: "negative age", mutate: func(c *Config) { c.Review.AutoHandleQueuedAge = -1 }, wantErr: true},
		{name: "no system actor", mutate: func(c *Config) { c.Review.SystemActorID = 0 }, wantErr: true},
		{name: "nats without url", mutate: func(c *Config) { c.Events.Driver = "nats" }, wantErr: true},
		{name: "unknown events driver", mutate: func(c *Config) { c.Events.Driver = "kafka" }, wantErr: true},
		{name: "json logs", mutate: func(c *Config) { c.App.LogFormat = "JSON" }},
		{name: "unknown log format", mutate: func(c *Config) { c.App.LogFormat = "logfmt" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
