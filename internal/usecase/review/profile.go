package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/errs"
)

type scoreTypeConfig struct {
	Weight      float64 `toml:"weight"`
	Description string  `toml:"description"`
}

type kindsConfig struct {
	Enabled []string `toml:"enabled"`
}

// Profile is the review profile file: score types with their weights and the
// kinds the queue accepts.
type Profile struct {
	Version    int                        `toml:"version"`
	ScoreTypes map[string]scoreTypeConfig `toml:"score_types"`
	Kinds      kindsConfig                `toml:"kinds"`
}

func DefaultProfile() Profile {
	return Profile{
		Version: 1,
		ScoreTypes: map[string]scoreTypeConfig{
			"spam":              {Weight: 1.0, Description: "advertising or promotion"},
			"inappropriate":     {Weight: 1.0, Description: "offensive content"},
			"off_topic":         {Weight: 1.0, Description: "not relevant to the topic"},
			"notify_moderators": {Weight: 1.0, Description: "needs staff attention"},
		},
		Kinds: kindsConfig{Enabled: []string{KindFlaggedPost, KindQueuedPost, KindQueuedUser}},
	}
}

func LoadProfile(path string) (Profile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Profile{}, errors.New("profile file is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}
	return ParseProfile(raw)
}

func ParseProfile(raw []byte) (Profile, error) {
	var profile Profile
	if err := toml.Unmarshal(raw, &profile); err != nil {
		return Profile{}, err
	}
	if err := validateProfile(profile); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

func validateProfile(profile Profile) error {
	if profile.Version != 1 {
		return fmt.Errorf("unsupported review profile version %d: expected version = 1", profile.Version)
	}
	if len(profile.ScoreTypes) == 0 {
		return errors.New("score_types must define at least one score type")
	}
	for name, scoreType := range profile.ScoreTypes {
		if strings.TrimSpace(name) == "" {
			return errors.New("score_types: empty name")
		}
		if scoreType.Weight < 0 {
			return errors.New("score_types." + name + ".weight must be >= 0")
		}
	}
	return nil
}

// KindEnabled reports whether name is accepted. An empty list enables all.
func (p Profile) KindEnabled(name string) bool {
	if len(p.Kinds.Enabled) == 0 {
		return true
	}
	for _, item := range p.Kinds.Enabled {
		if strings.TrimSpace(item) == name {
			return true
		}
	}
	return false
}

// ProfileStore holds the active profile and swaps it on reload.
type ProfileStore struct {
	mu      sync.RWMutex
	profile Profile
}

func NewProfileStore(profile Profile) *ProfileStore {
	return &ProfileStore{profile: profile}
}

func (s *ProfileStore) Current() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

func (s *ProfileStore) Replace(profile Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
}

// Weight returns the configured weight of a score type.
func (s *ProfileStore) Weight(scoreType string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	config, ok := s.profile.ScoreTypes[scoreType]
	if !ok {
		return 0, false
	}
	if config.Weight == 0 {
		return 1.0, true
	}
	return config.Weight, true
}

// Watch reloads path whenever it changes until ctx is done. A profile that
// fails to parse is logged and the previous one stays active.
func (s *ProfileStore) Watch(ctx context.Context, path string) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("profile file is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(err, "create profile watcher")
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errs.Wrapf(err, "watch %q", filepath.Dir(path))
	}

	logCtx := logging.WithAttrs(logging.WithComponent(ctx, "review.profile"), slog.String("path", path))
	logging.Info(logCtx, "watching review profile")

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			profile, err := LoadProfile(path)
			if err != nil {
				logging.Warn(logCtx, "review profile reload failed", slog.Any("err", errs.Loggable(err)))
				continue
			}
			s.Replace(profile)
			logging.Info(logCtx, "review profile reloaded", slog.Int("score_types", len(profile.ScoreTypes)))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn(logCtx, "review profile watcher error", slog.Any("err", errs.Loggable(err)))
		}
	}
}
