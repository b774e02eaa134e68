// Package settings holds the user's display preferences behind a small
// persistence port.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/vbonduro/homeinv/internal/validate"
)

const (
	KeyDarkMode = "darkMode"
	KeyViewMode = "viewMode"
	KeyTheme    = "umaTheme"
)

type ViewMode string

const (
	ViewGrid ViewMode = "grid"
	ViewList ViewMode = "list"
)

func (v ViewMode) Valid() bool {
	return v == ViewGrid || v == ViewList
}

// Port persists preference values as plain strings.
type Port interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, values map[string]string) error
}

// Preferences is the typed view of the stored values.
type Preferences struct {
	DarkMode bool     `json:"darkMode"`
	ViewMode ViewMode `json:"viewMode"`
	Theme    string   `json:"umaTheme"`
}

// Store caches the preferences in memory and writes every change through to
// its port. Create one at startup and share it.
type Store struct {
	mu     sync.RWMutex
	port   Port
	values map[string]string
	logger *slog.Logger
}

// Open loads the stored values from port.
func Open(ctx context.Context, port Port, logger *slog.Logger) (*Store, error) {
	values, err := port.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return &Store{port: port, values: values, logger: logger}, nil
}

func (s *Store) DarkMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[KeyDarkMode] == "true"
}

func (s *Store) SetDarkMode(ctx context.Context, on bool) error {
	return s.set(ctx, map[string]string{KeyDarkMode: strconv.FormatBool(on)})
}

// ViewMode returns the stored view mode, grid when unset or unknown.
func (s *Store) ViewMode() ViewMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := ViewMode(s.values[KeyViewMode])
	if !v.Valid() {
		return ViewGrid
	}
	return v
}

func (s *Store) SetViewMode(ctx context.Context, v ViewMode) error {
	if !v.Valid() {
		return fmt.Errorf("unknown view mode %q", v)
	}
	return s.set(ctx, map[string]string{KeyViewMode: string(v)})
}

func (s *Store) Theme() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[KeyTheme]
}

func (s *Store) SetTheme(ctx context.Context, theme string) error {
	return s.set(ctx, map[string]string{KeyTheme: theme})
}

func (s *Store) All() Preferences {
	return Preferences{DarkMode: s.DarkMode(), ViewMode: s.ViewMode(), Theme: s.Theme()}
}

// Update writes every field of p.
func (s *Store) Update(ctx context.Context, p Preferences) error {
	if !p.ViewMode.Valid() {
		return validate.FieldError(KeyViewMode, fmt.Sprintf("unknown view mode %q", p.ViewMode))
	}
	return s.set(ctx, map[string]string{
		KeyDarkMode: strconv.FormatBool(p.DarkMode),
		KeyViewMode: string(p.ViewMode),
		KeyTheme:    p.Theme,
	})
}

func (s *Store) set(ctx context.Context, changes map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]string, len(s.values)+len(changes))
	for k, v := range s.values {
		next[k] = v
	}
	for k, v := range changes {
		next[k] = v
	}
	if err := s.port.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	s.values = next
	s.logger.Debug("preferences saved", "keys", len(changes))
	return nil
}
