package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FilePort keeps the preferences in a JSON file.
type FilePort struct {
	mu   sync.Mutex
	path string
}

func NewFilePort(path string) *FilePort {
	return &FilePort{path: path}
}

func (p *FilePort) Load(_ context.Context) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences file: %w", err)
	}
	values := map[string]string{}
	if err := json.Unmarshal(b, &values); err != nil {
		return nil, fmt.Errorf("failed to parse preferences file: %w", err)
	}
	return values, nil
}

// Save replaces the file atomically.
func (p *FilePort) Save(_ context.Context, values map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".preferences-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("failed to replace preferences file: %w", err)
	}
	return nil
}

// MemoryPort keeps the preferences in memory. Used by tests and when no
// preferences path is configured.
type MemoryPort struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryPort(initial map[string]string) *MemoryPort {
	p := &MemoryPort{values: map[string]string{}}
	for k, v := range initial {
		p.values[k] = v
	}
	return p
}

func (p *MemoryPort) Load(_ context.Context) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out, nil
}

func (p *MemoryPort) Save(_ context.Context, values map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = make(map[string]string, len(values))
	for k, v := range values {
		p.values[k] = v
	}
	return nil
}
