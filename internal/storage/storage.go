// Package storage persists engine state as JSON files in a directory,
// one file per key. It is the durable fallback of record when the
// backend is unreachable.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"iot-automation-engine/internal/logger"
)

// ErrNotFound is returned by Load when a key has no persisted state.
var ErrNotFound = errors.New("state key not found")

// Store reads and writes per-key JSON state files.
type Store struct {
	dir    string
	logger *logger.Logger
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string, log *logger.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: log,
	}, nil
}

// Save writes v as JSON under key. The write goes through a temp file
// and rename so a crash mid-write never leaves a truncated state file.
func (s *Store) Save(key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state %q: %w", key, err)
	}

	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state %q: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit state %q: %w", key, err)
	}

	s.logger.Debug("state saved",
		"key", key,
		"bytes", len(data))

	return nil
}

// Load reads the state stored under key into v. A missing key returns
// ErrNotFound.
func (s *Store) Load(key string, v interface{}) error {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read state %q: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse state %q: %w", key, err)
	}
	return nil
}

// Remove deletes the state stored under key. Removing an absent key
// is not an error.
func (s *Store) Remove(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state %q: %w", key, err)
	}

	s.logger.Debug("state removed", "key", key)
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}
