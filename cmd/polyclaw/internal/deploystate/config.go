// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package deploystate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ConfigFileName is the current-deployment document inside the data dir.
const ConfigFileName = "deploy.json"

// ConfigStore reads and writes the current DeploymentConfig.
//
// # Description
//
// The store is constructed with an explicit path so tests use temporary
// directories instead of the real home directory. Writes are atomic
// (temp file + rename on the same filesystem).
//
// # Thread Safety
//
// Safe for concurrent use within one process. Cross-process concurrency
// is a usage error.
type ConfigStore struct {
	path string
	mu   sync.Mutex
}

// NewConfigStore creates a store for the given file path.
func NewConfigStore(path string) *ConfigStore {
	return &ConfigStore{path: path}
}

// DefaultDataDir returns the per-user polyclaw data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".polyclaw"
	}
	return filepath.Join(home, ".polyclaw")
}

// Path returns the file path backing this store.
func (s *ConfigStore) Path() string { return s.path }

// Exists reports whether a deployment configuration is present.
func (s *ConfigStore) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

// Load reads the configuration. Returns ErrNoConfig if absent and
// ErrCorrupted if the file cannot be parsed.
func (s *ConfigStore) Load() (*DeploymentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoConfig
		}
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	var cfg DeploymentConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return &cfg, nil
}

// Save writes the configuration atomically, creating the data directory
// if needed.
func (s *ConfigStore) Save(cfg *DeploymentConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling deployment config: %w", err)
	}
	return writeFileAtomic(s.path, append(data, '\n'))
}

// Delete removes the configuration file. Missing files are not an error;
// decommission deletes unconditionally.
func (s *ConfigStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", s.path, err)
	}
	return nil
}

// writeFileAtomic writes data to path via a temp file and rename so a
// crash mid-write never leaves a torn JSON document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
