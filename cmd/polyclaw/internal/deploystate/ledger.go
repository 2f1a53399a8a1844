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
	"sort"
	"sync"
	"time"
)

// LedgerFileName is the deployment ledger document inside the data dir.
const LedgerFileName = "deployments.json"

// ledgerFile is the on-disk shape: {"deployments": {deployId: entry}}.
type ledgerFile struct {
	Deployments map[string]*LedgerEntry `json:"deployments"`
}

// Ledger is the append-mostly record of every deployment made from this
// machine. It outlives the current-deployment configuration.
//
// # Thread Safety
//
// Safe for concurrent use within one process.
type Ledger struct {
	path    string
	mu      sync.Mutex
	entries map[string]*LedgerEntry
	loaded  bool
}

// NewLedger creates a ledger backed by the given file path. The file is
// read lazily on first access; a missing file is an empty ledger.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

func (l *Ledger) load() error {
	if l.loaded {
		return nil
	}
	l.entries = make(map[string]*LedgerEntry)

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.loaded = true
			return nil
		}
		return fmt.Errorf("reading %s: %w", l.path, err)
	}

	var file ledgerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if file.Deployments != nil {
		l.entries = file.Deployments
	}
	l.loaded = true
	return nil
}

func (l *Ledger) persist() error {
	data, err := json.MarshalIndent(ledgerFile{Deployments: l.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling ledger: %w", err)
	}
	return writeFileAtomic(l.path, append(data, '\n'))
}

// Register stores a new entry and persists the ledger.
func (l *Ledger) Register(entry *LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(); err != nil {
		return err
	}
	l.entries[entry.DeployID] = entry
	return l.persist()
}

// Update stores a modified entry. CreatedAt is copied forward from the
// existing entry so the first-write timestamp is immutable; UpdatedAt is
// bumped and never goes backwards.
func (l *Ledger) Update(entry *LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(); err != nil {
		return err
	}

	if existing, ok := l.entries[entry.DeployID]; ok {
		entry.CreatedAt = existing.CreatedAt
		if entry.UpdatedAt.Before(existing.UpdatedAt) {
			entry.UpdatedAt = existing.UpdatedAt
		}
	}
	if now := time.Now().UTC(); now.After(entry.UpdatedAt) {
		entry.UpdatedAt = now
	}

	l.entries[entry.DeployID] = entry
	return l.persist()
}

// Get returns the entry for a deploy id, or ErrNotFound.
func (l *Ledger) Get(deployID string) (*LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(); err != nil {
		return nil, err
	}
	entry, ok := l.entries[deployID]
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}

// MarkDestroyed flips an entry to the destroyed status and persists.
func (l *Ledger) MarkDestroyed(deployID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(); err != nil {
		return err
	}
	entry, ok := l.entries[deployID]
	if !ok {
		return ErrNotFound
	}
	entry.MarkDestroyed()
	return l.persist()
}

// Remove deletes an entry outright. Only the reconcile sweep uses this,
// for entries whose remote resources are all gone; normal decommission
// keeps the entry as an audit record.
func (l *Ledger) Remove(deployID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(); err != nil {
		return false, err
	}
	if _, ok := l.entries[deployID]; !ok {
		return false, nil
	}
	delete(l.entries, deployID)
	return true, l.persist()
}

// All returns every entry, newest first.
func (l *Ledger) All() ([]*LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(); err != nil {
		return nil, err
	}
	out := make([]*LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Active returns all entries with the active status, newest first.
func (l *Ledger) Active() ([]*LedgerEntry, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	out := make([]*LedgerEntry, 0, len(all))
	for _, e := range all {
		if e.Status == StatusActive {
			out = append(out, e)
		}
	}
	return out, nil
}

// ByKind returns all entries for one platform kind, newest first.
func (l *Ledger) ByKind(kind string) ([]*LedgerEntry, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	out := make([]*LedgerEntry, 0, len(all))
	for _, e := range all {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

// LedgerSummary is a count rollup of the ledger for status output.
type LedgerSummary struct {
	Total     int
	Active    int
	Destroyed int
	ByKind    map[string]int
}

// Summary tallies the ledger by status and kind.
func (l *Ledger) Summary() (*LedgerSummary, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	summary := &LedgerSummary{ByKind: make(map[string]int)}
	for _, e := range all {
		summary.Total++
		summary.ByKind[e.Kind]++
		switch e.Status {
		case StatusActive:
			summary.Active++
		case StatusDestroyed:
			summary.Destroyed++
		}
	}
	return summary, nil
}

// CurrentACA returns the most recent active cloud deployment, or nil.
func (l *Ledger) CurrentACA() (*LedgerEntry, error) {
	active, err := l.Active()
	if err != nil {
		return nil, err
	}
	for _, e := range active {
		if e.Kind == KindACA {
			return e, nil
		}
	}
	return nil, nil
}
