// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/azure"
	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/deploystate"
	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/health"
	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/infra/process"
	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/logstream"
)

// SecretRefPrefix marks a configuration value as a key vault reference,
// e.g. "@kv:bot-token".
const SecretRefPrefix = "@kv:"

// State describes the deploy target lifecycle.
type State string

const (
	StateNotProvisioned  State = "not_provisioned"
	StateProvisioning    State = "provisioning"
	StateActive          State = "active"
	StateReconnecting    State = "reconnecting"
	StateDecommissioning State = "decommissioning"
	StateDestroyed       State = "destroyed"
)

// DeployTarget is the facade the CLI commands drive.
//
// # Description
//
// One implementation per platform; this build ships the Azure Container
// Apps target. Disconnect releases local handles only: the deployed
// service keeps running, its lifecycle is not tied to this process.
type DeployTarget interface {
	Deploy(ctx context.Context, opts azure.DeployOptions) (*azure.Deployment, error)
	StreamLogs(ctx context.Context, onLine func(string)) error
	WaitForReady(ctx context.Context, timeout time.Duration) bool
	Disconnect()
	GetAdminSecret() (string, error)
	ResolveSecretReference(ctx context.Context, ref string) (string, error)
	RemoveDeployment(ctx context.Context, onLine func(string)) bool
	State() State
}

// acaTarget targets Azure Container Apps.
type acaTarget struct {
	proc     process.Manager
	prov     *azure.Provisioner
	store    *deploystate.ConfigStore
	poller   *health.Poller
	keyVault string

	mu     sync.Mutex
	state  State
	stream *logstream.Stream
}

func newACATarget(proc process.Manager, prov *azure.Provisioner, store *deploystate.ConfigStore, keyVault string) *acaTarget {
	state := StateNotProvisioned
	if store.Exists() {
		state = StateActive
	}
	return &acaTarget{
		proc:     proc,
		prov:     prov,
		store:    store,
		poller:   health.NewPoller(),
		keyVault: keyVault,
		state:    state,
	}
}

func (t *acaTarget) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *acaTarget) setState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// Deploy runs the provisioning pipeline, or a reconnect probe when
// opts.Reconnect is set.
func (t *acaTarget) Deploy(ctx context.Context, opts azure.DeployOptions) (*azure.Deployment, error) {
	if opts.Reconnect {
		t.setState(StateReconnecting)
	} else {
		t.setState(StateProvisioning)
	}

	result, err := t.prov.Deploy(ctx, opts)
	if err != nil {
		if t.store.Exists() {
			t.setState(StateActive)
		} else {
			t.setState(StateNotProvisioned)
		}
		return nil, err
	}
	t.setState(StateActive)
	return result, nil
}

// StreamLogs follows the deployed app's log stream until Disconnect or
// context cancellation.
func (t *acaTarget) StreamLogs(ctx context.Context, onLine func(string)) error {
	cfg, err := t.store.Load()
	if err != nil {
		if errors.Is(err, deploystate.ErrNoConfig) {
			return azure.ErrNoDeployment
		}
		return err
	}

	stream, err := logstream.Follow(ctx, t.proc, onLine,
		"az", "containerapp", "logs", "show",
		"--name", cfg.AppName,
		"--resource-group", cfg.ResourceGroup,
		"--follow", "--format", "json")
	if err != nil {
		return fmt.Errorf("starting log stream: %w", err)
	}

	t.mu.Lock()
	t.stream = stream
	t.mu.Unlock()

	stream.Wait()
	return nil
}

// WaitForReady polls the deployed service's liveness endpoint.
func (t *acaTarget) WaitForReady(ctx context.Context, timeout time.Duration) bool {
	cfg, err := t.store.Load()
	if err != nil {
		return false
	}
	return t.poller.WaitForReady(ctx, cfg.BaseURL(), timeout)
}

// Disconnect stops any log stream. The remote service is untouched.
func (t *acaTarget) Disconnect() {
	t.mu.Lock()
	stream := t.stream
	t.stream = nil
	t.mu.Unlock()

	if stream != nil {
		stream.Stop()
	}
}

// GetAdminSecret returns the admin API secret of the current deployment.
func (t *acaTarget) GetAdminSecret() (string, error) {
	cfg, err := t.store.Load()
	if err != nil {
		if errors.Is(err, deploystate.ErrNoConfig) {
			return "", azure.ErrNoDeployment
		}
		return "", err
	}
	if cfg.AdminSecret == "" {
		return "", errors.New("deployment has no admin secret recorded")
	}
	return cfg.AdminSecret, nil
}

// ResolveSecretReference resolves "@kv:<name>" values via the configured
// key vault. Values without the prefix pass through unchanged.
func (t *acaTarget) ResolveSecretReference(ctx context.Context, ref string) (string, error) {
	if !strings.HasPrefix(ref, SecretRefPrefix) {
		return ref, nil
	}
	name := strings.TrimPrefix(ref, SecretRefPrefix)
	if name == "" {
		return "", errors.New("empty secret reference")
	}
	if t.keyVault == "" {
		return "", errors.New("no key vault configured; set key_vault in config.yaml or POLYCLAW_KEY_VAULT")
	}

	var secret struct {
		Value string `json:"value"`
	}
	if err := azure.NewCLI(t.proc).RunJSON(ctx, &secret, "keyvault", "secret", "show",
		"--vault-name", t.keyVault,
		"--name", name,
		"-o", "json"); err != nil {
		return "", err
	}
	return secret.Value, nil
}

// RemoveDeployment decommissions the deployment and clears local state.
func (t *acaTarget) RemoveDeployment(ctx context.Context, onLine func(string)) bool {
	t.Disconnect()
	t.setState(StateDecommissioning)
	removed := t.prov.Remove(ctx, onLine)
	if removed {
		t.setState(StateDestroyed)
	} else {
		t.setState(StateNotProvisioned)
	}
	return removed
}

var _ DeployTarget = (*acaTarget)(nil)
