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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/azure"
	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/deploystate"
	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/infra/process"
)

// scriptedAz answers the az calls the facade issues.
type scriptedAz struct {
	appExists bool
	kvSecrets map[string]string
}

func (s *scriptedAz) run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	switch {
	case len(args) >= 2 && args[0] == "containerapp" && args[1] == "show":
		if s.appExists {
			return "{}", "", 0, nil
		}
		return "", "ResourceNotFound", 1, errors.New("exit status 1")
	case len(args) >= 2 && args[0] == "containerapp" && args[1] == "delete":
		return "", "", 0, nil
	case len(args) >= 2 && args[0] == "group" && args[1] == "delete":
		return "", "", 0, nil
	case len(args) >= 3 && args[0] == "keyvault" && args[1] == "secret" && args[2] == "show":
		name := ""
		for i, a := range args {
			if a == "--name" && i+1 < len(args) {
				name = args[i+1]
			}
		}
		if value, ok := s.kvSecrets[name]; ok {
			return `{"value":"` + value + `"}`, "", 0, nil
		}
		return "", "SecretNotFound", 1, errors.New("exit status 1")
	}
	return "", "unexpected command", 1, errors.New("exit status 1")
}

func newTestTarget(t *testing.T, az *scriptedAz, keyVault string) (*acaTarget, *deploystate.ConfigStore) {
	t.Helper()
	dir := t.TempDir()
	store := deploystate.NewConfigStore(filepath.Join(dir, deploystate.ConfigFileName))
	ledger := deploystate.NewLedger(filepath.Join(dir, deploystate.LedgerFileName))
	proc := &process.MockManager{RunFunc: az.run}
	prov := azure.NewProvisioner(proc, store, ledger, azure.WithSettleDelay(0))
	return newACATarget(proc, prov, store, keyVault), store
}

func seedTargetConfig(t *testing.T, store *deploystate.ConfigStore) *deploystate.DeploymentConfig {
	t.Helper()
	cfg := &deploystate.DeploymentConfig{
		DeployID:      "abcd1234",
		DeployTag:     deploystate.DeployTag("abcd1234"),
		ResourceGroup: "polyclaw-rg-test01",
		AppName:       "polyclaw-app-test01",
		FQDN:          "polyclaw-app-test01.eastus.azurecontainerapps.io",
		AdminSecret:   "0123456789abcdef0123456789abcdef",
		AdminPort:     azure.DefaultAdminPort,
		ServicePort:   azure.DefaultServicePort,
	}
	require.NoError(t, store.Save(cfg))
	return cfg
}

func TestACATarget_InitialState(t *testing.T) {
	target, store := newTestTarget(t, &scriptedAz{}, "")
	assert.Equal(t, StateNotProvisioned, target.State())

	seedTargetConfig(t, store)
	target2 := newACATarget(target.proc, target.prov, store, "")
	assert.Equal(t, StateActive, target2.State())
}

func TestACATarget_Deploy_Reconnect(t *testing.T) {
	az := &scriptedAz{appExists: true}
	target, store := newTestTarget(t, az, "")
	cfg := seedTargetConfig(t, store)

	result, err := target.Deploy(context.Background(), azure.DeployOptions{Reconnect: true})
	require.NoError(t, err)

	assert.True(t, result.Reconnected)
	assert.Equal(t, cfg.AppName, result.InstanceID)
	assert.Equal(t, StateActive, target.State())
}

func TestACATarget_Deploy_ReconnectFailureRestoresState(t *testing.T) {
	az := &scriptedAz{appExists: false}
	target, store := newTestTarget(t, az, "")
	seedTargetConfig(t, store)

	_, err := target.Deploy(context.Background(), azure.DeployOptions{Reconnect: true})
	assert.ErrorIs(t, err, azure.ErrDeploymentMissing)
	// Config still exists locally, so the target stays addressable.
	assert.Equal(t, StateActive, target.State())
}

func TestACATarget_GetAdminSecret(t *testing.T) {
	target, store := newTestTarget(t, &scriptedAz{}, "")

	_, err := target.GetAdminSecret()
	assert.ErrorIs(t, err, azure.ErrNoDeployment)

	cfg := seedTargetConfig(t, store)
	secret, err := target.GetAdminSecret()
	require.NoError(t, err)
	assert.Equal(t, cfg.AdminSecret, secret)
}

func TestACATarget_ResolveSecretReference(t *testing.T) {
	az := &scriptedAz{kvSecrets: map[string]string{"bot-token": "tok-42"}}
	target, _ := newTestTarget(t, az, "my-vault")
	ctx := context.Background()

	// Non-references pass through unchanged.
	got, err := target.ResolveSecretReference(ctx, "plain-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", got)

	got, err = target.ResolveSecretReference(ctx, "@kv:bot-token")
	require.NoError(t, err)
	assert.Equal(t, "tok-42", got)

	_, err = target.ResolveSecretReference(ctx, "@kv:missing")
	assert.Error(t, err)

	_, err = target.ResolveSecretReference(ctx, "@kv:")
	assert.Error(t, err)
}

func TestACATarget_ResolveSecretReference_NoVault(t *testing.T) {
	target, _ := newTestTarget(t, &scriptedAz{}, "")

	_, err := target.ResolveSecretReference(context.Background(), "@kv:bot-token")
	assert.ErrorContains(t, err, "no key vault configured")
}

func TestACATarget_RemoveDeployment(t *testing.T) {
	az := &scriptedAz{appExists: true}
	target, store := newTestTarget(t, az, "")
	seedTargetConfig(t, store)

	removed := target.RemoveDeployment(context.Background(), nil)

	assert.True(t, removed)
	assert.Equal(t, StateDestroyed, target.State())
	assert.False(t, store.Exists())
}

func TestACATarget_RemoveDeployment_NothingToRemove(t *testing.T) {
	target, _ := newTestTarget(t, &scriptedAz{}, "")

	assert.False(t, target.RemoveDeployment(context.Background(), nil))
	assert.Equal(t, StateNotProvisioned, target.State())
}

func TestACATarget_StreamLogs_NoDeployment(t *testing.T) {
	target, _ := newTestTarget(t, &scriptedAz{}, "")

	err := target.StreamLogs(context.Background(), nil)
	assert.ErrorIs(t, err, azure.ErrNoDeployment)
}

func TestACATarget_WaitForReady_NoConfig(t *testing.T) {
	target, _ := newTestTarget(t, &scriptedAz{}, "")

	assert.False(t, target.WaitForReady(context.Background(), time.Millisecond))
}

func TestACATarget_DisconnectWithoutStream(t *testing.T) {
	target, _ := newTestTarget(t, &scriptedAz{}, "")
	assert.NotPanics(t, target.Disconnect)
}
