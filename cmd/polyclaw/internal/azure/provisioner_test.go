// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package azure

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/deploystate"
	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/infra/process"
)

const testFQDN = "polyclaw-app.kindhill-1234.eastus.azurecontainerapps.io"

// fakeCloud scripts az responses and tracks resource state transitions.
//
// Resources are keyed "<kind>/<name>" (group, acr, vnet, storage, share,
// env, link, app). Probes answer from the existing map; creates and
// deletes mutate it, so ensure semantics are observable.
type fakeCloud struct {
	t *testing.T

	mu       sync.Mutex
	existing map[string]bool
	created  []string
	deleted  []string

	// failCmd makes any command whose joined args contain it exit 1.
	failCmd string
	// ignoreVolumeUpdate makes `containerapp update --yaml` silently
	// no-op, exercising the verification warning path.
	ignoreVolumeUpdate bool
	volumesAttached    bool

	groupListJSON string
}

func newFakeCloud(t *testing.T) *fakeCloud {
	return &fakeCloud{t: t, existing: make(map[string]bool), groupListJSON: "[]"}
}

func (f *fakeCloud) manager() *process.MockManager {
	return &process.MockManager{
		RunFunc: f.run,
		RunStreamingFunc: func(ctx context.Context, onLine func(string), name string, args ...string) bool {
			cmd := strings.Join(args, " ")
			if f.failCmd != "" && strings.Contains(cmd, f.failCmd) {
				return false
			}
			if onLine != nil {
				onLine("Step 1/1 : FROM scratch")
			}
			return true
		},
	}
}

func (f *fakeCloud) exists(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[key]
}

func (f *fakeCloud) create(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existing[key] = true
	f.created = append(f.created, key)
}

func (f *fakeCloud) remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.existing, key)
	f.deleted = append(f.deleted, key)
}

func (f *fakeCloud) probe(key string) (string, string, int, error) {
	if f.exists(key) {
		return "{}", "", 0, nil
	}
	return "", "ResourceNotFound", 1, errors.New("exit status 1")
}

func okResult(stdout string) (string, string, int, error) { return stdout, "", 0, nil }

func (f *fakeCloud) run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	cmd := strings.Join(args, " ")
	if f.failCmd != "" && strings.Contains(cmd, f.failCmd) {
		return "", "operation failed", 1, errors.New("exit status 1")
	}

	switch {
	case strings.HasPrefix(cmd, "group show"):
		return f.probe("group/" + flagVal(args, "--name"))
	case strings.HasPrefix(cmd, "group create"):
		f.create("group/" + flagVal(args, "--name"))
		return okResult("{}")
	case strings.HasPrefix(cmd, "group delete"):
		f.remove("group/" + flagVal(args, "--name"))
		return okResult("")
	case strings.HasPrefix(cmd, "group list"):
		return okResult(f.groupListJSON)

	case strings.HasPrefix(cmd, "acr credential show"):
		return okResult(`{"username":"polyclawacr","passwords":[{"value":"registry-pass"}]}`)
	case strings.HasPrefix(cmd, "acr show"):
		return f.probe("acr/" + flagVal(args, "--name"))
	case strings.HasPrefix(cmd, "acr create"):
		f.create("acr/" + flagVal(args, "--name"))
		return okResult("{}")

	case strings.HasPrefix(cmd, "network vnet subnet show"):
		return okResult(`{"id":"/subscriptions/sub/resourceGroups/rg/subnets/polyclaw-subnet"}`)
	case strings.HasPrefix(cmd, "network vnet subnet update"):
		return okResult("{}")
	case strings.HasPrefix(cmd, "network vnet show"):
		return f.probe("vnet/" + flagVal(args, "--name"))
	case strings.HasPrefix(cmd, "network vnet create"):
		f.create("vnet/" + flagVal(args, "--name"))
		return okResult("{}")

	case strings.HasPrefix(cmd, "storage account keys list"):
		return okResult(`[{"value":"storage-key-1"}]`)
	case strings.HasPrefix(cmd, "storage account network-rule add"):
		return okResult("{}")
	case strings.HasPrefix(cmd, "storage account show"):
		return f.probe("storage/" + flagVal(args, "--name"))
	case strings.HasPrefix(cmd, "storage account create"):
		f.create("storage/" + flagVal(args, "--name"))
		return okResult("{}")
	case strings.HasPrefix(cmd, "storage share-rm show"):
		return f.probe("share/" + flagVal(args, "--name"))
	case strings.HasPrefix(cmd, "storage share-rm create"):
		f.create("share/" + flagVal(args, "--name"))
		return okResult("{}")

	case strings.HasPrefix(cmd, "containerapp env storage show"):
		return f.probe("link/" + flagVal(args, "--storage-name"))
	case strings.HasPrefix(cmd, "containerapp env storage set"):
		f.create("link/" + flagVal(args, "--storage-name"))
		return okResult("{}")
	case strings.HasPrefix(cmd, "containerapp env show"):
		return f.probe("env/" + flagVal(args, "--name"))
	case strings.HasPrefix(cmd, "containerapp env create"):
		f.create("env/" + flagVal(args, "--name"))
		return okResult("{}")

	case strings.HasPrefix(cmd, "containerapp revision list"):
		return okResult(`[{"name":"rev-0001","properties":{"active":true}}]`)
	case strings.HasPrefix(cmd, "containerapp revision restart"):
		return okResult("")
	case strings.HasPrefix(cmd, "containerapp delete"):
		f.remove("app/" + flagVal(args, "--name"))
		return okResult("")
	case strings.HasPrefix(cmd, "containerapp update"):
		if !f.ignoreVolumeUpdate {
			f.mu.Lock()
			f.volumesAttached = true
			f.mu.Unlock()
		}
		return okResult("{}")
	case strings.HasPrefix(cmd, "containerapp create"):
		f.create("app/" + flagVal(args, "--name"))
		return okResult("{}")
	case strings.HasPrefix(cmd, "containerapp show"):
		appName := flagVal(args, "--name")
		if !f.exists("app/" + appName) {
			return "", "ResourceNotFound", 1, errors.New("exit status 1")
		}
		if flagVal(args, "-o") == "json" {
			return okResult(f.appSpecJSON(appName))
		}
		return okResult("{}")
	}

	f.t.Errorf("fakeCloud: unexpected command: az %s", cmd)
	return "", "unexpected command", 1, errors.New("exit status 1")
}

func (f *fakeCloud) appSpecJSON(appName string) string {
	f.mu.Lock()
	attached := f.volumesAttached
	f.mu.Unlock()

	volumes := "[]"
	if attached {
		volumes = `[{"name":"polyclaw-data-volume","storageType":"AzureFile","storageName":"polyclawdata"}]`
	}
	return fmt.Sprintf(`{
		"name": %q,
		"properties": {
			"configuration": {"ingress": {"fqdn": %q}},
			"template": {
				"containers": [{"name": "polyclaw", "image": "img:latest"}],
				"volumes": %s
			}
		}
	}`, appName, testFQDN, volumes)
}

func flagVal(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func newTestProvisioner(t *testing.T, fake *fakeCloud) (*Provisioner, *deploystate.ConfigStore, *deploystate.Ledger) {
	t.Helper()
	return newTestProvisionerWith(t, fake, fake.manager())
}

func newTestProvisionerWith(t *testing.T, fake *fakeCloud, mock *process.MockManager) (*Provisioner, *deploystate.ConfigStore, *deploystate.Ledger) {
	t.Helper()
	dir := t.TempDir()
	store := deploystate.NewConfigStore(filepath.Join(dir, deploystate.ConfigFileName))
	ledger := deploystate.NewLedger(filepath.Join(dir, deploystate.LedgerFileName))
	p := NewProvisioner(mock, store, ledger, WithSettleDelay(0))
	return p, store, ledger
}

// =============================================================================
// UNIT TESTS: fresh provisioning
// =============================================================================

func TestProvisioner_Deploy_FreshCreatesEverything(t *testing.T) {
	fake := newFakeCloud(t)
	p, store, ledger := newTestProvisioner(t, fake)

	var lines []string
	result, err := p.Deploy(context.Background(), DeployOptions{OnLine: func(s string) { lines = append(lines, s) }})
	require.NoError(t, err)

	assert.Equal(t, "https://"+testFQDN, result.BaseURL)
	assert.False(t, result.Reconnected)
	assert.True(t, fake.volumesAttached)
	assert.NotEmpty(t, lines)

	// Dependency order of creations.
	wantOrder := []string{"group/", "acr/", "vnet/", "storage/", "share/", "env/", "link/", "app/"}
	require.Len(t, fake.created, len(wantOrder))
	for i, prefix := range wantOrder {
		assert.True(t, strings.HasPrefix(fake.created[i], prefix),
			"created[%d] = %s, want prefix %s", i, fake.created[i], prefix)
	}

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cfg.ResourceGroup, "polyclaw-rg-"))
	assert.True(t, strings.HasPrefix(cfg.RegistryName, "polyclawacr"))
	assert.Equal(t, cfg.RegistryName+".azurecr.io", cfg.RegistryServer)
	assert.Equal(t, SubnetName, cfg.SubnetName)
	assert.Equal(t, FileShareName, cfg.FileShare)
	assert.Equal(t, StorageLinkName, cfg.StorageLinkName)
	assert.Equal(t, testFQDN, cfg.FQDN)
	assert.Equal(t, DefaultAdminPort, cfg.AdminPort)
	assert.Equal(t, DefaultServicePort, cfg.ServicePort)
	assert.Len(t, cfg.AdminSecret, 32)
	assert.False(t, cfg.LastDeployed.IsZero())

	entry, err := ledger.Get(cfg.DeployID)
	require.NoError(t, err)
	assert.Equal(t, deploystate.StatusActive, entry.Status)
	assert.Equal(t, deploystate.KindACA, entry.Kind)
	assert.Equal(t, []string{cfg.ResourceGroup}, entry.ResourceGroups)
	assert.Equal(t, testFQDN, entry.Config.FQDN)
	assert.Len(t, entry.Resources, 8)
}

func TestProvisioner_Deploy_SecondRunReusesNames(t *testing.T) {
	fake := newFakeCloud(t)
	p, store, _ := newTestProvisioner(t, fake)

	_, err := p.Deploy(context.Background(), DeployOptions{})
	require.NoError(t, err)
	first, err := store.Load()
	require.NoError(t, err)

	_, err = p.Deploy(context.Background(), DeployOptions{})
	require.NoError(t, err)
	second, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, first.DeployID, second.DeployID)
	assert.Equal(t, first.ResourceGroup, second.ResourceGroup)
	assert.Equal(t, first.AppName, second.AppName)
	assert.Equal(t, first.AdminSecret, second.AdminSecret)

	// Redeploy is full replacement: the app was deleted and recreated,
	// everything else survived the probes.
	assert.Contains(t, fake.deleted, "app/"+first.AppName)
	groupCreates := 0
	for _, key := range fake.created {
		if strings.HasPrefix(key, "group/") {
			groupCreates++
		}
	}
	assert.Equal(t, 1, groupCreates)
}

func TestProvisioner_Deploy_StepFailureIsScoped(t *testing.T) {
	fake := newFakeCloud(t)
	fake.failCmd = "storage account create"
	p, store, _ := newTestProvisioner(t, fake)

	_, err := p.Deploy(context.Background(), DeployOptions{})
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "storage account", stepErr.Step)

	// Names persisted despite the failure, so a rerun resumes.
	require.True(t, store.Exists())
	cfg, err := store.Load()
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.ResourceGroup)

	// Rerun with the fault cleared succeeds and keeps the names.
	fake.failCmd = ""
	result, err := p.Deploy(context.Background(), DeployOptions{})
	require.NoError(t, err)
	assert.Equal(t, "https://"+testFQDN, result.BaseURL)

	after, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg.ResourceGroup, after.ResourceGroup)
}

func TestProvisioner_Deploy_PortOverrides(t *testing.T) {
	fake := newFakeCloud(t)
	p, store, _ := newTestProvisioner(t, fake)

	_, err := p.Deploy(context.Background(), DeployOptions{AdminPort: 9000, ServicePort: 4000})
	require.NoError(t, err)

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.AdminPort)
	assert.Equal(t, 4000, cfg.ServicePort)
}

// =============================================================================
// UNIT TESTS: reconnect mode
// =============================================================================

func seedConfig(t *testing.T, store *deploystate.ConfigStore) *deploystate.DeploymentConfig {
	t.Helper()
	id := deploystate.GenerateDeployID()
	cfg := &deploystate.DeploymentConfig{
		DeployID:      id,
		DeployTag:     deploystate.DeployTag(id),
		ResourceGroup: "polyclaw-rg-seed01",
		AppName:       "polyclaw-app-seed01",
		FQDN:          testFQDN,
		AdminPort:     DefaultAdminPort,
		ServicePort:   DefaultServicePort,
		AdminSecret:   "0123456789abcdef0123456789abcdef",
	}
	require.NoError(t, store.Save(cfg))
	return cfg
}

func TestProvisioner_Deploy_Reconnect(t *testing.T) {
	fake := newFakeCloud(t)
	mock := fake.manager()
	p, store, _ := newTestProvisionerWith(t, fake, mock)

	cfg := seedConfig(t, store)
	fake.existing["app/"+cfg.AppName] = true

	result, err := p.Deploy(context.Background(), DeployOptions{Reconnect: true})
	require.NoError(t, err)
	assert.True(t, result.Reconnected)
	assert.Equal(t, "https://"+testFQDN, result.BaseURL)
	assert.Equal(t, cfg.AppName, result.InstanceID)

	// Reconnect touches nothing: only existence probes were issued.
	for _, call := range mock.GetCalls() {
		require.GreaterOrEqual(t, len(call.Args), 2)
		assert.Equal(t, "containerapp", call.Args[0])
		assert.Equal(t, "show", call.Args[1])
	}
}

func TestProvisioner_Deploy_ReconnectWithoutConfig(t *testing.T) {
	fake := newFakeCloud(t)
	p, _, _ := newTestProvisioner(t, fake)

	_, err := p.Deploy(context.Background(), DeployOptions{Reconnect: true})
	assert.ErrorIs(t, err, ErrNoDeployment)
}

func TestProvisioner_Deploy_ReconnectRemoteGone(t *testing.T) {
	fake := newFakeCloud(t)
	p, store, _ := newTestProvisioner(t, fake)
	seedConfig(t, store)

	_, err := p.Deploy(context.Background(), DeployOptions{Reconnect: true})
	assert.ErrorIs(t, err, ErrDeploymentMissing)
}
