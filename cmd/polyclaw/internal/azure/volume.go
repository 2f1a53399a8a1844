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
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/deploystate"
)

// VolumeMountPath is where the Azure File share appears inside every
// runtime container.
const VolumeMountPath = "/data"

// volumeName identifies the injected volume within the app template.
const volumeName = "polyclaw-data-volume"

// DefaultSettleDelay is how long the pipeline waits after restarting the
// active revision before declaring the mount live.
const DefaultSettleDelay = 15 * time.Second

// reconcileVolumes attaches the file share to the running app.
//
// # Description
//
// The create call cannot express Azure File volumes, so the pass exports
// the app's full spec, injects template.volumes plus a volumeMounts entry
// into every container, and writes the spec back with update --yaml. The
// update call can silently no-op on this platform, so the spec is re-read
// and the volume's storageName compared; a mismatch is reported as a
// warning rather than a failure because the app itself is healthy.
func (p *Provisioner) reconcileVolumes(ctx context.Context, cfg *deploystate.DeploymentConfig, entry *deploystate.LedgerEntry, say func(string)) error {
	say("Attaching persistent volume to " + cfg.AppName)

	var spec map[string]any
	if err := p.cli.RunJSON(ctx, &spec, "containerapp", "show",
		"--name", cfg.AppName,
		"--resource-group", cfg.ResourceGroup,
		"-o", "json"); err != nil {
		return err
	}
	if err := injectVolume(spec, cfg.StorageLinkName); err != nil {
		return err
	}

	data, err := yaml.Marshal(spec)
	if err != nil {
		return fmt.Errorf("encoding app spec: %w", err)
	}
	specPath, err := writeTempSpec(data)
	if err != nil {
		return err
	}
	defer os.Remove(specPath)

	if _, err := p.cli.Run(ctx, "containerapp", "update",
		"--name", cfg.AppName,
		"--resource-group", cfg.ResourceGroup,
		"--yaml", specPath); err != nil {
		return err
	}

	if got := p.readVolumeStorageName(ctx, cfg); got != cfg.StorageLinkName {
		say(fmt.Sprintf("Warning: volume verification expected storage %q, found %q", cfg.StorageLinkName, got))
	}
	return nil
}

// restartActiveRevision restarts the app's active revision and waits a
// fixed settle delay. Without the restart the new mount never becomes
// active, so this step is mandatory after volume reconciliation.
func (p *Provisioner) restartActiveRevision(ctx context.Context, cfg *deploystate.DeploymentConfig, entry *deploystate.LedgerEntry, say func(string)) error {
	var revisions []struct {
		Name       string `json:"name"`
		Properties struct {
			Active bool `json:"active"`
		} `json:"properties"`
	}
	if err := p.cli.RunJSON(ctx, &revisions, "containerapp", "revision", "list",
		"--name", cfg.AppName,
		"--resource-group", cfg.ResourceGroup,
		"-o", "json"); err != nil {
		return err
	}

	active := ""
	for _, r := range revisions {
		if r.Properties.Active {
			active = r.Name
			break
		}
	}
	if active == "" {
		return errors.New("no active revision found")
	}

	say("Restarting revision " + active)
	if _, err := p.cli.Run(ctx, "containerapp", "revision", "restart",
		"--name", cfg.AppName,
		"--resource-group", cfg.ResourceGroup,
		"--revision", active); err != nil {
		return err
	}

	p.settle(ctx)
	return nil
}

func (p *Provisioner) settle(ctx context.Context) {
	if p.settleDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(p.settleDelay):
	}
}

// injectVolume amends an exported app spec in place: one AzureFile volume
// in template.volumes and a matching mount in every container.
func injectVolume(spec map[string]any, storageName string) error {
	properties, ok := spec["properties"].(map[string]any)
	if !ok {
		return errors.New("app spec has no properties object")
	}
	template, ok := properties["template"].(map[string]any)
	if !ok {
		return errors.New("app spec has no template object")
	}

	template["volumes"] = []any{
		map[string]any{
			"name":        volumeName,
			"storageType": "AzureFile",
			"storageName": storageName,
		},
	}

	containers, ok := template["containers"].([]any)
	if !ok || len(containers) == 0 {
		return errors.New("app spec has no containers")
	}
	for _, c := range containers {
		container, ok := c.(map[string]any)
		if !ok {
			continue
		}
		container["volumeMounts"] = []any{
			map[string]any{
				"volumeName": volumeName,
				"mountPath":  VolumeMountPath,
			},
		}
	}
	return nil
}

// readVolumeStorageName re-reads the app spec and returns the first
// volume's storageName, or "" if absent or unreadable.
func (p *Provisioner) readVolumeStorageName(ctx context.Context, cfg *deploystate.DeploymentConfig) string {
	var spec map[string]any
	if err := p.cli.RunJSON(ctx, &spec, "containerapp", "show",
		"--name", cfg.AppName,
		"--resource-group", cfg.ResourceGroup,
		"-o", "json"); err != nil {
		return ""
	}

	properties, _ := spec["properties"].(map[string]any)
	template, _ := properties["template"].(map[string]any)
	volumes, _ := template["volumes"].([]any)
	if len(volumes) == 0 {
		return ""
	}
	volume, _ := volumes[0].(map[string]any)
	name, _ := volume["storageName"].(string)
	return name
}

func writeTempSpec(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "polyclaw-app-*.yaml")
	if err != nil {
		return "", fmt.Errorf("creating spec file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing spec file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing spec file: %w", err)
	}
	return tmp.Name(), nil
}
