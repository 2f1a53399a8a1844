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

	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/deploystate"
)

// Remove decommissions the current deployment.
//
// # Description
//
// The container app is deleted best-effort (its resource group is about
// to go anyway; deleting the app first stops billing immediately). The
// resource group delete is dispatched with --no-wait because group
// deletion takes minutes and the operator gains nothing by watching it.
// Local state is removed unconditionally: after Remove returns, the UI
// reports "no deployment" regardless of the remote teardown's eventual
// outcome, and the ledger entry is kept as a destroyed audit record.
//
// # Outputs
//
//   - bool: True if a deployment configuration existed and decommission
//     was initiated; false if there was nothing to remove.
func (p *Provisioner) Remove(ctx context.Context, onLine func(string)) bool {
	say := onLine
	if say == nil {
		say = func(string) {}
	}

	cfg, err := p.store.Load()
	if err != nil {
		say("No deployment configuration found")
		return false
	}

	say("Deleting container app " + cfg.AppName)
	if _, err := p.cli.Run(ctx, "containerapp", "delete",
		"--name", cfg.AppName,
		"--resource-group", cfg.ResourceGroup,
		"--yes"); err != nil {
		say("Warning: " + err.Error())
	}

	say("Deleting resource group " + cfg.ResourceGroup + " (continues in the background)")
	if _, err := p.cli.Run(ctx, "group", "delete",
		"--name", cfg.ResourceGroup,
		"--yes", "--no-wait"); err != nil {
		say("Warning: " + err.Error())
	}

	if err := p.store.Delete(); err != nil {
		say("Warning: " + err.Error())
	}
	if err := p.ledger.MarkDestroyed(cfg.DeployID); err != nil && !errors.Is(err, deploystate.ErrNotFound) {
		say("Warning: " + err.Error())
	}

	say("Deployment removed")
	return true
}
