// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/polyclaw-ai/polyclaw/pkg/ux"
)

func runStatus(cmd *cobra.Command, args []string) {
	a := newApp()
	defer a.close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if !a.store.Exists() {
		ux.Info("No active deployment")
		summary, err := a.ledger.Summary()
		if err == nil && summary.Total > 0 {
			ux.Muted(fmt.Sprintf("%d historical deployment(s) in the ledger (%d active, %d destroyed); see 'polyclaw deployments list'",
				summary.Total, summary.Active, summary.Destroyed))
		}
		return
	}

	cfg, err := a.store.Load()
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	ux.Title("Current deployment")
	ux.KeyValue("Deploy ID", cfg.DeployID)
	ux.KeyValue("App", cfg.AppName)
	ux.KeyValue("Resource group", cfg.ResourceGroup)
	ux.KeyValue("Endpoint", cfg.BaseURL())
	ux.KeyValue("Service port", strconv.Itoa(cfg.ServicePort))
	if !cfg.LastDeployed.IsZero() {
		ux.KeyValue("Last deployed", cfg.LastDeployed.Format("2006-01-02 15:04:05 MST"))
	}

	if a.prov.AppExists(ctx, cfg) {
		ux.Success("In sync: container app exists remotely")
	} else {
		ux.Warning("Out of sync: container app not found remotely; run 'polyclaw deploy' or 'polyclaw remove'")
	}
}
