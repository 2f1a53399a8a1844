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

	"github.com/spf13/cobra"

	"github.com/polyclaw-ai/polyclaw/pkg/ux"
)

func runDeploymentsList(cmd *cobra.Command, args []string) {
	a := newApp()
	defer a.close()

	entries, err := a.ledger.All()
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
	if len(entries) == 0 {
		ux.Info("No deployments recorded")
		return
	}

	for _, e := range entries {
		line := fmt.Sprintf("%s  %-5s  %-9s  created %s",
			e.DeployID, e.Kind, e.Status, e.CreatedAt.Format("2006-01-02 15:04"))
		if e.Config.FQDN != "" {
			line += "  " + e.Config.FQDN
		}
		ux.Info(line)
	}
}

func runDeploymentsAudit(cmd *cobra.Command, args []string) {
	a := newApp()
	defer a.close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := a.auditor.Audit(ctx)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	ux.Title("Resource audit")
	for _, g := range report.Tracked {
		ux.Info(fmt.Sprintf("tracked   %s  (%s, %s)", g.Name, g.DeployID, g.Status))
	}
	for _, g := range report.Orphaned {
		ux.Warning(fmt.Sprintf("orphaned  %s  (%s) not in the local ledger", g.Name, g.DeployID))
	}
	for _, s := range report.Stale {
		ux.Warning(fmt.Sprintf("stale     %s  (%s) recorded locally but gone remotely", s.Group, s.DeployID))
	}
	if len(report.Orphaned) == 0 && len(report.Stale) == 0 {
		ux.Success("Ledger and remote state agree")
	} else if len(report.Stale) > 0 {
		ux.Muted("Run 'polyclaw deployments reconcile' to prune stale ledger state")
	}
}

func runDeploymentsReconcile(cmd *cobra.Command, args []string) {
	a := newApp()
	defer a.close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := a.auditor.Reconcile(ctx)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	for _, pruned := range result.PrunedGroups {
		ux.Info(fmt.Sprintf("pruned %s from deployment %s", pruned.Group, pruned.DeployID))
	}
	for _, id := range result.RemovedEntries {
		ux.Info("removed ledger entry " + id)
	}
	if len(result.PrunedGroups) == 0 && len(result.RemovedEntries) == 0 {
		ux.Success("Nothing to reconcile")
	}
}

func runDeploymentsCleanup(cmd *cobra.Command, args []string) {
	a := newApp()
	defer a.close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := a.auditor.CleanupDeployment(ctx, args[0], ux.Step); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
	ux.Success("Cleanup dispatched for deployment " + args[0])
}
