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
	"strings"

	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/deploystate"
	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/infra/process"
)

// TaggedGroup is one remotely discovered resource group carrying the
// polyclaw deploy tag.
type TaggedGroup struct {
	Name     string
	Tag      string
	DeployID string
	// Status is the ledger status for tracked groups, "" for orphans.
	Status string
}

// StaleGroup is a resource group the ledger records but the platform no
// longer has.
type StaleGroup struct {
	DeployID string
	Group    string
}

// AuditReport classifies remote state against the deployment ledger.
type AuditReport struct {
	// Tracked groups exist remotely and belong to a known deployment.
	Tracked []TaggedGroup
	// Orphaned groups carry the deploy tag but match no ledger entry;
	// they were created by another machine or the ledger was lost.
	Orphaned []TaggedGroup
	// Stale groups are recorded in the ledger but gone remotely.
	Stale []StaleGroup
}

// ReconcileResult reports what the reconcile sweep changed.
type ReconcileResult struct {
	// PrunedGroups were dropped from ledger entries because they no
	// longer exist remotely.
	PrunedGroups []StaleGroup
	// RemovedEntries are deploy ids whose every resource group is gone;
	// their ledger entries were deleted outright.
	RemovedEntries []string
}

// Auditor compares remote tagged resources against the deployment ledger.
//
// # Description
//
// The provisioning pipeline performs no rollback and the decommission
// path is fire-and-forget, so local and remote state can drift: a crash
// can leave tagged resources with no ledger entry, and a completed
// background delete leaves ledger entries pointing at nothing. The
// auditor surfaces both directions; the reconcile sweep repairs the
// local side only and never deletes anything remote.
type Auditor struct {
	cli    *CLI
	ledger *deploystate.Ledger
}

// NewAuditor creates an Auditor backed by the given process manager.
func NewAuditor(proc process.Manager, ledger *deploystate.Ledger) *Auditor {
	return &Auditor{cli: NewCLI(proc), ledger: ledger}
}

// Audit discovers tagged resource groups and classifies them.
func (a *Auditor) Audit(ctx context.Context) (*AuditReport, error) {
	remote, err := a.listTaggedGroups(ctx)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{}
	remoteNames := make(map[string]bool, len(remote))
	for _, g := range remote {
		remoteNames[g.Name] = true
		entry, err := a.ledger.Get(g.DeployID)
		switch {
		case err == nil:
			g.Status = entry.Status
			report.Tracked = append(report.Tracked, g)
		case errors.Is(err, deploystate.ErrNotFound):
			report.Orphaned = append(report.Orphaned, g)
		default:
			return nil, err
		}
	}

	entries, err := a.ledger.All()
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		for _, group := range entry.ResourceGroups {
			if !remoteNames[group] {
				report.Stale = append(report.Stale, StaleGroup{DeployID: entry.DeployID, Group: group})
			}
		}
	}
	return report, nil
}

// Reconcile prunes ledger resource groups that no longer exist remotely
// and removes entries whose groups are all gone. Remote resources are
// never touched.
func (a *Auditor) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	entries, err := a.ledger.All()
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{}
	for _, entry := range entries {
		if len(entry.ResourceGroups) == 0 {
			continue
		}

		var alive []string
		for _, group := range entry.ResourceGroups {
			if a.cli.Exists(ctx, "group", "show", "--name", group) {
				alive = append(alive, group)
				continue
			}
			result.PrunedGroups = append(result.PrunedGroups, StaleGroup{DeployID: entry.DeployID, Group: group})
		}
		if len(alive) == len(entry.ResourceGroups) {
			continue
		}

		if len(alive) == 0 {
			if _, err := a.ledger.Remove(entry.DeployID); err != nil {
				return nil, err
			}
			result.RemovedEntries = append(result.RemovedEntries, entry.DeployID)
			continue
		}

		entry.ResourceGroups = alive
		entry.Touch()
		if err := a.ledger.Update(entry); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// CleanupDeployment deletes every resource group of a historical
// deployment (fire-and-forget) and marks its ledger entry destroyed.
func (a *Auditor) CleanupDeployment(ctx context.Context, deployID string, onLine func(string)) error {
	say := onLine
	if say == nil {
		say = func(string) {}
	}

	entry, err := a.ledger.Get(deployID)
	if err != nil {
		return err
	}

	for _, group := range entry.ResourceGroups {
		say("Deleting resource group " + group + " (continues in the background)")
		if _, err := a.cli.Run(ctx, "group", "delete",
			"--name", group,
			"--yes", "--no-wait"); err != nil {
			say("Warning: " + err.Error())
		}
	}
	return a.ledger.MarkDestroyed(deployID)
}

func (a *Auditor) listTaggedGroups(ctx context.Context) ([]TaggedGroup, error) {
	var groups []struct {
		Name string            `json:"name"`
		Tags map[string]string `json:"tags"`
	}
	if err := a.cli.RunJSON(ctx, &groups, "group", "list",
		"--tag", deploystate.DeployTagKey, "-o", "json"); err != nil {
		return nil, err
	}

	out := make([]TaggedGroup, 0, len(groups))
	for _, g := range groups {
		tag := g.Tags[deploystate.DeployTagKey]
		out = append(out, TaggedGroup{
			Name:     g.Name,
			Tag:      tag,
			DeployID: strings.TrimPrefix(tag, deploystate.TagPrefix+"-"),
		})
	}
	return out, nil
}
