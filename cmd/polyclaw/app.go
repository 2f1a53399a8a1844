// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"path/filepath"

	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/azure"
	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/deploystate"
	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/infra/process"
	"github.com/polyclaw-ai/polyclaw/pkg/logging"
)

// app wires the runtime collaborators for one command invocation.
type app struct {
	proc    process.Manager
	store   *deploystate.ConfigStore
	ledger  *deploystate.Ledger
	prov    *azure.Provisioner
	target  DeployTarget
	auditor *azure.Auditor
	logger  *logging.Logger
}

func newApp() *app {
	proc := process.NewDefaultManager()
	store := deploystate.NewConfigStore(filepath.Join(config.DataDir, deploystate.ConfigFileName))
	ledger := deploystate.NewLedger(filepath.Join(config.DataDir, deploystate.LedgerFileName))
	prov := azure.NewProvisioner(proc, store, ledger,
		azure.WithLocation(config.Location),
		azure.WithBuildContext(config.BuildContext),
		azure.WithImageName(config.ImageName))

	return &app{
		proc:    proc,
		store:   store,
		ledger:  ledger,
		prov:    prov,
		target:  newACATarget(proc, prov, store, config.KeyVault),
		auditor: azure.NewAuditor(proc, ledger),
		logger: logging.New(logging.Config{
			Service: "polyclaw",
			LogDir:  config.LogDir,
		}),
	}
}

func (a *app) close() {
	_ = a.logger.Close()
}
