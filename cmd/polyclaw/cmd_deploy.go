// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/azure"
	"github.com/polyclaw-ai/polyclaw/pkg/ux"
)

// readyTimeout bounds the post-deploy liveness wait. Container Apps can
// take several minutes to route a fresh revision.
const readyTimeout = 5 * time.Minute

func runDeploy(cmd *cobra.Command, args []string) {
	a := newApp()
	defer a.close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	opts := azure.DeployOptions{
		AdminPort:   config.AdminPort,
		ServicePort: config.ServicePort,
		Reconnect:   reconnectFlag,
		OnLine:      ux.Step,
	}
	if adminPortFlag > 0 {
		opts.AdminPort = adminPortFlag
	}
	if servicePortFlag > 0 {
		opts.ServicePort = servicePortFlag
	}

	result, err := a.target.Deploy(ctx, opts)
	if err != nil {
		a.logger.Error("deploy failed", "error", err.Error(), "reconnect", reconnectFlag)
		ux.Error(err.Error())
		os.Exit(1)
	}

	if result.Reconnected {
		ux.Success("Reconnected to " + result.InstanceID)
	} else {
		ux.Success("Provisioned " + result.InstanceID)
	}
	a.logger.Info("deploy succeeded", "instance", result.InstanceID, "reconnected", result.Reconnected)

	ux.Info("Waiting for the service to become ready...")
	if a.target.WaitForReady(ctx, readyTimeout) {
		ux.Success("Service is ready")
	} else {
		ux.Warning("Service did not answer within " + readyTimeout.String() + "; it may still be starting")
	}
	ux.KeyValue("Endpoint", result.BaseURL)
}
