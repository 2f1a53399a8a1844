// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/polyclaw-ai/polyclaw/pkg/ux"
)

func runRemove(cmd *cobra.Command, args []string) {
	a := newApp()
	defer a.close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if a.target.RemoveDeployment(ctx, ux.Step) {
		a.logger.Info("deployment removed")
		ux.Success("Deployment removed; cloud teardown continues in the background")
	} else {
		ux.Info("Nothing to remove")
	}
}
