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
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/polyclaw-ai/polyclaw/pkg/ux"
)

func runLogs(cmd *cobra.Command, args []string) {
	a := newApp()
	defer a.close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	ux.Muted("Streaming logs (Ctrl-C to stop)...")
	err := a.target.StreamLogs(ctx, func(line string) { fmt.Println(line) })
	a.target.Disconnect()
	if err != nil && ctx.Err() == nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
}
