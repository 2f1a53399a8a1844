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

func runSecret(cmd *cobra.Command, args []string) {
	a := newApp()
	defer a.close()

	secret, err := a.target.GetAdminSecret()
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
	// Bare value on stdout so it can be piped into other tooling.
	fmt.Println(secret)
}

func runSecretResolve(cmd *cobra.Command, args []string) {
	a := newApp()
	defer a.close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	value, err := a.target.ResolveSecretReference(ctx, args[0])
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
	fmt.Println(value)
}
