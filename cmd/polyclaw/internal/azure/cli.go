// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/infra/process"
)

// azBinary is the Azure CLI executable name resolved via PATH.
const azBinary = "az"

// CLI is a thin adapter over the az command-line tool.
//
// # Description
//
// All control-plane calls go through this type so tests can substitute a
// process.MockManager and script the platform's responses. Errors carry
// the first line of az's stderr, which is where the CLI puts the human
// readable cause.
type CLI struct {
	proc process.Manager
}

// NewCLI creates an adapter backed by the given process manager.
func NewCLI(proc process.Manager) *CLI {
	return &CLI{proc: proc}
}

// Run executes an az subcommand and returns its stdout.
func (c *CLI) Run(ctx context.Context, args ...string) (string, error) {
	stdout, stderr, _, err := c.proc.Run(ctx, azBinary, args...)
	if err != nil {
		msg := firstLine(stderr)
		if msg == "" {
			msg = err.Error()
		}
		return stdout, fmt.Errorf("az %s: %s", subcommand(args), msg)
	}
	return stdout, nil
}

// RunJSON executes an az subcommand and unmarshals its JSON output into out.
func (c *CLI) RunJSON(ctx context.Context, out any, args ...string) error {
	stdout, err := c.Run(ctx, args...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stdout), out); err != nil {
		return fmt.Errorf("parsing az %s output: %w", subcommand(args), err)
	}
	return nil
}

// Exists runs an az "show"-style probe and reports whether it succeeded.
// A non-zero exit means the resource is absent (or unreadable, which the
// ensure pipeline treats the same way: try to create it).
func (c *CLI) Exists(ctx context.Context, args ...string) bool {
	_, _, exitCode, err := c.proc.Run(ctx, azBinary, args...)
	return err == nil && exitCode == 0
}

// Stream executes an az subcommand forwarding merged output line-by-line.
// Used for long builds whose progress the operator wants to see live.
func (c *CLI) Stream(ctx context.Context, onLine func(string), args ...string) bool {
	return c.proc.RunStreaming(ctx, onLine, azBinary, args...)
}

// subcommand renders the leading non-flag args for error messages,
// e.g. "containerapp create".
func subcommand(args []string) string {
	var parts []string
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			break
		}
		parts = append(parts, a)
		if len(parts) == 3 {
			break
		}
	}
	return strings.Join(parts, " ")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
