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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/infra/process"
)

func TestCLI_Run_ErrorCarriesStderrFirstLine(t *testing.T) {
	mock := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) (string, string, int, error) {
			return "", "(ResourceNotFound) app missing\nFull traceback follows\nmore noise", 1, errors.New("exit status 1")
		},
	}
	cli := NewCLI(mock)

	_, err := cli.Run(context.Background(), "containerapp", "show", "--name", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "az containerapp show")
	assert.Contains(t, err.Error(), "(ResourceNotFound) app missing")
	assert.NotContains(t, err.Error(), "traceback")
}

func TestCLI_Run_ErrorWithoutStderr(t *testing.T) {
	mock := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) (string, string, int, error) {
			return "", "", -1, errors.New("executable file not found")
		},
	}
	cli := NewCLI(mock)

	_, err := cli.Run(context.Background(), "group", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executable file not found")
}

func TestCLI_RunJSON(t *testing.T) {
	mock := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) (string, string, int, error) {
			return `{"id":"/subscriptions/s/x"}`, "", 0, nil
		},
	}
	cli := NewCLI(mock)

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, cli.RunJSON(context.Background(), &out, "network", "vnet", "subnet", "show", "-o", "json"))
	assert.Equal(t, "/subscriptions/s/x", out.ID)
}

func TestCLI_RunJSON_MalformedOutput(t *testing.T) {
	mock := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) (string, string, int, error) {
			return "WARNING: not json", "", 0, nil
		},
	}
	cli := NewCLI(mock)

	var out map[string]any
	err := cli.RunJSON(context.Background(), &out, "group", "list")
	assert.ErrorContains(t, err, "parsing az group list output")
}

func TestCLI_Exists(t *testing.T) {
	mock := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) (string, string, int, error) {
			if args[len(args)-1] == "present" {
				return "{}", "", 0, nil
			}
			return "", "not found", 1, errors.New("exit status 1")
		},
	}
	cli := NewCLI(mock)

	assert.True(t, cli.Exists(context.Background(), "group", "show", "--name", "present"))
	assert.False(t, cli.Exists(context.Background(), "group", "show", "--name", "absent"))
}

func TestSubcommand(t *testing.T) {
	assert.Equal(t, "containerapp env create", subcommand([]string{"containerapp", "env", "create", "--name", "x"}))
	assert.Equal(t, "group show", subcommand([]string{"group", "show", "--name", "x"}))
	assert.Equal(t, "", subcommand([]string{"--version"}))
}

func TestNewResourceNames_SharedSuffix(t *testing.T) {
	n := newResourceNames()

	sfx := n.ResourceGroup[len("polyclaw-rg-"):]
	assert.Len(t, sfx, 6)
	assert.Equal(t, "polyclawacr"+sfx, n.Registry)
	assert.Equal(t, "polyclawsa"+sfx, n.StorageAccount)
	assert.Equal(t, "polyclaw-vnet-"+sfx, n.Vnet)
	assert.Equal(t, "polyclaw-env-"+sfx, n.Environment)
	assert.Equal(t, "polyclaw-app-"+sfx, n.App)

	// Storage account names must stay within Azure's 24-char limit.
	assert.LessOrEqual(t, len(n.StorageAccount), 24)
}

func TestGenerateAdminSecret(t *testing.T) {
	a, b := generateAdminSecret(), generateAdminSecret()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
