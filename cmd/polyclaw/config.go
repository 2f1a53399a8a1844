// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/azure"
	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/deploystate"
)

// Config holds operator-tunable settings loaded from config.yaml.
//
// Every field has a working default; the file is optional and most
// installs never create one.
type Config struct {
	// Location is the Azure region for new deployments.
	Location string `yaml:"location"`

	// AdminPort and ServicePort are passed to the runtime container.
	AdminPort   int `yaml:"admin_port"`
	ServicePort int `yaml:"service_port"`

	// DataDir overrides where deploy.json and deployments.json live.
	DataDir string `yaml:"data_dir"`

	// BuildContext is the directory sent to the registry image build.
	BuildContext string `yaml:"build_context"`

	// ImageName is the runtime image repository name.
	ImageName string `yaml:"image_name"`

	// KeyVault is the vault consulted for @kv: secret references.
	// Falls back to the POLYCLAW_KEY_VAULT environment variable.
	KeyVault string `yaml:"key_vault"`

	// LogDir enables JSON file logging when set.
	LogDir string `yaml:"log_dir"`
}

// loadConfig reads the optional config file. A missing file yields the
// defaults; a malformed file is an error so typos do not silently fall
// back.
func loadConfig(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Location == "" {
		c.Location = azure.DefaultLocation
	}
	if c.AdminPort == 0 {
		c.AdminPort = azure.DefaultAdminPort
	}
	if c.ServicePort == 0 {
		c.ServicePort = azure.DefaultServicePort
	}
	if c.DataDir == "" {
		c.DataDir = deploystate.DefaultDataDir()
	}
	if c.BuildContext == "" {
		c.BuildContext = "."
	}
	if c.ImageName == "" {
		c.ImageName = "polyclaw-runtime"
	}
	if c.KeyVault == "" {
		c.KeyVault = os.Getenv("POLYCLAW_KEY_VAULT")
	}
}
