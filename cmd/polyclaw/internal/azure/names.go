// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package azure

import (
	"strings"

	"github.com/google/uuid"
)

// Fixed child-resource names. These live inside a uniquely named parent
// (resource group, vnet, storage account) so they need no suffix.
const (
	SubnetName      = "polyclaw-subnet"
	FileShareName   = "polyclaw-data"
	StorageLinkName = "polyclawdata"
)

// DefaultLocation is the Azure region used when the operator configures
// none.
const DefaultLocation = "eastus"

// Service ports of the deployed polyclaw runtime.
const (
	DefaultAdminPort   = 8000
	DefaultServicePort = 3978
)

// resourceNames is the full naming scheme derived from one random suffix.
//
// Registry and storage account names must be globally unique and
// alphanumeric only; the rest follow the hyphenated convention.
type resourceNames struct {
	ResourceGroup  string
	Registry       string
	Vnet           string
	StorageAccount string
	Environment    string
	App            string
}

func newResourceNames() resourceNames {
	sfx := randomSuffix()
	return resourceNames{
		ResourceGroup:  "polyclaw-rg-" + sfx,
		Registry:       "polyclawacr" + sfx,
		Vnet:           "polyclaw-vnet-" + sfx,
		StorageAccount: "polyclawsa" + sfx,
		Environment:    "polyclaw-env-" + sfx,
		App:            "polyclaw-app-" + sfx,
	}
}

// randomSuffix returns 6 lowercase hex characters.
func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

// generateAdminSecret returns a 32-character hex secret for the runtime's
// admin API.
func generateAdminSecret() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
