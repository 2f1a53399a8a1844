// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package deploystate

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TagPrefix is prepended to deploy ids to form the resource tag attached
// to every cloud resource polyclaw creates, e.g. "polycl-3fa9c2d1".
const TagPrefix = "polycl"

// DeployTagKey is the cloud tag key used to mark polyclaw-owned resources.
const DeployTagKey = "polyclaw_deploy"

// Deployment kinds. The ledger records which platform an entry targets.
const (
	KindACA   = "aca"
	KindLocal = "local"
)

// Deployment statuses.
const (
	StatusActive    = "active"
	StatusDestroyed = "destroyed"
)

// GenerateDeployID returns a new 8-character deployment identifier.
//
// Derived from a random UUID; short enough to embed in resource names
// while still making collisions on one machine vanishingly unlikely.
func GenerateDeployID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// DeployTag returns the resource tag value for a deploy id.
func DeployTag(deployID string) string {
	return TagPrefix + "-" + deployID
}

// DeploymentConfig is the single "current deployment" document.
//
// Every field except the ports and secret is a cloud resource identifier
// chosen during the first pipeline run and reused verbatim on every
// subsequent run (idempotent naming). If this document exists, exactly one
// container app with AppName is expected to exist remotely.
type DeploymentConfig struct {
	DeployID  string `json:"deployId"`
	DeployTag string `json:"deployTag"`

	ResourceGroup   string `json:"resourceGroup"`
	RegistryName    string `json:"registryName"`
	RegistryServer  string `json:"registryServer"`
	VnetName        string `json:"vnetName"`
	SubnetName      string `json:"subnetName"`
	StorageAccount  string `json:"storageAccount"`
	FileShare       string `json:"fileShare"`
	EnvironmentName string `json:"environmentName"`
	StorageLinkName string `json:"storageLinkName"`
	AppName         string `json:"appName"`
	FQDN            string `json:"fqdn"`

	AdminPort   int    `json:"adminPort"`
	ServicePort int    `json:"servicePort"`
	AdminSecret string `json:"adminSecret"`

	LastDeployed time.Time `json:"lastDeployed"`
}

// BaseURL returns the https endpoint of the deployed service, or "" if the
// FQDN is not yet known.
func (c *DeploymentConfig) BaseURL() string {
	if c.FQDN == "" {
		return ""
	}
	return "https://" + c.FQDN
}

// ResourceEntry is one provisioned resource in a ledger entry's audit
// trail. The trail is informational; reconciliation never reads it.
type ResourceEntry struct {
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Group     string    `json:"group"`
	Purpose   string    `json:"purpose,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConfigSnapshot carries the externally relevant fields of a deployment
// for display by unrelated tooling (dashboards, TUIs).
type ConfigSnapshot struct {
	FQDN            string `json:"fqdn,omitempty"`
	RegistryServer  string `json:"registryServer,omitempty"`
	EnvironmentName string `json:"environmentName,omitempty"`
}

// LedgerEntry is the durable record of one deployment.
//
// CreatedAt is set once and copied forward on every update; only
// UpdatedAt, Status, ResourceGroups, Resources, and Config change after
// creation.
type LedgerEntry struct {
	DeployID  string    `json:"deployId"`
	Tag       string    `json:"tag"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	ResourceGroups []string        `json:"resourceGroups"`
	Resources      []ResourceEntry `json:"resources"`
	Config         ConfigSnapshot  `json:"config"`
}

// NewLedgerEntry creates an active entry for the given platform kind.
// Pass deployID == "" to generate a fresh id.
func NewLedgerEntry(kind, deployID string) *LedgerEntry {
	if deployID == "" {
		deployID = GenerateDeployID()
	}
	now := time.Now().UTC()
	return &LedgerEntry{
		DeployID:  deployID,
		Tag:       DeployTag(deployID),
		Kind:      kind,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddResource appends a resource to the audit trail and records its group.
func (e *LedgerEntry) AddResource(resourceType, name, group, purpose string) ResourceEntry {
	entry := ResourceEntry{
		Type:      resourceType,
		Name:      name,
		Group:     group,
		Purpose:   purpose,
		CreatedAt: time.Now().UTC(),
	}
	e.Resources = append(e.Resources, entry)
	e.addGroup(group)
	return entry
}

func (e *LedgerEntry) addGroup(group string) {
	if group == "" {
		return
	}
	for _, g := range e.ResourceGroups {
		if g == group {
			return
		}
	}
	e.ResourceGroups = append(e.ResourceGroups, group)
}

// Touch bumps UpdatedAt.
func (e *LedgerEntry) Touch() {
	e.UpdatedAt = time.Now().UTC()
}

// MarkDestroyed sets the terminal status and bumps UpdatedAt.
func (e *LedgerEntry) MarkDestroyed() {
	e.Status = StatusDestroyed
	e.Touch()
}
