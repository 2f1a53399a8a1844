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
	"fmt"
	"strconv"
	"time"

	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/deploystate"
	"github.com/polyclaw-ai/polyclaw/cmd/polyclaw/internal/infra/process"
)

// DeployOptions controls one Deploy invocation.
type DeployOptions struct {
	// AdminPort and ServicePort override the configured ports when > 0.
	AdminPort   int
	ServicePort int

	// Reconnect skips provisioning and only verifies the recorded app
	// still exists remotely.
	Reconnect bool

	// OnLine receives human-readable progress lines. May be nil.
	OnLine func(string)
}

// Deployment is the result of a successful Deploy.
type Deployment struct {
	BaseURL     string
	InstanceID  string
	Reconnected bool
}

// Provisioner drives the Azure Container Apps provisioning pipeline.
//
// # Description
//
// Deploy applies ensure semantics in dependency order: the network must
// exist before the storage account (network-scoped firewall rule) and
// before the environment (subnet delegation); storage account and file
// share before the storage link; the app before its spec can be exported
// and amended; registry credentials are fetched only after the registry
// is guaranteed to exist. Resource names are persisted the moment they
// are chosen so a failed run resumes without renaming.
type Provisioner struct {
	cli    *CLI
	store  *deploystate.ConfigStore
	ledger *deploystate.Ledger

	location     string
	buildContext string
	imageName    string
	settleDelay  time.Duration
}

// ProvisionerOption configures a Provisioner.
type ProvisionerOption func(*Provisioner)

// WithLocation overrides the Azure region.
func WithLocation(location string) ProvisionerOption {
	return func(p *Provisioner) {
		if location != "" {
			p.location = location
		}
	}
}

// WithBuildContext sets the directory passed to the image build.
func WithBuildContext(dir string) ProvisionerOption {
	return func(p *Provisioner) {
		if dir != "" {
			p.buildContext = dir
		}
	}
}

// WithImageName overrides the runtime image repository name.
func WithImageName(name string) ProvisionerOption {
	return func(p *Provisioner) {
		if name != "" {
			p.imageName = name
		}
	}
}

// WithSettleDelay overrides the post-restart settle delay (tests use 0).
func WithSettleDelay(d time.Duration) ProvisionerOption {
	return func(p *Provisioner) { p.settleDelay = d }
}

// NewProvisioner creates a Provisioner backed by the given process
// manager and state stores.
func NewProvisioner(proc process.Manager, store *deploystate.ConfigStore, ledger *deploystate.Ledger, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		cli:          NewCLI(proc),
		store:        store,
		ledger:       ledger,
		location:     DefaultLocation,
		buildContext: ".",
		imageName:    "polyclaw-runtime",
		settleDelay:  DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CLI exposes the underlying az adapter for collaborators that need ad
// hoc control-plane calls (secret resolution, status probes).
func (p *Provisioner) CLI() *CLI { return p.cli }

type step struct {
	name string
	run  func(ctx context.Context, cfg *deploystate.DeploymentConfig, entry *deploystate.LedgerEntry, say func(string)) error
}

func (p *Provisioner) steps() []step {
	return []step{
		{"resource group", p.ensureResourceGroup},
		{"container registry", p.ensureRegistry},
		{"image build", p.buildImage},
		{"virtual network", p.ensureNetwork},
		{"storage account", p.ensureStorageAccount},
		{"file share", p.ensureFileShare},
		{"container apps environment", p.ensureEnvironment},
		{"environment storage link", p.ensureStorageLink},
		{"container app", p.ensureApp},
		{"volume reconciliation", p.reconcileVolumes},
		{"revision restart", p.restartActiveRevision},
		{"endpoint lookup", p.lookupFQDN},
	}
}

// Deploy provisions (or reconnects to) the cloud deployment.
//
// # Outputs
//
//   - *Deployment: endpoint and instance identity on success.
//   - error: *StepError naming the failed pipeline step, or a sentinel
//     (ErrNoDeployment, ErrDeploymentMissing) in reconnect mode.
func (p *Provisioner) Deploy(ctx context.Context, opts DeployOptions) (*Deployment, error) {
	say := opts.OnLine
	if say == nil {
		say = func(string) {}
	}
	if opts.Reconnect {
		return p.reconnect(ctx, say)
	}
	return p.provision(ctx, opts, say)
}

// reconnect verifies the recorded container app still exists. Nothing is
// created or mutated in this mode.
func (p *Provisioner) reconnect(ctx context.Context, say func(string)) (*Deployment, error) {
	cfg, err := p.store.Load()
	if err != nil {
		if errors.Is(err, deploystate.ErrNoConfig) {
			return nil, ErrNoDeployment
		}
		return nil, err
	}

	say("Reconnecting to " + cfg.AppName)
	if !p.AppExists(ctx, cfg) {
		return nil, ErrDeploymentMissing
	}
	return &Deployment{BaseURL: cfg.BaseURL(), InstanceID: cfg.AppName, Reconnected: true}, nil
}

func (p *Provisioner) provision(ctx context.Context, opts DeployOptions, say func(string)) (*Deployment, error) {
	cfg, err := p.loadOrCreateConfig(opts)
	if err != nil {
		return nil, err
	}
	entry, err := p.loadOrCreateEntry(cfg)
	if err != nil {
		return nil, err
	}

	// Persist chosen names before touching the platform.
	if err := p.checkpoint(cfg, entry); err != nil {
		return nil, err
	}

	for _, s := range p.steps() {
		if err := s.run(ctx, cfg, entry, say); err != nil {
			// Keep whatever progress was made; a rerun resumes here.
			_ = p.checkpoint(cfg, entry)
			return nil, &StepError{Step: s.name, Err: err}
		}
		if err := p.checkpoint(cfg, entry); err != nil {
			return nil, err
		}
	}

	say("Deployment ready at " + cfg.BaseURL())
	return &Deployment{BaseURL: cfg.BaseURL(), InstanceID: cfg.AppName}, nil
}

func (p *Provisioner) loadOrCreateConfig(opts DeployOptions) (*deploystate.DeploymentConfig, error) {
	cfg, err := p.store.Load()
	switch {
	case err == nil:
	case errors.Is(err, deploystate.ErrNoConfig):
		cfg = p.newConfig()
	default:
		return nil, err
	}

	if opts.AdminPort > 0 {
		cfg.AdminPort = opts.AdminPort
	}
	if opts.ServicePort > 0 {
		cfg.ServicePort = opts.ServicePort
	}
	if cfg.AdminSecret == "" {
		cfg.AdminSecret = generateAdminSecret()
	}
	return cfg, nil
}

func (p *Provisioner) newConfig() *deploystate.DeploymentConfig {
	id := deploystate.GenerateDeployID()
	n := newResourceNames()
	return &deploystate.DeploymentConfig{
		DeployID:        id,
		DeployTag:       deploystate.DeployTag(id),
		ResourceGroup:   n.ResourceGroup,
		RegistryName:    n.Registry,
		RegistryServer:  n.Registry + ".azurecr.io",
		VnetName:        n.Vnet,
		SubnetName:      SubnetName,
		StorageAccount:  n.StorageAccount,
		FileShare:       FileShareName,
		EnvironmentName: n.Environment,
		StorageLinkName: StorageLinkName,
		AppName:         n.App,
		AdminPort:       DefaultAdminPort,
		ServicePort:     DefaultServicePort,
	}
}

func (p *Provisioner) loadOrCreateEntry(cfg *deploystate.DeploymentConfig) (*deploystate.LedgerEntry, error) {
	entry, err := p.ledger.Get(cfg.DeployID)
	switch {
	case err == nil:
		return entry, nil
	case errors.Is(err, deploystate.ErrNotFound):
		return deploystate.NewLedgerEntry(deploystate.KindACA, cfg.DeployID), nil
	default:
		return nil, err
	}
}

// checkpoint persists the configuration and ledger entry.
func (p *Provisioner) checkpoint(cfg *deploystate.DeploymentConfig, entry *deploystate.LedgerEntry) error {
	if err := p.store.Save(cfg); err != nil {
		return err
	}
	entry.Config = deploystate.ConfigSnapshot{
		FQDN:            cfg.FQDN,
		RegistryServer:  cfg.RegistryServer,
		EnvironmentName: cfg.EnvironmentName,
	}
	return p.ledger.Update(entry)
}

// AppExists probes for the recorded container app.
func (p *Provisioner) AppExists(ctx context.Context, cfg *deploystate.DeploymentConfig) bool {
	return p.cli.Exists(ctx, "containerapp", "show",
		"--name", cfg.AppName, "--resource-group", cfg.ResourceGroup)
}

func (p *Provisioner) tagArg(cfg *deploystate.DeploymentConfig) string {
	return deploystate.DeployTagKey + "=" + cfg.DeployTag
}

// =============================================================================
// Pipeline steps
// =============================================================================

func (p *Provisioner) ensureResourceGroup(ctx context.Context, cfg *deploystate.DeploymentConfig, entry *deploystate.LedgerEntry, say func(string)) error {
	say("Ensuring resource group " + cfg.ResourceGroup)
	if p.cli.Exists(ctx, "group", "show", "--name", cfg.ResourceGroup) {
		return nil
	}
	if _, err := p.cli.Run(ctx, "group", "create",
		"--name", cfg.ResourceGroup,
		"--location", p.location,
		"--tags", p.tagArg(cfg)); err != nil {
		return err
	}
	entry.AddResource("resource-group", cfg.ResourceGroup, cfg.ResourceGroup, "root container for deployment resources")
	return nil
}

func (p *Provisioner) ensureRegistry(ctx context.Context, cfg *deploystate.DeploymentConfig, entry *deploystate.LedgerEntry, say func(string)) error {
	say("Ensuring container registry " + cfg.RegistryName)
	if !p.cli.Exists(ctx, "acr", "show", "--name", cfg.RegistryName, "--resource-group", cfg.ResourceGroup) {
		if _, err := p.cli.Run(ctx, "acr", "create",
			"--name", cfg.RegistryName,
			"--resource-group", cfg.ResourceGroup,
			"--sku", "Basic",
			"--admin-enabled", "true",
			"--tags", p.tagArg(cfg)); err != nil {
			return err
		}
		entry.AddResource("container-registry", cfg.RegistryName, cfg.ResourceGroup, "runtime image registry")
	}
	cfg.RegistryServer = cfg.RegistryName + ".azurecr.io"
	return nil
}

func (p *Provisioner) buildImage(ctx context.Context, cfg *deploystate.DeploymentConfig, entry *deploystate.LedgerEntry, say func(string)) error {
	image := p.imageName + ":latest"
	say("Building image " + image + " (this can take a while)")
	ok := p.cli.Stream(ctx, say, "acr", "build",
		"--registry", cfg.RegistryName,
		"--image", image,
		p.buildContext)
	if !ok {
		return errors.New("image build failed")
	}
	return nil
}

func (p *Provisioner) ensureNetwork(ctx context.Context, cfg *deploystate.DeploymentConfig, entry *deploystate.LedgerEntry, say func(string)) error {
	say("Ensuring virtual network " + cfg.VnetName)
	if !p.cli.Exists(ctx, "network", "vnet", "show", "--name", cfg.VnetName, "--resource-group", cfg.ResourceGroup) {
		if _, err := p.cli.Run(ctx, "network", "vnet", "create",
			"--name", cfg.VnetName,
			"--resource-group", cfg.ResourceGroup,
			"--address-prefix", "10.0.0.0/16",
			"--subnet-name", cfg.SubnetName,
			"--subnet-prefixes", "10.0.0.0/23",
			"--tags", p.tagArg(cfg)); err != nil {
			return err
		}
		entry.AddResource("virtual-network", cfg.VnetName, cfg.ResourceGroup, "environment and storage isolation")
	}
	// Delegation is idempotent; reapply on every run.
	_, err := p.cli.Run(ctx, "network", "vnet", "subnet", "update",
		"--name", cfg.SubnetName,
		"--vnet-name", cfg.VnetName,
		"--resource-group", cfg.ResourceGroup,
		"--delegations", "Microsoft.App/environments")
	return err
}

func (p *Provisioner) ensureStorageAccount(ctx context.Context, cfg *deploystate.DeploymentConfig, entry *deploystate.LedgerEntry, say func(string)) error {
	say("Ensuring storage account " + cfg.StorageAccount)
	if !p.cli.Exists(ctx, "storage", "account", "show", "--name", cfg.StorageAccount, "--resource-group", cfg.ResourceGroup) {
		if _, err := p.cli.Run(ctx, "storage", "account", "create",
			"--name", cfg.StorageAccount,
			"--resource-group", cfg.ResourceGroup,
			"--location", p.location,
			"--sku", "Standard_LRS",
			"--kind", "StorageV2",
			"--tags", p.tagArg(cfg)); err != nil {
			return err
		}
		entry.AddResource("storage-account", cfg.StorageAccount, cfg.ResourceGroup, "persistent agent state")
	}

	subnetID, err := p.subnetID(ctx, cfg)
	if err != nil {
		return err
	}
	_, err = p.cli.Run(ctx, "storage", "account", "network-rule", "add",
		"--account-name", cfg.StorageAccount,
		"--resource-group", cfg.ResourceGroup,
		"--subnet", subnetID)
	return err
}

func (p *Provisioner) ensureFileShare(ctx context.Context, cfg *deploystate.DeploymentConfig, entry *deploystate.LedgerEntry, say func(string)) error {
	say("Ensuring file share " + cfg.FileShare)
	if p.cli.Exists(ctx, "storage", "share-rm", "show", "--storage-account", cfg.StorageAccount, "--name", cfg.FileShare) {
		return nil
	}
	if _, err := p.cli.Run(ctx, "storage", "share-rm", "create",
		"--storage-account", cfg.StorageAccount,
		"--name", cfg.FileShare,
		"--quota", "100"); err != nil {
		return err
	}
	entry.AddResource("file-share", cfg.FileShare, cfg.ResourceGroup, "mounted at "+VolumeMountPath)
	return nil
}

func (p *Provisioner) ensureEnvironment(ctx context.Context, cfg *deploystate.DeploymentConfig, entry *deploystate.LedgerEntry, say func(string)) error {
	say("Ensuring environment " + cfg.EnvironmentName)
	if p.cli.Exists(ctx, "containerapp", "env", "show", "--name", cfg.EnvironmentName, "--resource-group", cfg.ResourceGroup) {
		return nil
	}
	subnetID, err := p.subnetID(ctx, cfg)
	if err != nil {
		return err
	}
	if _, err := p.cli.Run(ctx, "containerapp", "env", "create",
		"--name", cfg.EnvironmentName,
		"--resource-group", cfg.ResourceGroup,
		"--location", p.location,
		"--infrastructure-subnet-resource-id", subnetID,
		"--tags", p.tagArg(cfg)); err != nil {
		return err
	}
	entry.AddResource("containerapp-environment", cfg.EnvironmentName, cfg.ResourceGroup, "managed compute environment")
	return nil
}

func (p *Provisioner) ensureStorageLink(ctx context.Context, cfg *deploystate.DeploymentConfig, entry *deploystate.LedgerEntry, say func(string)) error {
	say("Ensuring storage link " + cfg.StorageLinkName)
	if p.cli.Exists(ctx, "containerapp", "env", "storage", "show",
		"--name", cfg.EnvironmentName,
		"--resource-group", cfg.ResourceGroup,
		"--storage-name", cfg.StorageLinkName) {
		return nil
	}
	key, err := p.storageKey(ctx, cfg)
	if err != nil {
		return err
	}
	if _, err := p.cli.Run(ctx, "containerapp", "env", "storage", "set",
		"--name", cfg.EnvironmentName,
		"--resource-group", cfg.ResourceGroup,
		"--storage-name", cfg.StorageLinkName,
		"--azure-file-account-name", cfg.StorageAccount,
		"--azure-file-account-key", key,
		"--azure-file-share-name", cfg.FileShare,
		"--access-mode", "ReadWrite"); err != nil {
		return err
	}
	entry.AddResource("storage-link", cfg.StorageLinkName, cfg.ResourceGroup, "environment file share link")
	return nil
}

// ensureApp creates the container app. A redeploy is a full replacement:
// the previous app is deleted first so the new image and configuration
// apply cleanly instead of layering revisions onto stale state.
func (p *Provisioner) ensureApp(ctx context.Context, cfg *deploystate.DeploymentConfig, entry *deploystate.LedgerEntry, say func(string)) error {
	if p.AppExists(ctx, cfg) {
		say("Replacing container app " + cfg.AppName)
		if _, err := p.cli.Run(ctx, "containerapp", "delete",
			"--name", cfg.AppName,
			"--resource-group", cfg.ResourceGroup,
			"--yes"); err != nil {
			return err
		}
	} else {
		say("Creating container app " + cfg.AppName)
	}

	var creds struct {
		Username  string `json:"username"`
		Passwords []struct {
			Value string `json:"value"`
		} `json:"passwords"`
	}
	if err := p.cli.RunJSON(ctx, &creds, "acr", "credential", "show",
		"--name", cfg.RegistryName, "-o", "json"); err != nil {
		return err
	}
	if creds.Username == "" || len(creds.Passwords) == 0 {
		return errors.New("registry returned no admin credentials")
	}

	if _, err := p.cli.Run(ctx, "containerapp", "create",
		"--name", cfg.AppName,
		"--resource-group", cfg.ResourceGroup,
		"--environment", cfg.EnvironmentName,
		"--image", cfg.RegistryServer+"/"+p.imageName+":latest",
		"--registry-server", cfg.RegistryServer,
		"--registry-username", creds.Username,
		"--registry-password", creds.Passwords[0].Value,
		"--target-port", strconv.Itoa(cfg.ServicePort),
		"--ingress", "external",
		"--min-replicas", "1",
		"--max-replicas", "1",
		"--env-vars",
		"POLYCLAW_ADMIN_SECRET="+cfg.AdminSecret,
		"POLYCLAW_ADMIN_PORT="+strconv.Itoa(cfg.AdminPort),
		"--tags", p.tagArg(cfg)); err != nil {
		return err
	}
	entry.AddResource("container-app", cfg.AppName, cfg.ResourceGroup, "polyclaw runtime")
	return nil
}

func (p *Provisioner) lookupFQDN(ctx context.Context, cfg *deploystate.DeploymentConfig, entry *deploystate.LedgerEntry, say func(string)) error {
	var app struct {
		Properties struct {
			Configuration struct {
				Ingress struct {
					Fqdn string `json:"fqdn"`
				} `json:"ingress"`
			} `json:"configuration"`
		} `json:"properties"`
	}
	if err := p.cli.RunJSON(ctx, &app, "containerapp", "show",
		"--name", cfg.AppName,
		"--resource-group", cfg.ResourceGroup,
		"-o", "json"); err != nil {
		return err
	}
	if app.Properties.Configuration.Ingress.Fqdn == "" {
		return errors.New("app has no ingress FQDN")
	}
	cfg.FQDN = app.Properties.Configuration.Ingress.Fqdn
	cfg.LastDeployed = time.Now().UTC()
	entry.Touch()
	return nil
}

// =============================================================================
// Shared lookups
// =============================================================================

func (p *Provisioner) subnetID(ctx context.Context, cfg *deploystate.DeploymentConfig) (string, error) {
	var subnet struct {
		ID string `json:"id"`
	}
	if err := p.cli.RunJSON(ctx, &subnet, "network", "vnet", "subnet", "show",
		"--name", cfg.SubnetName,
		"--vnet-name", cfg.VnetName,
		"--resource-group", cfg.ResourceGroup,
		"-o", "json"); err != nil {
		return "", err
	}
	if subnet.ID == "" {
		return "", errors.New("subnet has no resource id")
	}
	return subnet.ID, nil
}

func (p *Provisioner) storageKey(ctx context.Context, cfg *deploystate.DeploymentConfig) (string, error) {
	var keys []struct {
		Value string `json:"value"`
	}
	if err := p.cli.RunJSON(ctx, &keys, "storage", "account", "keys", "list",
		"--account-name", cfg.StorageAccount,
		"--resource-group", cfg.ResourceGroup,
		"-o", "json"); err != nil {
		return "", err
	}
	if len(keys) == 0 || keys[0].Value == "" {
		return "", fmt.Errorf("storage account %s returned no keys", cfg.StorageAccount)
	}
	return keys[0].Value, nil
}
