// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	reconnectFlag   bool
	adminPortFlag   int
	servicePortFlag int

	rootCmd = &cobra.Command{
		Use:   "polyclaw",
		Short: "A cli to deploy and manage the polyclaw agent runtime in the cloud",
		Long: `Polyclaw is a tool for provisioning, monitoring, and decommissioning
				a long-lived containerized polyclaw agent on Azure Container Apps.`,
		SilenceUsage: true,
	}

	// --- Deployment lifecycle ---
	deployCmd = &cobra.Command{
		Use:   "deploy",
		Short: "Provision the cloud deployment (or reconnect to an existing one)",
		Run:   runDeploy, // Defined in cmd_deploy.go
	}
	logsCmd = &cobra.Command{
		Use:   "logs",
		Short: "Stream logs from the deployed service until interrupted",
		Run:   runLogs, // Defined in cmd_logs.go
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the current deployment and whether it matches remote state",
		Run:   runStatus, // Defined in cmd_status.go
	}
	removeCmd = &cobra.Command{
		Use:   "remove",
		Short: "Decommission the cloud deployment and clear local state",
		Run:   runRemove, // Defined in cmd_remove.go
	}

	// --- Secrets ---
	secretCmd = &cobra.Command{
		Use:   "secret",
		Short: "Print the admin API secret of the current deployment",
		Run:   runSecret, // Defined in cmd_secret.go
	}
	secretResolveCmd = &cobra.Command{
		Use:   "resolve [reference]",
		Short: "Resolve a @kv: secret reference via the configured key vault",
		Args:  cobra.ExactArgs(1),
		Run:   runSecretResolve, // Defined in cmd_secret.go
	}

	// --- Ledger ---
	deploymentsCmd = &cobra.Command{
		Use:   "deployments",
		Short: "Inspect and reconcile the deployment ledger",
	}
	deploymentsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List every recorded deployment, newest first",
		Run:   runDeploymentsList, // Defined in cmd_deployments.go
	}
	deploymentsAuditCmd = &cobra.Command{
		Use:   "audit",
		Short: "Compare remotely tagged resources against the ledger",
		Run:   runDeploymentsAudit, // Defined in cmd_deployments.go
	}
	deploymentsReconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Prune ledger entries whose cloud resources are gone",
		Run:   runDeploymentsReconcile, // Defined in cmd_deployments.go
	}
	deploymentsCleanupCmd = &cobra.Command{
		Use:   "cleanup [deploy-id]",
		Short: "Delete a historical deployment's resource groups",
		Args:  cobra.ExactArgs(1),
		Run:   runDeploymentsCleanup, // Defined in cmd_deployments.go
	}
)

func init() {
	rootCmd.AddCommand(deployCmd)
	deployCmd.Flags().BoolVar(&reconnectFlag, "reconnect", false,
		"Reconnect to the existing deployment without provisioning anything")
	deployCmd.Flags().IntVar(&adminPortFlag, "admin-port", 0,
		"Admin API port for the runtime container (default from config.yaml)")
	deployCmd.Flags().IntVar(&servicePortFlag, "service-port", 0,
		"Public service port for the runtime container (default from config.yaml)")

	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(removeCmd)

	rootCmd.AddCommand(secretCmd)
	secretCmd.AddCommand(secretResolveCmd)

	rootCmd.AddCommand(deploymentsCmd)
	deploymentsCmd.AddCommand(deploymentsListCmd)
	deploymentsCmd.AddCommand(deploymentsAuditCmd)
	deploymentsCmd.AddCommand(deploymentsReconcileCmd)
	deploymentsCmd.AddCommand(deploymentsCleanupCmd)
}
