// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package azure provisions and tears down the polyclaw runtime on Azure
Container Apps by shelling out to the az CLI.

The Provisioner runs an ensure-ordered pipeline: every resource is probed
by the name recorded in the deployment configuration and created only if
absent, so a failed run resumes where it stopped without renaming
anything. Names are chosen once (from the prior configuration if present,
otherwise from a fresh random suffix) and persisted before the first
create call.

The Auditor discovers remotely tagged resource groups and compares them
against the deployment ledger, supporting an explicit reconcile sweep for
state that drifted while the orchestrator was not running.
*/
package azure
