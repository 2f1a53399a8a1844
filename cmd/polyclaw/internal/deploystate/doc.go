// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package deploystate persists polyclaw's local deployment records.

Two documents live under the per-user data directory (~/.polyclaw):

  - deploy.json — the single "current deployment" configuration: resource
    names, ports, the generated admin secret. Exists only while a
    deployment made from this machine is live. Owned exclusively by the
    orchestrator; deleted on decommission.

  - deployments.json — the deployment ledger: one entry per deployment
    ever made from this machine, keyed by deploy id. Entries are never
    deleted by normal flows, only marked destroyed, so the ledger remains
    an audit trail after the current configuration is gone.

Both files are written atomically (temp file + rename). Concurrent
orchestrator processes are a usage error, not a supported condition; the
atomic write only guards against a torn file, not against lost updates.
*/
package deploystate
