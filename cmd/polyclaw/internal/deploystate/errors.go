// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package deploystate

import "errors"

// ErrNoConfig is returned when an operation requires a current deployment
// configuration and none exists on this machine.
var ErrNoConfig = errors.New("no deployment configuration found")

// ErrNotFound is returned when a ledger entry does not exist.
var ErrNotFound = errors.New("deployment not found in ledger")

// ErrCorrupted is returned when a state file exists but cannot be parsed.
var ErrCorrupted = errors.New("deployment state file corrupted")
