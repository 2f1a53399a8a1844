// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package azure

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDeployment indicates no deployment configuration exists locally.
	ErrNoDeployment = errors.New("no deployment configuration found; run deploy first")

	// ErrDeploymentMissing indicates the local configuration references a
	// container app that no longer exists remotely.
	ErrDeploymentMissing = errors.New("deployment missing: container app not found on the platform")
)

// StepError identifies which pipeline step failed. The pipeline performs
// no rollback; the failed step's name tells the operator where a rerun
// will resume.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("provisioning step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
