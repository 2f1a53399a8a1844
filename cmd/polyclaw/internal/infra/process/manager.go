// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// Manager handles external process operations.
//
// # Description
//
// Abstracts all interaction with external control-plane tooling so that
// provisioning code can be unit tested with a mock. Implementations must
// be safe for concurrent use from multiple goroutines.
//
// # Context Handling
//
// All methods accept a context.Context. Cancelling the context kills the
// running process.
type Manager interface {
	// Run executes a command synchronously.
	//
	// # Outputs
	//
	//   - stdout: Captured standard output.
	//   - stderr: Captured standard error.
	//   - exitCode: Process exit code (-1 if the process never ran).
	//   - err: Non-nil if the command could not be started or exited non-zero.
	Run(ctx context.Context, name string, args ...string) (stdout string, stderr string, exitCode int, err error)

	// RunStreaming executes a command and forwards its merged output
	// line-by-line to onLine. Returns true if the command exited zero.
	//
	// onLine may be nil, in which case output is discarded.
	RunStreaming(ctx context.Context, onLine func(string), name string, args ...string) bool

	// StartFollowing launches a long-running command and returns a handle
	// with independent stdout/stderr pipes. The caller owns the handle and
	// must call Kill or Wait to release the process.
	StartFollowing(ctx context.Context, name string, args ...string) (Follower, error)
}

// Follower is a handle to a long-running process started by StartFollowing.
//
// Stdout and Stderr are independent pipes; both must be drained or the
// child process may block. Kill is idempotent.
type Follower interface {
	Stdout() io.Reader
	Stderr() io.Reader

	// Kill terminates the process. Safe to call multiple times and after
	// the process has already exited.
	Kill() error

	// Wait blocks until the process exits and releases its resources.
	Wait() error
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultManager implements Manager using os/exec.
//
// This is the production implementation. Use MockManager in tests.
type DefaultManager struct{}

// NewDefaultManager creates a Manager that executes real processes.
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{}
}

// Run executes a command synchronously and captures its output.
func (m *DefaultManager) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit; include stderr so callers can surface it.
			return stdout.String(), stderr.String(), exitCode, err
		}
		return "", "", -1, err
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// RunStreaming executes a command and forwards output line-by-line.
func (m *DefaultManager) RunStreaming(ctx context.Context, onLine func(string), name string, args ...string) bool {
	cmd := exec.CommandContext(ctx, name, args...)

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return false
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return false
	}

	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if onLine != nil {
			onLine(strings.TrimRight(scanner.Text(), "\r"))
		}
	}

	return cmd.Wait() == nil
}

// StartFollowing launches a long-running command with piped output.
func (m *DefaultManager) StartFollowing(ctx context.Context, name string, args ...string) (Follower, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &execFollower{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// execFollower wraps a started exec.Cmd as a Follower.
type execFollower struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader

	killOnce sync.Once
	waitOnce sync.Once
	waitErr  error
}

func (f *execFollower) Stdout() io.Reader { return f.stdout }
func (f *execFollower) Stderr() io.Reader { return f.stderr }

// Kill terminates the process. Errors from an already-exited process are
// swallowed; Kill is best-effort by contract.
func (f *execFollower) Kill() error {
	f.killOnce.Do(func() {
		if f.cmd.Process != nil {
			_ = f.cmd.Process.Kill()
		}
	})
	return nil
}

// Wait blocks until the process exits. Safe to call after Kill.
func (f *execFollower) Wait() error {
	f.waitOnce.Do(func() {
		f.waitErr = f.cmd.Wait()
	})
	return f.waitErr
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockManager is a test double for Manager.
//
// Configure behavior via the function fields. Every invocation is recorded
// in Calls for verification.
//
// # Examples
//
//	mock := &MockManager{
//	    RunFunc: func(ctx context.Context, name string, args ...string) (string, string, int, error) {
//	        if name == "az" && args[0] == "group" {
//	            return `{"name":"polyclaw-rg"}`, "", 0, nil
//	        }
//	        return "", "not found", 1, fmt.Errorf("exit status 1")
//	    },
//	}
type MockManager struct {
	RunFunc            func(ctx context.Context, name string, args ...string) (string, string, int, error)
	RunStreamingFunc   func(ctx context.Context, onLine func(string), name string, args ...string) bool
	StartFollowingFunc func(ctx context.Context, name string, args ...string) (Follower, error)

	// Calls records all method invocations in order.
	Calls []Call

	mu sync.Mutex
}

// Call records a single Manager invocation.
type Call struct {
	Method string
	Name   string
	Args   []string
}

func (m *MockManager) record(method, name string, args []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Method: method, Name: name, Args: args})
}

// Run delegates to RunFunc and records the call.
func (m *MockManager) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	m.record("Run", name, args)
	if m.RunFunc == nil {
		panic("MockManager.RunFunc not set")
	}
	return m.RunFunc(ctx, name, args...)
}

// RunStreaming delegates to RunStreamingFunc and records the call.
func (m *MockManager) RunStreaming(ctx context.Context, onLine func(string), name string, args ...string) bool {
	m.record("RunStreaming", name, args)
	if m.RunStreamingFunc == nil {
		panic("MockManager.RunStreamingFunc not set")
	}
	return m.RunStreamingFunc(ctx, onLine, name, args...)
}

// StartFollowing delegates to StartFollowingFunc and records the call.
func (m *MockManager) StartFollowing(ctx context.Context, name string, args ...string) (Follower, error) {
	m.record("StartFollowing", name, args)
	if m.StartFollowingFunc == nil {
		panic("MockManager.StartFollowingFunc not set")
	}
	return m.StartFollowingFunc(ctx, name, args...)
}

// GetCalls returns a copy of all recorded calls.
func (m *MockManager) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// Reset clears all recorded calls.
func (m *MockManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// Compile-time interface compliance checks.
var (
	_ Manager = (*DefaultManager)(nil)
	_ Manager = (*MockManager)(nil)
)
