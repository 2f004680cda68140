// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"
)

// Manager handles external process operations.
//
// # Description
//
// This interface abstracts all interaction with the operating system's
// process management, enabling testable code that doesn't require real
// process execution. The deploy pipeline routes every ssh, scp, and tar
// call through it.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
//
// # Context Handling
//
// Run accepts a context.Context for cancellation and timeout support. A
// context that expires kills the child process.
type Manager interface {
	// Run executes a command synchronously and returns its captured output.
	//
	// # Description
	//
	// Executes the specified command with arguments and waits for completion.
	// Stdout and stderr are captured separately. A non-zero exit status is
	// not an error: the exit code is returned and err is nil. err is non-nil
	// only when the process could not be started or the context expired.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - name: The executable name or path
	//   - args: Command arguments (variadic)
	//
	// # Outputs
	//
	//   - stdout: Captured standard output
	//   - stderr: Captured standard error
	//   - exitCode: Process exit status (-1 if the process never ran)
	//   - err: Non-nil only for spawn failures and context expiry
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, exitCode int, err error)

	// LookPath searches for an executable in the PATH.
	//
	// # Description
	//
	// Wraps exec.LookPath so precheck code that verifies required tools
	// (ssh, scp, tar) stays mockable.
	LookPath(name string) (string, error)
}

// DefaultManager implements Manager using os/exec.
//
// # Description
//
// The production implementation. Each Run call creates a fresh
// exec.CommandContext; no state is shared between calls.
//
// # Thread Safety
//
// DefaultManager is stateless and safe for concurrent use.
type DefaultManager struct{}

// NewDefaultManager creates the production process manager.
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{}
}

// Run executes a command synchronously and returns its captured output.
func (m *DefaultManager) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), stderr.String(), 0, nil
	}

	// Context expiry wins over the exit error the kill produced.
	if ctx.Err() != nil {
		return stdout.String(), stderr.String(), -1, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
	}

	return stdout.String(), stderr.String(), -1, err
}

// LookPath searches for an executable in the PATH.
func (m *DefaultManager) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Call records one invocation made through MockManager.
type Call struct {
	// Name is the executable that was requested.
	Name string

	// Args are the arguments it was given.
	Args []string
}

// MockManager implements Manager for testing.
//
// # Description
//
// Provides injectable functions for each Manager method and records every
// call so tests can assert on the exact commands the pipeline would have
// executed. Zero-value behavior: Run reports success with empty output,
// LookPath resolves everything.
//
// # Thread Safety
//
// MockManager is safe for concurrent use; call recording is mutex-guarded.
//
// # Example
//
//	mock := &process.MockManager{
//	    RunFunc: func(ctx context.Context, name string, args ...string) (string, string, int, error) {
//	        if name == "ssh" {
//	            return "pong", "", 0, nil
//	        }
//	        return "", "", 1, nil
//	    },
//	}
type MockManager struct {
	// RunFunc overrides Run. Nil means success with empty output.
	RunFunc func(ctx context.Context, name string, args ...string) (string, string, int, error)

	// LookPathFunc overrides LookPath. Nil means every tool resolves.
	LookPathFunc func(name string) (string, error)

	mu    sync.Mutex
	calls []Call
}

// Run records the call and delegates to RunFunc.
func (m *MockManager) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	m.record(name, args)
	if m.RunFunc != nil {
		return m.RunFunc(ctx, name, args...)
	}
	return "", "", 0, nil
}

// LookPath records the call and delegates to LookPathFunc.
func (m *MockManager) LookPath(name string) (string, error) {
	m.record("lookpath:"+name, nil)
	if m.LookPathFunc != nil {
		return m.LookPathFunc(name)
	}
	return "/usr/bin/" + name, nil
}

// Calls returns a copy of all recorded invocations in order.
func (m *MockManager) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockManager) record(name string, args []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Name: name, Args: append([]string(nil), args...)})
}

// Compile-time interface satisfaction checks
var (
	_ Manager = (*DefaultManager)(nil)
	_ Manager = (*MockManager)(nil)
)
