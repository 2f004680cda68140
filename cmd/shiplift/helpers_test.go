// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package main

import (
	"context"
	"strings"
	"sync"

	"github.com/shiplift/shiplift/cmd/shiplift/config"
	"github.com/shiplift/shiplift/pkg/logging"
)

// mockExecutor implements RemoteExecutor for testing.
//
// Zero-value behavior: every Run succeeds with empty output and every
// Copy succeeds. Override RunFunc/CopyFunc to script outcomes. All
// invocations are recorded for assertions.
type mockExecutor struct {
	RunFunc  func(ctx context.Context, script string) (ExecResult, error)
	CopyFunc func(ctx context.Context, localPath, remotePath string) error

	mu      sync.Mutex
	scripts []string
	copies  []string
}

func (m *mockExecutor) Run(ctx context.Context, script string) (ExecResult, error) {
	m.mu.Lock()
	m.scripts = append(m.scripts, script)
	m.mu.Unlock()
	if m.RunFunc != nil {
		return m.RunFunc(ctx, script)
	}
	return ExecResult{ExitCode: 0}, nil
}

func (m *mockExecutor) Copy(ctx context.Context, localPath, remotePath string) error {
	m.mu.Lock()
	m.copies = append(m.copies, localPath+" -> "+remotePath)
	m.mu.Unlock()
	if m.CopyFunc != nil {
		return m.CopyFunc(ctx, localPath, remotePath)
	}
	return nil
}

// Scripts returns a copy of the scripts run so far.
func (m *mockExecutor) Scripts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.scripts))
	copy(out, m.scripts)
	return out
}

// ScriptCount counts recorded scripts containing the given fragment.
func (m *mockExecutor) ScriptCount(fragment string) int {
	count := 0
	for _, s := range m.Scripts() {
		if strings.Contains(s, fragment) {
			count++
		}
	}
	return count
}

var _ RemoteExecutor = (*mockExecutor)(nil)

// testConfig returns a valid configuration for tests.
func testConfig() *config.ShipliftConfig {
	cfg := config.DefaultConfig()
	return &cfg
}

// testLogger returns a logger that writes nowhere.
func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError, Quiet: true})
}

// testSession returns a fresh session with a fixed identifier.
func testSession() *DeploymentSession {
	return NewSession("20260101-120000", testLogger())
}
