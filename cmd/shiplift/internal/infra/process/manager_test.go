// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package process

import (
	"context"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// DefaultManager Tests
// =============================================================================

func TestDefaultManager_Run_Success(t *testing.T) {
	mgr := NewDefaultManager()

	stdout, stderr, code, err := mgr.Run(context.Background(), "sh", "-c", "echo out; echo err 1>&2")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if strings.TrimSpace(stdout) != "out" {
		t.Errorf("stdout = %q, want %q", stdout, "out")
	}
	if strings.TrimSpace(stderr) != "err" {
		t.Errorf("stderr = %q, want %q", stderr, "err")
	}
}

func TestDefaultManager_Run_NonZeroExitIsNotAnError(t *testing.T) {
	mgr := NewDefaultManager()

	_, _, code, err := mgr.Run(context.Background(), "sh", "-c", "exit 3")
	if err != nil {
		t.Fatalf("non-zero exit should not be an error: %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestDefaultManager_Run_SpawnFailure(t *testing.T) {
	mgr := NewDefaultManager()

	_, _, code, err := mgr.Run(context.Background(), "definitely-not-an-executable-xyz")
	if err == nil {
		t.Fatal("spawn failure should be an error")
	}
	if code != -1 {
		t.Errorf("exit code = %d, want -1 when the process never ran", code)
	}
}

func TestDefaultManager_Run_ContextExpiry(t *testing.T) {
	mgr := NewDefaultManager()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, _, err := mgr.Run(ctx, "sh", "-c", "sleep 5")
	if err == nil {
		t.Fatal("context expiry should be an error")
	}
	if ctx.Err() == nil {
		t.Fatal("context should have expired")
	}
}

func TestDefaultManager_LookPath(t *testing.T) {
	mgr := NewDefaultManager()

	if _, err := mgr.LookPath("sh"); err != nil {
		t.Errorf("sh should resolve: %v", err)
	}
	if _, err := mgr.LookPath("definitely-not-an-executable-xyz"); err == nil {
		t.Error("a missing tool should not resolve")
	}
}

// =============================================================================
// MockManager Tests
// =============================================================================

func TestMockManager_Defaults(t *testing.T) {
	mock := &MockManager{}

	stdout, stderr, code, err := mock.Run(context.Background(), "ssh", "host", "true")
	if err != nil || code != 0 || stdout != "" || stderr != "" {
		t.Errorf("zero-value Run = (%q, %q, %d, %v), want empty success", stdout, stderr, code, err)
	}

	path, err := mock.LookPath("tar")
	if err != nil || path == "" {
		t.Errorf("zero-value LookPath = (%q, %v), want resolution", path, err)
	}
}

func TestMockManager_RecordsCalls(t *testing.T) {
	mock := &MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) (string, string, int, error) {
			return "pong", "", 0, nil
		},
	}

	mock.Run(context.Background(), "ssh", "-o", "BatchMode=yes", "host", "echo")
	mock.LookPath("scp")

	calls := mock.Calls()
	if len(calls) != 2 {
		t.Fatalf("len(calls) = %d, want 2", len(calls))
	}
	if calls[0].Name != "ssh" || len(calls[0].Args) != 4 {
		t.Errorf("first call = %+v", calls[0])
	}
	if calls[1].Name != "lookpath:scp" {
		t.Errorf("second call = %+v", calls[1])
	}

	// Mutating the copy must not affect the recording.
	calls[0].Name = "tampered"
	if mock.Calls()[0].Name != "ssh" {
		t.Error("Calls() should return a copy")
	}
}
