// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package process

import (
	"os"
	"strings"
	"testing"
)

func TestNewDeployLock_Defaults(t *testing.T) {
	lock := NewDeployLock(DeployLockConfig{})

	if lock.LockPath() == "" || lock.PIDPath() == "" {
		t.Error("lock and pid paths should be derived even with empty config")
	}
	if !strings.Contains(lock.LockPath(), "shiplift-") {
		t.Errorf("lock path %q should carry the shiplift prefix", lock.LockPath())
	}
}

func TestNewDeployLock_TargetIsolation(t *testing.T) {
	dir := t.TempDir()
	a := NewDeployLock(DeployLockConfig{LockDir: dir, TargetPath: "deploy@web1:/var/www/app"})
	b := NewDeployLock(DeployLockConfig{LockDir: dir, TargetPath: "deploy@web2:/var/www/app"})
	c := NewDeployLock(DeployLockConfig{LockDir: dir, TargetPath: "deploy@web1:/var/www/app"})

	if a.LockPath() == b.LockPath() {
		t.Error("different targets must map to different lock files")
	}
	if a.LockPath() != c.LockPath() {
		t.Error("the same target must always map to the same lock file")
	}
}

func TestDeployLock_AcquireRelease(t *testing.T) {
	lock := NewDeployLock(DeployLockConfig{
		LockDir:    t.TempDir(),
		TargetPath: "deploy@web1:/var/www/app",
	})

	if lock.IsHeld() {
		t.Error("fresh lock should not be held")
	}

	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !lock.IsHeld() {
		t.Error("lock should report held after Acquire")
	}
	if lock.HolderPID() != os.Getpid() {
		t.Errorf("holder pid = %d, want this process %d", lock.HolderPID(), os.Getpid())
	}

	// Re-acquiring while held is a no-op.
	if err := lock.Acquire(); err != nil {
		t.Errorf("re-Acquire while held failed: %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if lock.IsHeld() {
		t.Error("lock should not report held after Release")
	}

	// Release is safe to call again.
	if err := lock.Release(); err != nil {
		t.Errorf("double Release failed: %v", err)
	}
}

func TestDeployLock_SecondAcquirerBlocked(t *testing.T) {
	dir := t.TempDir()
	config := DeployLockConfig{LockDir: dir, TargetPath: "deploy@web1:/var/www/app"}

	first := NewDeployLock(config)
	if err := first.Acquire(); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer first.Release()

	second := NewDeployLock(config)
	err := second.Acquire()
	if err == nil {
		second.Release()
		t.Fatal("second Acquire against the same target should fail")
	}
	if !strings.Contains(err.Error(), "another deploy") {
		t.Errorf("error should explain the contention: %v", err)
	}

	// A different target is unaffected.
	other := NewDeployLock(DeployLockConfig{LockDir: dir, TargetPath: "deploy@web2:/var/www/app"})
	if err := other.Acquire(); err != nil {
		t.Errorf("unrelated target should acquire: %v", err)
	}
	other.Release()
}

func TestDeployLock_ReacquireAfterRelease(t *testing.T) {
	config := DeployLockConfig{LockDir: t.TempDir(), TargetPath: "deploy@web1:/var/www/app"}

	first := NewDeployLock(config)
	if err := first.Acquire(); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	second := NewDeployLock(config)
	if err := second.Acquire(); err != nil {
		t.Errorf("Acquire after release should succeed: %v", err)
	}
	second.Release()
}
