// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package process

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// DeployLocker defines the interface for deployment-path locking.
//
// # Description
//
// DeployLocker prevents two deploy invocations targeting the same remote
// deployment directory from running simultaneously. The backup and restore
// sequence has no remote-side mutual exclusion, so two interleaved runs
// could snapshot a half-written tree or restore over each other. The lock
// is held for the whole pipeline, from precheck to exit.
//
// # Thread Safety
//
// Implementations must be safe for use from a single goroutine. The lock
// itself provides inter-process synchronization, not intra-process.
type DeployLocker interface {
	// Acquire attempts to get an exclusive lock.
	// Returns nil if lock acquired, error otherwise.
	Acquire() error

	// Release releases the lock if held.
	// Safe to call multiple times or if lock was never acquired.
	Release() error

	// IsHeld returns true if this instance currently holds the lock.
	IsHeld() bool

	// HolderPID returns the PID of the process holding the lock.
	// Returns 0 if no process holds the lock or if unable to determine.
	HolderPID() int
}

// DeployLockConfig configures deploy lock behavior.
//
// # Description
//
// The lock name is derived from TargetPath so deploys against different
// hosts or directories never contend with each other.
//
// # Example
//
//	config := DeployLockConfig{
//	    LockDir:    "/var/run/shiplift",
//	    TargetPath: "deploy@web1:/var/www/app",
//	}
type DeployLockConfig struct {
	// LockDir is the directory for lock files.
	// Default: system temp directory
	LockDir string

	// TargetPath identifies the deployment target being locked,
	// typically "user@host:/remote/path".
	// Default: "shiplift"
	TargetPath string
}

// DefaultDeployLockConfig returns sensible defaults.
func DefaultDeployLockConfig() DeployLockConfig {
	return DeployLockConfig{
		LockDir:    os.TempDir(),
		TargetPath: "shiplift",
	}
}

// DeployLock implements DeployLocker using file-based locking.
//
// # Description
//
// Uses the flock(2) system call for advisory file locking. The lock file
// name embeds a short hash of the target path, so the same target always
// maps to the same lock file:
//
//	{LockDir}/shiplift-{hash}.lock
//
// # How It Works
//
//  1. Creates a lock file at {LockDir}/shiplift-{hash}.lock
//  2. Attempts exclusive flock on the file
//  3. Writes PID to {LockDir}/shiplift-{hash}.pid for debugging
//  4. On release, removes PID file and releases flock
//
// # Thread Safety
//
// DeployLock is NOT safe for concurrent use from multiple goroutines.
// Use from a single goroutine (typically main).
//
// # Limitations
//
//   - Advisory lock only - other processes can ignore it if they don't check
//   - NFS and some network filesystems don't support flock properly
//   - Lock survives if process crashes without calling Release (OS releases flock)
//
// # Assumptions
//
//   - LockDir exists and is writable
//   - Only one DeployLock instance per process
//   - OS supports flock(2) system call
//
// # Example
//
//	lock := NewDeployLock(DeployLockConfig{TargetPath: target})
//	if err := lock.Acquire(); err != nil {
//	    fmt.Fprintf(os.Stderr, "Error: %v\n", err)
//	    os.Exit(1)
//	}
//	defer lock.Release()
type DeployLock struct {
	config   DeployLockConfig
	lockPath string
	pidPath  string
	lockFile *os.File
	held     bool
}

// NewDeployLock creates a new deploy lock.
//
// # Description
//
// Creates a DeployLock keyed by the configured target path. Does not
// acquire the lock.
//
// # Inputs
//
//   - config: Configuration for lock file location and target identity
//
// # Outputs
//
//   - *DeployLock: New lock instance (not yet acquired)
func NewDeployLock(config DeployLockConfig) *DeployLock {
	if config.LockDir == "" {
		config.LockDir = os.TempDir()
	}
	if config.TargetPath == "" {
		config.TargetPath = "shiplift"
	}

	name := "shiplift-" + targetHash(config.TargetPath)
	return &DeployLock{
		config:   config,
		lockPath: filepath.Join(config.LockDir, name+".lock"),
		pidPath:  filepath.Join(config.LockDir, name+".pid"),
	}
}

// targetHash returns a short stable hash of the target path.
func targetHash(target string) string {
	sum := sha256.Sum256([]byte(target))
	return hex.EncodeToString(sum[:4])
}

// Acquire attempts to get an exclusive lock.
//
// # Description
//
// Uses a non-blocking flock to try to acquire the lock. If another
// process holds the lock, returns immediately with an error containing
// the PID of the holder (if available).
//
// # Error Conditions
//
//   - Another deploy against this target is running (returns holder PID)
//   - Cannot create lock file (permission denied, disk full)
//   - Cannot acquire flock (system error)
func (p *DeployLock) Acquire() error {
	if p.held {
		return nil // Already held
	}

	f, err := os.OpenFile(p.lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to create lock file %s: %w", p.lockPath, err)
	}

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		f.Close()

		if err == syscall.EWOULDBLOCK {
			holderPID := p.readHolderPID()
			if holderPID > 0 {
				return fmt.Errorf("another deploy against this target is running (PID %d). "+
					"If this is stale, remove %s", holderPID, p.pidPath)
			}
			return fmt.Errorf("another deploy against this target is running. "+
				"Check: lsof %s", p.lockPath)
		}

		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	p.lockFile = f
	p.held = true

	// PID file is debugging aid only; lock is held regardless.
	_ = p.writePID()

	return nil
}

// Release releases the lock if held.
//
// # Description
//
// Removes the PID file and releases the flock. Safe to call multiple
// times or if the lock was never acquired.
func (p *DeployLock) Release() error {
	if !p.held || p.lockFile == nil {
		return nil
	}

	os.Remove(p.pidPath)

	err := syscall.Flock(int(p.lockFile.Fd()), syscall.LOCK_UN)

	p.lockFile.Close()
	p.lockFile = nil
	p.held = false

	// Lock file is left in place for faster subsequent acquires.

	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return nil
}

// IsHeld returns true if this instance currently holds the lock.
func (p *DeployLock) IsHeld() bool {
	return p.held
}

// HolderPID returns the PID of the process holding the lock.
//
// # Limitations
//
//   - May return stale PID if holder crashed without cleanup
//   - Relies on PID file, which may not exist
func (p *DeployLock) HolderPID() int {
	return p.readHolderPID()
}

// writePID writes the current process PID to the PID file.
func (p *DeployLock) writePID() error {
	content := fmt.Sprintf("%d\n", os.Getpid())
	return os.WriteFile(p.pidPath, []byte(content), 0644)
}

// readHolderPID reads the PID from the PID file.
func (p *DeployLock) readHolderPID() int {
	data, err := os.ReadFile(p.pidPath)
	if err != nil {
		return 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}

	return pid
}

// LockPath returns the path to the lock file.
func (p *DeployLock) LockPath() string {
	return p.lockPath
}

// PIDPath returns the path to the PID file.
func (p *DeployLock) PIDPath() string {
	return p.pidPath
}

// Compile-time interface satisfaction check
var _ DeployLocker = (*DeployLock)(nil)
