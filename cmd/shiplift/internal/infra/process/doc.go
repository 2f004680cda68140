// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

/*
Package process provides abstractions for external process execution and
inter-process synchronization.

# Overview

This package contains two main components:

  - Manager: Abstracts external process execution for testability
  - DeployLock: File-based locking so two deploys cannot interleave

# Manager

Manager enables testable interaction with the operating system's process
management capabilities. Every ssh, scp, and tar invocation the deploy
pipeline makes goes through this interface so unit tests can mock the
remote host without a network.

	pm := process.NewDefaultManager()
	stdout, stderr, code, err := pm.Run(ctx, "ssh", "deploy@host", "uptime")
	if err != nil {
	    return fmt.Errorf("failed to reach host: %w", err)
	}

For testing, use MockManager:

	mock := &process.MockManager{
	    RunFunc: func(ctx context.Context, name string, args ...string) (string, string, int, error) {
	        return "mock output", "", 0, nil
	    },
	}

# DeployLock

DeployLock prevents two concurrent invocations from interleaving backup and
restore operations against the same remote deployment directory. Uses the
flock(2) system call for advisory file locking, with the lock name keyed by
the deployment target path.

	lock := process.NewDeployLock(process.DeployLockConfig{TargetPath: cfg.Remote.TargetPath})
	if err := lock.Acquire(); err != nil {
	    fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	    os.Exit(1)
	}
	defer lock.Release()

# Thread Safety

  - Manager implementations are safe for concurrent use
  - DeployLock is NOT safe for concurrent use from multiple goroutines

# Limitations

  - DeployLock uses advisory locks - other processes can ignore if not checking
  - DeployLock requires OS support for flock(2)
*/
package process
