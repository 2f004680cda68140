package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shiplift/shiplift/cmd/shiplift/config"
	"github.com/shiplift/shiplift/cmd/shiplift/internal/infra/process"
	"github.com/shiplift/shiplift/pkg/logging"
)

// ExecResult is the structured outcome of one remote invocation.
type ExecResult struct {
	// Output is combined stdout and stderr, captured verbatim regardless
	// of outcome.
	Output string

	// ExitCode is the remote command's exit status. Non-zero is the sole
	// signal of failure.
	ExitCode int

	// Duration is how long the invocation took.
	Duration time.Duration
}

// Failed reports whether the invocation failed.
func (r ExecResult) Failed() bool {
	return r.ExitCode != 0
}

// RemoteExecutor runs commands on the remote host and moves files to it.
//
// # Description
//
// Every remote side effect in the pipeline goes through this interface.
// The contract is synchronous and all-or-nothing: a script passed to one
// Run either completes in full or the whole invocation is failed; there
// are no partial-success semantics.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the escalator may
// issue restore commands from the signal goroutine.
type RemoteExecutor interface {
	// Run executes a script on the remote host, blocking until completion
	// or the executor's timeout. The invocation itself is mirrored to the
	// log sink before the result is known, so the record survives total
	// connectivity loss. err is non-nil only when the command could not
	// be attempted or timed out; remote failure is conveyed by ExitCode.
	Run(ctx context.Context, script string) (ExecResult, error)

	// Copy transfers a local file to a path on the remote host.
	Copy(ctx context.Context, localPath, remotePath string) error
}

// SSHExecutor implements RemoteExecutor by shelling out to ssh and scp.
//
// # Description
//
// The production transport. Uses BatchMode so a missing or rejected key
// fails immediately instead of prompting, and bounds every invocation
// with the configured ssh timeout (floor-enforced).
//
// # Limitations
//
//   - Host key verification follows the user's ssh configuration
//   - In-flight remote commands are not cancelled on timeout; only the
//     local wait is abandoned
type SSHExecutor struct {
	proc    process.Manager
	remote  config.RemoteConfig
	log     *logging.Logger
	timeout time.Duration
}

// NewSSHExecutor creates an executor for the configured remote host.
func NewSSHExecutor(proc process.Manager, remote config.RemoteConfig, timeout time.Duration, log *logging.Logger) *SSHExecutor {
	return &SSHExecutor{
		proc:    proc,
		remote:  remote,
		log:     log,
		timeout: EnforceMinTimeout(timeout, MinSSHTimeout),
	}
}

// Run executes a script on the remote host.
func (e *SSHExecutor) Run(ctx context.Context, script string) (ExecResult, error) {
	// Mirror the invocation before the result is known.
	e.log.Info("remote exec",
		"host", e.remote.Host,
		"script", script,
	)

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, code, err := e.proc.Run(runCtx, "ssh", e.sshArgs(script)...)
	result := ExecResult{
		Output:   stdout + stderr,
		ExitCode: code,
		Duration: time.Since(start),
	}

	if err != nil {
		e.log.Error("remote exec did not complete",
			"host", e.remote.Host,
			"error", err.Error(),
			"duration_ms", result.Duration.Milliseconds(),
		)
		return result, fmt.Errorf("remote execution on %s: %w", e.remote.Host, err)
	}

	e.log.Info("remote exec finished",
		"host", e.remote.Host,
		"exit_code", code,
		"duration_ms", result.Duration.Milliseconds(),
		"output", result.Output,
	)
	return result, nil
}

// Copy transfers a local file to the remote host via scp.
func (e *SSHExecutor) Copy(ctx context.Context, localPath, remotePath string) error {
	e.log.Info("remote copy",
		"host", e.remote.Host,
		"local", localPath,
		"remote", remotePath,
	)

	copyCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := []string{
		"-i", config.ExpandHome(e.remote.IdentityFile),
		"-P", strconv.Itoa(e.remote.Port),
		"-o", "BatchMode=yes",
		localPath,
		fmt.Sprintf("%s@%s:%s", e.remote.User, e.remote.Host, remotePath),
	}

	_, stderr, code, err := e.proc.Run(copyCtx, "scp", args...)
	if err != nil {
		return fmt.Errorf("copy to %s: %w", e.remote.Host, err)
	}
	if code != 0 {
		return fmt.Errorf("copy to %s failed (exit %d): %s", e.remote.Host, code, stderr)
	}
	return nil
}

// sshArgs assembles the argument list for one remote invocation.
func (e *SSHExecutor) sshArgs(script string) []string {
	return []string{
		"-i", config.ExpandHome(e.remote.IdentityFile),
		"-p", strconv.Itoa(e.remote.Port),
		"-o", "BatchMode=yes",
		"-o", "ConnectTimeout=10",
		fmt.Sprintf("%s@%s", e.remote.User, e.remote.Host),
		script,
	}
}

// Compile-time interface check
var _ RemoteExecutor = (*SSHExecutor)(nil)
