package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/shiplift/shiplift/cmd/shiplift/config"
	"github.com/shiplift/shiplift/pkg/logging"
)

// ErrorEscalator is the single failure funnel for a deploy session.
//
// # Description
//
// Every stage failure and every asynchronous interrupt routes here. The
// body is guarded by the session's rollback guard so it executes at most
// once per session, no matter how many failure signals arrive
// concurrently or in sequence; losers log a duplicate-suppressed notice
// and return.
//
// Escalation order:
//
//  1. Record the triggering cause and exit status
//  2. Restore from the session's backup record if one exists; if none
//     exists, report that rollback cannot proceed
//  3. Discard the locally staged package artifact
//  4. Best-effort push of the session log to the remote host (failure
//     here never changes the exit status)
//  5. Terminate with the originally triggering exit status
//
// # Thread Safety
//
// Safe for concurrent use: the signal goroutine and the pipeline
// goroutine may call Escalate simultaneously.
type ErrorEscalator struct {
	session *DeploymentSession
	backups *BackupManager
	archive *ArchiveStage
	exec    RemoteExecutor
	cfg     *config.ShipliftConfig
	log     *logging.Logger

	// exit terminates the process. os.Exit in production; injected in
	// tests to capture the code.
	exit func(code int)

	// artifact is the locally staged archive path, set by the pipeline
	// goroutine once packaging succeeds and read here on escalation, so
	// access is mutex-guarded.
	mu       sync.Mutex
	artifact string
}

// NewErrorEscalator wires the failure funnel for one session.
func NewErrorEscalator(session *DeploymentSession, backups *BackupManager, archive *ArchiveStage, exec RemoteExecutor, cfg *config.ShipliftConfig, log *logging.Logger) *ErrorEscalator {
	return &ErrorEscalator{
		session: session,
		backups: backups,
		archive: archive,
		exec:    exec,
		cfg:     cfg,
		log:     log,
		exit:    os.Exit,
	}
}

// SetArtifact records the staged archive path for later discard.
func (e *ErrorEscalator) SetArtifact(archivePath string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.artifact = archivePath
}

// stagedArtifact returns the recorded archive path, empty when
// packaging has not run.
func (e *ErrorEscalator) stagedArtifact() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.artifact
}

// Escalate runs the failure sequence for the given cause.
//
// # Description
//
// Wins or loses the rollback guard atomically. The winner rolls back,
// cleans up, mirrors the log, and terminates the process with the
// cause's exit status. Losers are a logged no-op.
//
// Rollback runs on a fresh context: the triggering cause may be a
// cancelled context, and restore must still complete.
func (e *ErrorEscalator) Escalate(cause error) {
	if !e.session.MarkRollback() {
		e.log.Warn("duplicate failure signal suppressed", "cause", cause.Error())
		return
	}

	e.session.SetState(StateRollingBack)
	code := ExitCodeFor(cause)

	e.log.Error("deployment failed",
		"cause", cause.Error(),
		"kind", string(FailureKindOf(cause)),
		"exit_code", code,
	)

	// Rollback must complete even if the pipeline context is gone.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if backup := e.session.ActiveBackup(); backup == nil {
		e.log.Error("rollback cannot proceed: no backup record exists for this session")
	} else if err := e.backups.Restore(ctx, backup); err != nil {
		e.log.Error("rollback failed", "error", err.Error())
	} else {
		e.log.Info("rollback completed: host restored from backup", "backup", backup.ID)
	}

	e.archive.Discard(e.stagedArtifact())

	e.pushSessionLog(ctx)

	e.session.SetState(StateFailed)
	e.log.Error("session terminated",
		"session", e.session.ID,
		"exit_code", code,
		"log", e.log.Path(),
	)
	e.exit(code)
}

// pushSessionLog mirrors the session log to the remote log directory.
//
// Best-effort durability: any failure is logged and swallowed; it never
// changes the process exit status.
func (e *ErrorEscalator) pushSessionLog(ctx context.Context) {
	localLog := e.log.Path()
	remoteDir := e.cfg.Logging.RemoteDir
	if localLog == "" || remoteDir == "" {
		return
	}

	if result, err := e.exec.Run(ctx, fmt.Sprintf("mkdir -p %s", remoteDir)); err != nil || result.Failed() {
		e.log.Warn("could not prepare remote log directory", "dir", remoteDir)
		return
	}

	remotePath := path.Join(remoteDir, fmt.Sprintf("shiplift_%s.log", e.session.ID))
	if err := e.exec.Copy(ctx, localLog, remotePath); err != nil {
		e.log.Warn("could not mirror session log", "error", err.Error())
		return
	}
	e.log.Info("session log mirrored", "remote", remotePath)
}

// signalError converts an operator signal into the pipeline failure it
// is treated as.
func signalError(sig os.Signal) *PipelineError {
	if sig == os.Interrupt {
		return NewPipelineError(FailInterrupted, "", ExitInterrupt, "",
			fmt.Errorf("operator interrupt received"))
	}
	return NewPipelineError(FailTerminated, "", ExitTerminate, "",
		fmt.Errorf("termination request received (%v)", sig))
}
