package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shiplift/shiplift/cmd/shiplift/config"
	"github.com/shiplift/shiplift/cmd/shiplift/internal/infra/process"
	"github.com/shiplift/shiplift/pkg/logging"
)

// runDeploy is the no-argument pipeline entry point.
//
// # Description
//
// Resolves everything from configuration, takes the deploy lock for the
// target, wires the session, and hands control to the orchestrator.
// Operator signals are routed into the escalator as if the running stage
// had failed: interrupt exits 130, termination request exits 143.
func runDeploy(cmd *cobra.Command, args []string) {
	cfg := &config.Global

	// One deploy per target at a time. Two interleaved runs could
	// corrupt the backup/restore sequence on the remote host.
	lock := process.NewDeployLock(process.DeployLockConfig{
		TargetPath: fmt.Sprintf("%s@%s:%s", cfg.Remote.User, cfg.Remote.Host, cfg.Remote.TargetPath),
	})
	if err := lock.Acquire(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer lock.Release()

	session, logger, deps := buildPipeline(cfg)
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signals jump into the escalator exactly as a stage failure would.
	// The guard makes a racing stage failure and signal safe: only one
	// escalation body runs.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		cancel()
		deps.escalator.Escalate(signalError(sig))
	}()

	deps.orchestrator.Deploy(ctx)

	if session.State() == StateCompleted {
		fmt.Printf("Deployment %s completed. Log: %s\n", session.ID, logger.Path())
	}
}

// pipelineDeps bundles the wired components for one run.
type pipelineDeps struct {
	orchestrator *Orchestrator
	escalator    *ErrorEscalator
}

// buildPipeline wires every component for one deploy session.
func buildPipeline(cfg *config.ShipliftConfig) (*DeploymentSession, *logging.Logger, pipelineDeps) {
	sessionID := NewSessionID()
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  cfg.Logging.Dir,
		Service: "deploy",
		Session: sessionID,
	})

	session := NewSession(sessionID, logger)

	proc := process.NewDefaultManager()
	exec := NewSSHExecutor(proc, cfg.Remote, time.Duration(cfg.Timeouts.SSHSeconds)*time.Second, logger)
	installExec := NewSSHExecutor(proc, cfg.Remote,
		EnforceDefaultTimeout(time.Duration(cfg.Timeouts.InstallSeconds)*time.Second, DefaultInstallTimeout), logger)

	backups := NewBackupManager(exec, cfg, logger)
	archive := NewArchiveStage(proc, exec, cfg, logger)
	installer := NewRemoteInstaller(installExec, cfg, logger)
	health := NewHealthChecker(exec, cfg, logger)
	escalator := NewErrorEscalator(session, backups, archive, exec, cfg, logger)
	orchestrator := NewOrchestrator(session, proc, exec, backups, archive, installer, health, escalator, cfg, logger)

	return session, logger, pipelineDeps{orchestrator: orchestrator, escalator: escalator}
}
