package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shiplift/shiplift/cmd/shiplift/config"
	"github.com/shiplift/shiplift/cmd/shiplift/internal/infra/process"
	"github.com/shiplift/shiplift/pkg/logging"
)

// Stage is one named unit of the pipeline owning a single state
// transition.
type Stage struct {
	// Name identifies the stage in logs and step results.
	Name string

	// Next is the state the session advances to on success.
	Next SessionState

	// Run performs the stage. A nil return advances; an error routes to
	// the escalator.
	Run func(ctx context.Context) error
}

// Orchestrator drives the deployment as an ordered state machine.
//
// # Description
//
// Runs stages strictly in order on a single logical thread of control:
// no stage begins before the previous one's result is known, and there
// is no intra-run parallelism. Each stage either advances the session
// state or hands its failure to the escalator, which owns rollback.
// There is no retry-in-place; the only recovery path is full rollback.
//
// Once Completed is reached no further stage executes; once the rollback
// guard fires no forward stage executes.
//
// # Use Cases
//
//   - `shiplift deploy`: the full pipeline
//   - `shiplift health`: probe-only runs reuse the checker directly
//
// # Limitations
//
//   - Single remote host; no cluster awareness
//   - In-flight remote commands are not cancelled on interrupt; only the
//     local interpretation of what happens next changes
type Orchestrator struct {
	session   *DeploymentSession
	proc      process.Manager
	exec      RemoteExecutor
	backups   *BackupManager
	archive   *ArchiveStage
	installer *RemoteInstaller
	health    *HealthChecker
	escalator *ErrorEscalator
	cfg       *config.ShipliftConfig
	log       *logging.Logger

	stagedArchive string
	localArchive  string
}

// NewOrchestrator wires the pipeline for one session.
func NewOrchestrator(
	session *DeploymentSession,
	proc process.Manager,
	exec RemoteExecutor,
	backups *BackupManager,
	archive *ArchiveStage,
	installer *RemoteInstaller,
	health *HealthChecker,
	escalator *ErrorEscalator,
	cfg *config.ShipliftConfig,
	log *logging.Logger,
) *Orchestrator {
	return &Orchestrator{
		session:   session,
		proc:      proc,
		exec:      exec,
		backups:   backups,
		archive:   archive,
		installer: installer,
		health:    health,
		escalator: escalator,
		cfg:       cfg,
		log:       log,
	}
}

// stages returns the ordered forward sequence. Each stage produces
// exactly one state.
func (o *Orchestrator) stages() []Stage {
	return []Stage{
		{"prechecks", StatePrechecked, o.runPrechecks},
		{"connectivity", StateConnected, o.checkConnectivity},
		{"backup", StateBackedUp, o.runBackup},
		{"package", StatePackaged, o.runPackage},
		{"upload", StateUploaded, o.runUpload},
		{"remote install", StateRemoteInstalled, o.runRemoteInstall},
		{"health verification", StateHealthVerified, o.verifyHealth},
	}
}

// Deploy runs the pipeline to completion or escalation.
//
// # Description
//
// On any stage failure or observed cancellation, control transfers to
// the escalator and never returns in production (the escalator exits the
// process). The post-success system survey is informational only: it
// runs after health verification and its internal failures neither block
// completion nor trigger rollback.
func (o *Orchestrator) Deploy(ctx context.Context) {
	o.log.Info("deployment session started",
		"session", o.session.ID,
		"host", o.cfg.Remote.Host,
		"target", o.cfg.Remote.TargetPath,
	)

	for _, stage := range o.stages() {
		// A fired guard means the escalator already owns this session.
		if o.session.RollbackFired() {
			return
		}
		if err := ctx.Err(); err != nil {
			o.escalator.Escalate(NewPipelineError(FailInterrupted, "", ExitInterrupt, "", err))
			return
		}

		o.log.Info("stage starting", "stage", stage.Name, "state", string(o.session.State()))
		start := time.Now()
		err := stage.Run(ctx)
		duration := time.Since(start)

		if err != nil {
			// A stage that failed because the run itself was cancelled is
			// an operator interrupt, not a stage defect; the exit status
			// must say so regardless of which goroutine escalates first.
			if ctx.Err() != nil {
				err = NewPipelineError(FailInterrupted, "", ExitInterrupt, "", err)
			}
			o.session.RecordStep(stage.Name, false, ExitCodeFor(err), err.Error(), duration)
			o.escalator.Escalate(err)
			return
		}

		o.session.RecordStep(stage.Name, true, 0, "", duration)
		o.session.SetState(stage.Next)
		o.log.Info("stage completed", "stage", stage.Name, "duration_ms", duration.Milliseconds())
	}

	// Post-success survey: advisory only, never blocks, never rolls back.
	report := o.health.SurveySystem(ctx)
	report.Render(os.Stdout)

	o.session.SetState(StateCompleted)
	o.log.Info("deployment completed",
		"session", o.session.ID,
		"duration_ms", time.Since(o.session.StartedAt).Milliseconds(),
	)
}

// runPrechecks verifies required tools, credentials, and the project tree.
//
// # Error Conditions
//
//   - a required tool (ssh, scp, tar) is missing from PATH
//   - the configured identity file does not exist
//   - the project marker file is absent (not a valid project root)
func (o *Orchestrator) runPrechecks(ctx context.Context) error {
	for _, tool := range []string{"ssh", "scp", "tar"} {
		if _, err := o.proc.LookPath(tool); err != nil {
			return NewPipelineError(FailPrecheck, "", 1, "",
				fmt.Errorf("required tool %q not found: %w", tool, err))
		}
	}

	identity := config.ExpandHome(o.cfg.Remote.IdentityFile)
	if _, err := os.Stat(identity); err != nil {
		return NewPipelineError(FailPrecheck, "", 1, "",
			fmt.Errorf("identity file %s not reachable: %w", identity, err))
	}

	marker := filepath.Join(o.cfg.Project.Path, o.cfg.Project.MarkerFile)
	if _, err := os.Stat(marker); err != nil {
		return NewPipelineError(FailPrecheck, "", 1, "",
			fmt.Errorf("%s is not a valid project root (missing %s): %w",
				o.cfg.Project.Path, o.cfg.Project.MarkerFile, err))
	}

	return nil
}

// checkConnectivity performs a bounded-timeout round trip to the host.
func (o *Orchestrator) checkConnectivity(ctx context.Context) error {
	result, err := o.exec.Run(ctx, "echo shiplift-ping")
	if err != nil {
		return NewPipelineError(FailConnectivity, "", 1, result.Output, err)
	}
	if result.Failed() {
		return NewPipelineError(FailConnectivity, "", result.ExitCode, result.Output, nil)
	}
	return nil
}

// runBackup snapshots the live tree and prunes old snapshots.
func (o *Orchestrator) runBackup(ctx context.Context) error {
	record, err := o.backups.Create(ctx, o.session)
	if err != nil {
		return err
	}
	o.session.SetBackup(record)

	// Pruning is best-effort and never escalates.
	o.backups.Prune(ctx)
	return nil
}

// runPackage builds the release archive.
func (o *Orchestrator) runPackage(ctx context.Context) error {
	archivePath, err := o.archive.Package(ctx, o.session)
	if err != nil {
		return err
	}
	o.localArchive = archivePath
	o.escalator.SetArtifact(archivePath)
	return nil
}

// runUpload stages the archive on the remote host.
func (o *Orchestrator) runUpload(ctx context.Context) error {
	remotePath, err := o.archive.Upload(ctx, o.localArchive)
	if err != nil {
		return err
	}
	o.stagedArchive = remotePath
	return nil
}

// runRemoteInstall executes the ordered install sub-sequence.
func (o *Orchestrator) runRemoteInstall(ctx context.Context) error {
	return o.installer.Run(ctx, o.session, o.stagedArchive)
}

// verifyHealth runs the blocking application probe.
//
// A failing application check is treated identically to a remote step
// failure: it triggers rollback.
func (o *Orchestrator) verifyHealth(ctx context.Context) error {
	probe, err := o.health.ProbeApplication(ctx)
	if err != nil {
		return err
	}
	o.log.Info("health verified",
		"status_code", probe.StatusCode,
		"latency_ms", probe.Latency.Milliseconds(),
	)
	return nil
}
