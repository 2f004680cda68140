package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/shiplift/shiplift/cmd/shiplift/config"
	"github.com/shiplift/shiplift/cmd/shiplift/internal/infra/process"
	"github.com/shiplift/shiplift/pkg/logging"
)

// ArchiveStage builds and transfers the release payload.
//
// # Description
//
// Thin stage delegating to tar (archiver) and the remote executor's copy
// transport. Packaging honors the configured exclude patterns; upload
// places the archive in the remote staging directory where the install
// stage extracts it.
type ArchiveStage struct {
	proc    process.Manager
	exec    RemoteExecutor
	project config.ProjectConfig
	staging string
	log     *logging.Logger
}

// NewArchiveStage creates the packaging/upload stage.
func NewArchiveStage(proc process.Manager, exec RemoteExecutor, cfg *config.ShipliftConfig, log *logging.Logger) *ArchiveStage {
	return &ArchiveStage{
		proc:    proc,
		exec:    exec,
		project: cfg.Project,
		staging: cfg.Remote.StagingDir,
		log:     log,
	}
}

// Package builds the release archive from the local project tree.
//
// # Description
//
// Produces a gzip-compressed tarball in the local temp directory, named
// by session identifier, honoring the configured exclude patterns.
//
// # Outputs
//
//   - string: Path to the local archive
//   - error: PackagingFailure if tar fails
func (a *ArchiveStage) Package(ctx context.Context, session *DeploymentSession) (string, error) {
	archivePath := filepath.Join(os.TempDir(), fmt.Sprintf("shiplift-%s.tar.gz", session.ID))

	args := make([]string, 0, len(a.project.Excludes)*2+5)
	for _, pattern := range a.project.Excludes {
		args = append(args, "--exclude", pattern)
	}
	args = append(args, "-czf", archivePath, "-C", a.project.Path, ".")

	a.log.Info("packaging release", "archive", archivePath, "source", a.project.Path)

	_, stderr, code, err := a.proc.Run(ctx, "tar", args...)
	if err != nil {
		return "", NewPipelineError(FailPackaging, "", 1, stderr, err)
	}
	if code != 0 {
		return "", NewPipelineError(FailPackaging, "", code, stderr, nil)
	}
	return archivePath, nil
}

// Upload transfers the archive to the remote staging directory.
//
// # Outputs
//
//   - string: The remote path the archive was staged at
//   - error: UploadFailure if the transfer fails
func (a *ArchiveStage) Upload(ctx context.Context, archivePath string) (string, error) {
	remotePath := path.Join(a.staging, filepath.Base(archivePath))
	if err := a.exec.Copy(ctx, archivePath, remotePath); err != nil {
		return "", NewPipelineError(FailUpload, "", 1, "", err)
	}
	return remotePath, nil
}

// Discard removes the locally staged archive.
//
// Best-effort: called during escalation; a leftover temp file must not
// change the failure outcome.
func (a *ArchiveStage) Discard(archivePath string) {
	if archivePath == "" {
		return
	}
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		a.log.Warn("could not discard staged archive", "archive", archivePath, "error", err.Error())
		return
	}
	a.log.Info("discarded staged archive", "archive", archivePath)
}
