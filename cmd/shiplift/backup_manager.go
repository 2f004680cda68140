package main

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/shiplift/shiplift/cmd/shiplift/config"
	"github.com/shiplift/shiplift/pkg/logging"
)

// BackupRecord identifies one point-in-time copy of the live deployment
// directory.
type BackupRecord struct {
	// ID equals the session identifier that created the backup.
	ID string

	// Location is the remote directory holding the snapshot.
	Location string

	// CreatedAt is when the snapshot was taken.
	CreatedAt time.Time

	// HasContent is false on a first-ever deployment: the target did not
	// exist, so there was no prior state to capture and the record is a
	// placeholder that can never be restored.
	HasContent bool
}

// BackupManager creates, prunes, and restores snapshots of the remote
// deployment directory.
//
// # Description
//
// One snapshot directory per session lives under the configured backup
// root, named by session identifier. Retention is enforced by age: any
// snapshot whose identifier timestamp is older than the configured
// threshold is deleted best-effort. The configured keep-count is
// advisory documentation only; pruning never counts.
//
// # Thread Safety
//
// Safe for concurrent use; all state lives on the remote host and every
// operation is a self-contained remote invocation.
type BackupManager struct {
	exec     RemoteExecutor
	target   string
	root     string
	services config.ServicesConfig
	maxAge   time.Duration
	log      *logging.Logger
	now      func() time.Time
}

// NewBackupManager creates a backup manager for the configured target.
func NewBackupManager(exec RemoteExecutor, cfg *config.ShipliftConfig, log *logging.Logger) *BackupManager {
	retention := time.Duration(cfg.Backup.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &BackupManager{
		exec:     exec,
		target:   cfg.Remote.TargetPath,
		root:     cfg.Backup.Root,
		services: cfg.Services,
		maxAge:   retention,
		log:      log,
		now:      time.Now,
	}
}

// Create takes a point-in-time copy of the live deployment directory.
//
// # Description
//
// If the target directory does not exist yet this is a first deployment:
// the target is created fresh and the returned record has HasContent
// false. Otherwise the live tree is fully copied to
// {root}/{session-id}.
//
// # Outputs
//
//   - *BackupRecord: The active record for this session
//   - error: BackupFailure if any remote command fails
func (m *BackupManager) Create(ctx context.Context, session *DeploymentSession) (*BackupRecord, error) {
	record := &BackupRecord{
		ID:        session.ID,
		Location:  path.Join(m.root, session.ID),
		CreatedAt: m.now(),
	}

	exists, err := m.targetExists(ctx)
	if err != nil {
		return nil, NewPipelineError(FailBackup, "", 1, "", err)
	}

	if !exists {
		m.log.Info("first deployment: creating target directory, nothing to back up",
			"target", m.target,
		)
		result, err := m.exec.Run(ctx, fmt.Sprintf("mkdir -p %s", m.target))
		if err != nil {
			return nil, NewPipelineError(FailBackup, "", 1, result.Output, err)
		}
		if result.Failed() {
			return nil, NewPipelineError(FailBackup, "", result.ExitCode, result.Output, nil)
		}
		record.HasContent = false
		return record, nil
	}

	script := fmt.Sprintf("mkdir -p %s && cp -a %s %s", m.root, m.target, record.Location)
	result, err := m.exec.Run(ctx, script)
	if err != nil {
		return nil, NewPipelineError(FailBackup, "", 1, result.Output, err)
	}
	if result.Failed() {
		return nil, NewPipelineError(FailBackup, "", result.ExitCode, result.Output, nil)
	}

	record.HasContent = true
	m.log.Info("backup created", "location", record.Location)
	return record, nil
}

// Prune deletes snapshots older than the retention age.
//
// # Description
//
// Lists the backup root and parses each entry name as a session
// timestamp; entries older than the threshold are deleted one by one.
// Everything here is best-effort: listing failures, unparseable names,
// and failed deletions are logged and swallowed. Pruning never
// escalates.
func (m *BackupManager) Prune(ctx context.Context) {
	result, err := m.exec.Run(ctx, fmt.Sprintf("ls -1 %s 2>/dev/null", m.root))
	if err != nil || result.Failed() {
		m.log.Warn("backup pruning skipped: could not list backup root", "root", m.root)
		return
	}

	cutoff := m.now().Add(-m.maxAge)
	for _, name := range strings.Fields(result.Output) {
		created, err := time.ParseInLocation(sessionIDLayout, name, time.Local)
		if err != nil {
			continue // not one of ours
		}
		if !created.Before(cutoff) {
			continue
		}

		victim := path.Join(m.root, name)
		del, err := m.exec.Run(ctx, fmt.Sprintf("rm -rf %s", victim))
		if err != nil || del.Failed() {
			m.log.Warn("backup pruning: failed to delete old snapshot", "path", victim)
			continue
		}
		m.log.Info("pruned old backup", "path", victim, "created_at", created.Format(time.RFC3339))
	}
}

// Restore replaces the live deployment directory with a snapshot.
//
// # Description
//
// Stops both core services, deletes the live tree, copies the snapshot
// back into place, restores ownership to the service identity, and
// restarts the services. Restore reports failure only if one of its
// remote commands returns non-zero; it deliberately does not re-run
// health checks.
//
// # Error Conditions
//
//   - record is nil or has no content (first-ever deployment): restore
//     cannot proceed and fails explicitly rather than no-op succeeding
//   - any constituent remote command exits non-zero
func (m *BackupManager) Restore(ctx context.Context, record *BackupRecord) error {
	if record == nil {
		return NewPipelineError(FailRollback, "", 1, "", fmt.Errorf("no backup record exists for this session"))
	}
	if !record.HasContent {
		return NewPipelineError(FailRollback, "", 1, "",
			fmt.Errorf("backup %s has no content (first deployment had no prior state)", record.ID))
	}

	steps := []struct {
		name   string
		script string
	}{
		{"stop services", fmt.Sprintf("systemctl stop %s %s", m.services.Web, m.services.App)},
		{"remove live tree", fmt.Sprintf("rm -rf %s", m.target)},
		{"copy snapshot back", fmt.Sprintf("cp -a %s %s", record.Location, m.target)},
		{"restore ownership", fmt.Sprintf("chown -R %s %s", m.services.Owner, m.target)},
		{"start services", fmt.Sprintf("systemctl start %s %s", m.services.Web, m.services.App)},
	}

	for _, step := range steps {
		result, err := m.exec.Run(ctx, step.script)
		if err != nil {
			return NewPipelineError(FailRollback, "", 1, result.Output,
				fmt.Errorf("restore step %q: %w", step.name, err))
		}
		if result.Failed() {
			return NewPipelineError(FailRollback, "", result.ExitCode, result.Output,
				fmt.Errorf("restore step %q exited %d", step.name, result.ExitCode))
		}
	}

	m.log.Info("restore completed", "backup", record.ID)
	return nil
}

// targetExists checks whether the live deployment directory is present.
func (m *BackupManager) targetExists(ctx context.Context) (bool, error) {
	result, err := m.exec.Run(ctx, fmt.Sprintf("test -d %s", m.target))
	if err != nil {
		return false, err
	}
	return result.ExitCode == 0, nil
}
