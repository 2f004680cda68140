package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func testBackupManager(exec RemoteExecutor) *BackupManager {
	return NewBackupManager(exec, testConfig(), testLogger())
}

func TestBackupManager_Create_ExistingTarget(t *testing.T) {
	exec := &mockExecutor{}
	mgr := testBackupManager(exec)
	session := testSession()

	record, err := mgr.Create(context.Background(), session)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if !record.HasContent {
		t.Error("backup of an existing target should have content")
	}
	if record.ID != session.ID {
		t.Errorf("record ID = %q, want session ID %q", record.ID, session.ID)
	}
	if record.Location != "/tmp/shiplift-backups/"+session.ID {
		t.Errorf("record location = %q", record.Location)
	}
	if exec.ScriptCount("cp -a") != 1 {
		t.Error("existing target should be copied into the snapshot")
	}
}

func TestBackupManager_Create_FreshHost(t *testing.T) {
	exec := &mockExecutor{
		RunFunc: func(ctx context.Context, script string) (ExecResult, error) {
			if strings.HasPrefix(script, "test -d") {
				return ExecResult{ExitCode: 1}, nil
			}
			return ExecResult{ExitCode: 0}, nil
		},
	}
	mgr := testBackupManager(exec)

	record, err := mgr.Create(context.Background(), testSession())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if record.HasContent {
		t.Error("first deployment should produce a record without content")
	}
	if exec.ScriptCount("cp -a") != 0 {
		t.Error("nothing should be copied when the target does not exist")
	}
	if exec.ScriptCount("mkdir -p /var/www/app") != 1 {
		t.Error("the target directory should be created fresh")
	}
}

func TestBackupManager_Create_CopyFails(t *testing.T) {
	exec := &mockExecutor{
		RunFunc: func(ctx context.Context, script string) (ExecResult, error) {
			if strings.Contains(script, "cp -a") {
				return ExecResult{ExitCode: 1, Output: "cp: no space left on device"}, nil
			}
			return ExecResult{ExitCode: 0}, nil
		},
	}
	mgr := testBackupManager(exec)

	_, err := mgr.Create(context.Background(), testSession())
	if err == nil {
		t.Fatal("Create should fail when the copy fails")
	}
	if kind := FailureKindOf(err); kind != FailBackup {
		t.Errorf("failure kind = %q, want %q", kind, FailBackup)
	}
}

func TestBackupManager_Restore_NilRecord(t *testing.T) {
	mgr := testBackupManager(&mockExecutor{})

	err := mgr.Restore(context.Background(), nil)
	if err == nil {
		t.Fatal("Restore with no record should fail explicitly")
	}
	if kind := FailureKindOf(err); kind != FailRollback {
		t.Errorf("failure kind = %q, want %q", kind, FailRollback)
	}
}

func TestBackupManager_Restore_NoContent(t *testing.T) {
	exec := &mockExecutor{}
	mgr := testBackupManager(exec)

	err := mgr.Restore(context.Background(), &BackupRecord{ID: "20260101-120000", HasContent: false})
	if err == nil {
		t.Fatal("Restore of a contentless record should fail explicitly, not no-op")
	}
	if kind := FailureKindOf(err); kind != FailRollback {
		t.Errorf("failure kind = %q, want %q", kind, FailRollback)
	}
	if len(exec.Scripts()) != 0 {
		t.Error("no remote commands should run for a contentless record")
	}
}

func TestBackupManager_Restore_Success(t *testing.T) {
	exec := &mockExecutor{}
	mgr := testBackupManager(exec)
	record := &BackupRecord{
		ID:         "20260101-120000",
		Location:   "/tmp/shiplift-backups/20260101-120000",
		HasContent: true,
	}

	if err := mgr.Restore(context.Background(), record); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	scripts := exec.Scripts()
	wantOrder := []string{"systemctl stop", "rm -rf", "cp -a", "chown -R", "systemctl start"}
	if len(scripts) != len(wantOrder) {
		t.Fatalf("restore ran %d commands, want %d", len(scripts), len(wantOrder))
	}
	for i, fragment := range wantOrder {
		if !strings.Contains(scripts[i], fragment) {
			t.Errorf("restore step %d = %q, want it to contain %q", i, scripts[i], fragment)
		}
	}
}

func TestBackupManager_Restore_StepFailurePropagatesExitCode(t *testing.T) {
	exec := &mockExecutor{
		RunFunc: func(ctx context.Context, script string) (ExecResult, error) {
			if strings.Contains(script, "rm -rf") {
				return ExecResult{ExitCode: 3, Output: "rm: cannot remove"}, nil
			}
			return ExecResult{ExitCode: 0}, nil
		},
	}
	mgr := testBackupManager(exec)
	record := &BackupRecord{ID: "x", Location: "/tmp/shiplift-backups/x", HasContent: true}

	err := mgr.Restore(context.Background(), record)
	if err == nil {
		t.Fatal("Restore should fail when a step fails")
	}

	var perr *PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *PipelineError", err)
	}
	if perr.Kind != FailRollback || perr.ExitCode != 3 {
		t.Errorf("failure = %s/%d, want %s/3", perr.Kind, perr.ExitCode, FailRollback)
	}
}

func TestBackupManager_Prune_AgeThreshold(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.Local)
	old := now.Add(-10 * 24 * time.Hour).Format(sessionIDLayout)
	recent := now.Add(-time.Hour).Format(sessionIDLayout)

	exec := &mockExecutor{
		RunFunc: func(ctx context.Context, script string) (ExecResult, error) {
			if strings.HasPrefix(script, "ls -1") {
				return ExecResult{Output: old + "\n" + recent + "\nnot-a-snapshot\n"}, nil
			}
			return ExecResult{ExitCode: 0}, nil
		},
	}
	mgr := testBackupManager(exec)
	mgr.now = func() time.Time { return now }

	mgr.Prune(context.Background())

	if exec.ScriptCount("rm -rf /tmp/shiplift-backups/"+old) != 1 {
		t.Error("the snapshot past the retention age should be deleted")
	}
	if exec.ScriptCount("rm -rf /tmp/shiplift-backups/"+recent) != 0 {
		t.Error("a recent snapshot must not be deleted")
	}
	if exec.ScriptCount("rm -rf /tmp/shiplift-backups/not-a-snapshot") != 0 {
		t.Error("entries that do not parse as session timestamps must be left alone")
	}
}

func TestBackupManager_Prune_ListFailureIsSwallowed(t *testing.T) {
	exec := &mockExecutor{
		RunFunc: func(ctx context.Context, script string) (ExecResult, error) {
			return ExecResult{ExitCode: 1}, nil
		},
	}
	mgr := testBackupManager(exec)

	// Must not panic or error; pruning is best-effort.
	mgr.Prune(context.Background())

	if exec.ScriptCount("rm -rf") != 0 {
		t.Error("nothing should be deleted when listing fails")
	}
}
