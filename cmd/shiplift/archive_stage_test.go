package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shiplift/shiplift/cmd/shiplift/internal/infra/process"
)

func testArchiveStage(proc process.Manager, exec RemoteExecutor) *ArchiveStage {
	return NewArchiveStage(proc, exec, testConfig(), testLogger())
}

func TestArchiveStage_Package(t *testing.T) {
	proc := &process.MockManager{}
	stage := testArchiveStage(proc, &mockExecutor{})
	session := testSession()

	archivePath, err := stage.Package(context.Background(), session)
	if err != nil {
		t.Fatalf("Package failed: %v", err)
	}
	if !strings.Contains(archivePath, session.ID) {
		t.Errorf("archive path %q should embed the session identifier", archivePath)
	}

	calls := proc.Calls()
	if len(calls) != 1 || calls[0].Name != "tar" {
		t.Fatalf("calls = %+v, want a single tar invocation", calls)
	}

	args := strings.Join(calls[0].Args, " ")
	for _, pattern := range []string{".git", "node_modules", "vendor"} {
		if !strings.Contains(args, "--exclude "+pattern) {
			t.Errorf("tar args missing exclude for %q: %s", pattern, args)
		}
	}
	if !strings.Contains(args, "-czf "+archivePath) {
		t.Errorf("tar args should create %q: %s", archivePath, args)
	}
}

func TestArchiveStage_Package_TarFailure(t *testing.T) {
	proc := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) (string, string, int, error) {
			return "", "tar: Cannot open: Permission denied", 2, nil
		},
	}
	stage := testArchiveStage(proc, &mockExecutor{})

	_, err := stage.Package(context.Background(), testSession())
	if err == nil {
		t.Fatal("Package should fail when tar fails")
	}

	var perr *PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *PipelineError", err)
	}
	if perr.Kind != FailPackaging || perr.ExitCode != 2 {
		t.Errorf("failure = %s/%d, want %s/2", perr.Kind, perr.ExitCode, FailPackaging)
	}
}

func TestArchiveStage_Upload(t *testing.T) {
	exec := &mockExecutor{}
	stage := testArchiveStage(&process.MockManager{}, exec)

	remotePath, err := stage.Upload(context.Background(), "/tmp/shiplift-x.tar.gz")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if remotePath != "/tmp/shiplift-x.tar.gz" {
		t.Errorf("remote path = %q, want the archive staged under /tmp", remotePath)
	}
	if len(exec.copies) != 1 {
		t.Errorf("copies = %v, want exactly one transfer", exec.copies)
	}
}

func TestArchiveStage_Upload_Failure(t *testing.T) {
	exec := &mockExecutor{
		CopyFunc: func(ctx context.Context, localPath, remotePath string) error {
			return errors.New("scp: connection closed")
		},
	}
	stage := testArchiveStage(&process.MockManager{}, exec)

	_, err := stage.Upload(context.Background(), "/tmp/shiplift-x.tar.gz")
	if kind := FailureKindOf(err); kind != FailUpload {
		t.Errorf("failure kind = %q, want %q", kind, FailUpload)
	}
}

func TestArchiveStage_Discard(t *testing.T) {
	stage := testArchiveStage(&process.MockManager{}, &mockExecutor{})

	archive := filepath.Join(t.TempDir(), "shiplift-x.tar.gz")
	if err := os.WriteFile(archive, []byte("payload"), 0644); err != nil {
		t.Fatalf("could not create test archive: %v", err)
	}

	stage.Discard(archive)
	if _, err := os.Stat(archive); !os.IsNotExist(err) {
		t.Error("Discard should remove the archive")
	}

	// Best-effort contract: none of these may panic.
	stage.Discard(archive) // already gone
	stage.Discard("")      // never staged
}
