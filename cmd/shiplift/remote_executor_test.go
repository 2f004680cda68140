package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shiplift/shiplift/cmd/shiplift/internal/infra/process"
)

func testSSHExecutor(proc process.Manager) *SSHExecutor {
	cfg := testConfig()
	return NewSSHExecutor(proc, cfg.Remote, 30*time.Second, testLogger())
}

func TestSSHExecutor_Run_Invocation(t *testing.T) {
	proc := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) (string, string, int, error) {
			return "shiplift-ping\n", "", 0, nil
		},
	}
	exec := testSSHExecutor(proc)

	result, err := exec.Run(context.Background(), "echo shiplift-ping")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ExitCode != 0 || result.Output != "shiplift-ping\n" {
		t.Errorf("result = %+v", result)
	}

	calls := proc.Calls()
	if len(calls) != 1 || calls[0].Name != "ssh" {
		t.Fatalf("calls = %+v, want a single ssh invocation", calls)
	}

	args := strings.Join(calls[0].Args, " ")
	if !strings.Contains(args, "BatchMode=yes") {
		t.Error("ssh must run in batch mode so a missing key fails instead of prompting")
	}
	if !strings.Contains(args, "deploy@web1.example.com") {
		t.Errorf("ssh args missing user@host: %s", args)
	}
	if calls[0].Args[len(calls[0].Args)-1] != "echo shiplift-ping" {
		t.Error("the script should be the final ssh argument")
	}
}

func TestSSHExecutor_Run_ExitCodePassthrough(t *testing.T) {
	proc := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) (string, string, int, error) {
			return "", "composer: not found", 127, nil
		},
	}
	exec := testSSHExecutor(proc)

	result, err := exec.Run(context.Background(), "composer install")
	if err != nil {
		t.Fatalf("a non-zero remote exit is not a transport error: %v", err)
	}
	if result.ExitCode != 127 {
		t.Errorf("exit code = %d, want 127 unchanged", result.ExitCode)
	}
	if !result.Failed() {
		t.Error("non-zero exit should report failure")
	}
	if !strings.Contains(result.Output, "composer: not found") {
		t.Errorf("stderr should be captured in output: %q", result.Output)
	}
}

func TestSSHExecutor_Run_SpawnFailure(t *testing.T) {
	proc := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) (string, string, int, error) {
			return "", "", -1, errors.New("fork/exec: no such file")
		},
	}
	exec := testSSHExecutor(proc)

	_, err := exec.Run(context.Background(), "true")
	if err == nil {
		t.Fatal("a spawn failure should surface as an error")
	}
	if !strings.Contains(err.Error(), "web1.example.com") {
		t.Errorf("error should name the host: %v", err)
	}
}

func TestSSHExecutor_Copy(t *testing.T) {
	proc := &process.MockManager{}
	exec := testSSHExecutor(proc)

	if err := exec.Copy(context.Background(), "/tmp/a.tar.gz", "/tmp/staged.tar.gz"); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}

	calls := proc.Calls()
	if len(calls) != 1 || calls[0].Name != "scp" {
		t.Fatalf("calls = %+v, want a single scp invocation", calls)
	}
	args := strings.Join(calls[0].Args, " ")
	if !strings.Contains(args, "deploy@web1.example.com:/tmp/staged.tar.gz") {
		t.Errorf("scp destination malformed: %s", args)
	}
}

func TestSSHExecutor_Copy_Failure(t *testing.T) {
	proc := &process.MockManager{
		RunFunc: func(ctx context.Context, name string, args ...string) (string, string, int, error) {
			return "", "scp: /tmp: Permission denied", 1, nil
		},
	}
	exec := testSSHExecutor(proc)

	err := exec.Copy(context.Background(), "/tmp/a.tar.gz", "/tmp/staged.tar.gz")
	if err == nil {
		t.Fatal("Copy should fail on non-zero scp exit")
	}
	if !strings.Contains(err.Error(), "Permission denied") {
		t.Errorf("error should carry scp stderr: %v", err)
	}
}

func TestEnforceTimeouts(t *testing.T) {
	if got := EnforceMinTimeout(time.Second, MinSSHTimeout); got != MinSSHTimeout {
		t.Errorf("sub-floor timeout = %v, want floor %v", got, MinSSHTimeout)
	}
	if got := EnforceMinTimeout(time.Minute, MinSSHTimeout); got != time.Minute {
		t.Errorf("above-floor timeout = %v, want unchanged", got)
	}
	if got := EnforceDefaultTimeout(0, DefaultInstallTimeout); got != DefaultInstallTimeout {
		t.Errorf("zero timeout = %v, want default %v", got, DefaultInstallTimeout)
	}
}
