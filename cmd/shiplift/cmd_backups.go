package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shiplift/shiplift/cmd/shiplift/config"
	"github.com/shiplift/shiplift/cmd/shiplift/internal/infra/process"
	"github.com/shiplift/shiplift/pkg/logging"
)

// runBackupsList prints the snapshot directories under the backup root,
// newest first, with their parsed creation times and age.
func runBackupsList(cmd *cobra.Command, args []string) {
	cfg := &config.Global
	exec, logger := backupsExecutor(cfg)
	defer logger.Close()

	result, err := exec.Run(context.Background(), fmt.Sprintf("ls -1 %s 2>/dev/null", cfg.Backup.Root))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not list %s: %v\n", cfg.Backup.Root, err)
		os.Exit(1)
	}
	if result.Failed() {
		fmt.Fprintf(os.Stderr, "Error: could not list %s (exit %d)\n", cfg.Backup.Root, result.ExitCode)
		os.Exit(1)
	}

	names := strings.Fields(result.Output)
	if len(names) == 0 {
		fmt.Printf("No backups under %s\n", cfg.Backup.Root)
		return
	}

	// Session identifiers sort lexically in chronological order.
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		created, err := time.ParseInLocation(sessionIDLayout, name, time.Local)
		if err != nil {
			fmt.Printf("  %s  (not a session snapshot)\n", name)
			continue
		}
		fmt.Printf("  %s  created %s  age %s\n",
			name,
			created.Format(time.RFC3339),
			time.Since(created).Round(time.Minute),
		)
	}
}

// runBackupsPrune deletes snapshots older than the retention age.
//
// Same best-effort semantics as the pruning pass inside a deploy:
// individual deletion failures are logged, never fatal.
func runBackupsPrune(cmd *cobra.Command, args []string) {
	cfg := &config.Global
	exec, logger := backupsExecutor(cfg)
	defer logger.Close()

	backups := NewBackupManager(exec, cfg, logger)
	backups.Prune(context.Background())
	fmt.Printf("Pruned snapshots older than %d days under %s\n", cfg.Backup.RetentionDays, cfg.Backup.Root)
}

// backupsExecutor wires a short-timeout remote executor for the backup
// subcommands.
func backupsExecutor(cfg *config.ShipliftConfig) (RemoteExecutor, *logging.Logger) {
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  cfg.Logging.Dir,
		Service: "backups",
		Session: NewSessionID(),
		Quiet:   true,
	})
	proc := process.NewDefaultManager()
	exec := NewSSHExecutor(proc, cfg.Remote, time.Duration(cfg.Timeouts.SSHSeconds)*time.Second, logger)
	return exec, logger
}
