package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shiplift/shiplift/cmd/shiplift/config"
	"github.com/shiplift/shiplift/cmd/shiplift/internal/infra/process"
	"github.com/shiplift/shiplift/pkg/logging"
)

// runHealth probes the deployed application and surveys the host
// without deploying anything.
//
// # Description
//
// Standalone rendition of the pipeline's verification stages: the
// blocking application probe runs first, then the advisory system
// survey. The probe result leads the report. Exit status follows the
// probe alone; advisory failures are visible in the report but never
// change the exit code.
func runHealth(cmd *cobra.Command, args []string) {
	cfg := &config.Global

	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  cfg.Logging.Dir,
		Service: "health",
		Session: NewSessionID(),
		Quiet:   true,
	})
	defer logger.Close()

	proc := process.NewDefaultManager()
	exec := NewSSHExecutor(proc, cfg.Remote, time.Duration(cfg.Timeouts.SSHSeconds)*time.Second, logger)
	health := NewHealthChecker(exec, cfg, logger)

	ctx := context.Background()

	probe, probeErr := health.ProbeApplication(ctx)

	report := health.SurveySystem(ctx)
	report.Checks = append([]CheckResult{ProbeCheckResult(probe)}, report.Checks...)
	report.Render(os.Stdout)

	if probeErr != nil {
		os.Exit(1)
	}
}
