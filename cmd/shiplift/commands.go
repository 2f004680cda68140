// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	rootCmd = &cobra.Command{
		Use:   "shiplift",
		Short: "Promote a packaged application release to a single remote host",
		Long: `Shiplift promotes a release to one remote host with an auditable,
				repeatable procedure: precheck, backup, package, upload, install,
				verify. Any failure rolls the host back to its last known-good
				state exactly once.`,
	}

	// --- Deploy ---
	deployCmd = &cobra.Command{
		Use:   "deploy",
		Short: "Run the full deployment pipeline against the configured host",
		Run:   runDeploy, // Defined in cmd_deploy.go
	}

	// --- Health ---
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Probe the deployed application and survey the host without deploying",
		Run:   runHealth, // Defined in cmd_health.go
	}

	// --- Backups ---
	backupsCmd = &cobra.Command{
		Use:   "backups",
		Short: "Inspect and prune the remote backup snapshots",
	}
	backupsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List snapshot directories under the backup root",
		Run:   runBackupsList, // Defined in cmd_backups.go
	}
	backupsPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete snapshots older than the retention age",
		Run:   runBackupsPrune, // Defined in cmd_backups.go
	}
)

func init() {
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(healthCmd)

	backupsCmd.AddCommand(backupsListCmd)
	backupsCmd.AddCommand(backupsPruneCmd)
	rootCmd.AddCommand(backupsCmd)
}
