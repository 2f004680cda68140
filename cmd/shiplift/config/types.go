// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ShipliftConfig is the fixed configuration a deploy run resolves before
// the pipeline starts. The deploy entry point takes no arguments; every
// parameter lives here.
type ShipliftConfig struct {
	// Remote: target host, credentials reference, and paths on the host.
	Remote RemoteConfig `yaml:"remote" validate:"required"`

	// Project: the local source tree being promoted.
	Project ProjectConfig `yaml:"project" validate:"required"`

	// Backup: snapshot location and retention.
	Backup BackupConfig `yaml:"backup"`

	// Services: the two core services and ownership identity on the host.
	Services ServicesConfig `yaml:"services"`

	// Health: blocking application probe and advisory survey inputs.
	Health HealthConfig `yaml:"health"`

	// Runtime: remote runtime version gate.
	Runtime RuntimeConfig `yaml:"runtime"`

	// Logging: local session log directory and remote mirror directory.
	Logging LoggingConfig `yaml:"logging"`

	// Timeouts: per-operation bounds, floor-enforced at use sites.
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

type RemoteConfig struct {
	// Host and User identify the ssh login, e.g. deploy@web1.example.com.
	Host string `yaml:"host" validate:"required"`
	User string `yaml:"user" validate:"required"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`

	// IdentityFile is the ssh private key, ~ expansion supported.
	IdentityFile string `yaml:"identity_file" validate:"required"`

	// TargetPath is the live deployment directory on the host.
	TargetPath string `yaml:"target_path" validate:"required,startswith=/"`

	// StagingDir is where uploaded archives land before extraction.
	StagingDir string `yaml:"staging_dir" validate:"required,startswith=/"`
}

type ProjectConfig struct {
	Path string `yaml:"path" validate:"required"` // local source root

	// MarkerFile must exist under Path for the tree to count as a valid
	// project (precheck).
	MarkerFile string `yaml:"marker_file" validate:"required"`

	// Excludes are tar exclude patterns applied while packaging.
	Excludes []string `yaml:"excludes"`
}

type BackupConfig struct {
	// Root is the remote directory holding one snapshot per session.
	Root string `yaml:"root" validate:"required,startswith=/"`

	// RetentionDays is the age threshold for pruning. Snapshots whose
	// session timestamp is older are deleted best-effort.
	RetentionDays int `yaml:"retention_days" validate:"min=1"`

	// Keep is advisory documentation of how many snapshots operators
	// expect to find; pruning is age-based, not count-based.
	Keep int `yaml:"keep"`
}

type ServicesConfig struct {
	// Web and App are the two core services restarted on deploy and
	// rollback, e.g. nginx and php8.2-fpm.
	Web string `yaml:"web" validate:"required"`
	App string `yaml:"app" validate:"required"`

	// Owner is the identity the deployed tree is chowned to, e.g.
	// www-data:www-data.
	Owner string `yaml:"owner" validate:"required"`

	// WorkerPattern matches background worker processes in the survey.
	WorkerPattern string `yaml:"worker_pattern"`
}

type HealthConfig struct {
	// URL is the application probe endpoint, e.g. https://app.example.com/healthz.
	URL string `yaml:"url" validate:"required,url"`

	// CheckDatabase gates the advisory database reachability check.
	CheckDatabase bool `yaml:"check_database"`

	// StorageDirs are remote directories whose writability the survey reports.
	StorageDirs []string `yaml:"storage_dirs"`

	// RequiredExtensions are runtime extensions the survey reports on.
	RequiredExtensions []string `yaml:"required_extensions"`

	// ProxyLog is the reverse-proxy log tailed by the survey.
	ProxyLog string `yaml:"proxy_log"`

	// AppLog is the application log tailed by the survey.
	AppLog string `yaml:"app_log"`
}

type RuntimeConfig struct {
	// VersionCommand prints the remote runtime version, e.g.
	// php -r 'echo PHP_VERSION;'
	VersionCommand string `yaml:"version_command" validate:"required"`

	// MinVersion is the minimum acceptable runtime version, e.g. 8.2.0.
	MinVersion string `yaml:"min_version" validate:"required"`
}

type LoggingConfig struct {
	// Dir holds the local append-only session logs.
	Dir string `yaml:"dir" validate:"required"`

	// RemoteDir is the best-effort mirror target on the host for the
	// session log of a failed run.
	RemoteDir string `yaml:"remote_dir"`
}

type TimeoutConfig struct {
	SSHSeconds     int `yaml:"ssh_seconds" validate:"min=0"`     // per remote invocation
	ProbeSeconds   int `yaml:"probe_seconds" validate:"min=0"`   // application probe
	InstallSeconds int `yaml:"install_seconds" validate:"min=0"` // long remote sub-steps
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() ShipliftConfig {
	return ShipliftConfig{
		Remote: RemoteConfig{
			Host:         "web1.example.com",
			User:         "deploy",
			Port:         22,
			IdentityFile: "~/.ssh/id_ed25519",
			TargetPath:   "/var/www/app",
			StagingDir:   "/tmp",
		},
		Project: ProjectConfig{
			Path:       ".",
			MarkerFile: "composer.json",
			Excludes: []string{
				".git",
				"node_modules",
				"vendor",
				"storage/logs/*",
				".env",
			},
		},
		Backup: BackupConfig{
			Root:          "/tmp/shiplift-backups",
			RetentionDays: 7,
			Keep:          5,
		},
		Services: ServicesConfig{
			Web:           "nginx",
			App:           "php8.2-fpm",
			Owner:         "www-data:www-data",
			WorkerPattern: "queue:work",
		},
		Health: HealthConfig{
			URL:                "http://web1.example.com/up",
			CheckDatabase:      false,
			StorageDirs:        []string{"/var/www/app/storage", "/var/www/app/bootstrap/cache"},
			RequiredExtensions: []string{"pdo_mysql", "mbstring", "openssl"},
			ProxyLog:           "/var/log/nginx/error.log",
			AppLog:             "/var/www/app/storage/logs/laravel.log",
		},
		Runtime: RuntimeConfig{
			VersionCommand: `php -r 'echo PHP_VERSION;'`,
			MinVersion:     "8.2.0",
		},
		Logging: LoggingConfig{
			Dir:       "~/.shiplift/logs",
			RemoteDir: "/tmp/shiplift-logs",
		},
		Timeouts: TimeoutConfig{
			SSHSeconds:     60,
			ProbeSeconds:   10,
			InstallSeconds: 600,
		},
	}
}

// Validate checks the configuration against its struct tags.
//
// # Description
//
// Runs go-playground/validator over the whole tree and wraps the first
// failure in a readable error naming the offending field.
func (c *ShipliftConfig) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("config field %s failed %q validation", fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("config validation could not run: %w", err)
}
