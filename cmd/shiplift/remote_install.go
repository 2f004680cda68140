package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/shiplift/shiplift/cmd/shiplift/config"
	"github.com/shiplift/shiplift/pkg/logging"
)

// RemoteStep is one named, independently attributable unit of the remote
// install sequence.
//
// Each sub-step returns a structured result; failure attribution is by
// step identity, never by parsing free-text output.
type RemoteStep struct {
	// Name identifies the sub-step in results, logs, and failures.
	Name string

	// Script is the shell fragment executed for this sub-step. Empty when
	// Check is set instead.
	Script string

	// Check, when non-nil, replaces plain script execution with a local
	// decision over remote output (used by the runtime version gate).
	Check func(ctx context.Context) error
}

// RemoteInstaller executes the fixed ordered install sequence on the
// remote host.
//
// # Description
//
// The sequence is: extract payload, ensure environment file, verify
// minimum runtime version, install dependencies, generate missing
// secrets, run migrations, build front-end assets when a manifest is
// present, rebuild framework caches, fix ownership and permissions,
// restart the two core services (restart, fixed delay, active poll),
// restart background workers when a supervisor is present.
//
// Any sub-step exiting non-zero aborts the whole stage with a
// RemoteStepFailure carrying the sub-step name and the command's own
// exit status. There is no retry-in-place.
type RemoteInstaller struct {
	exec         RemoteExecutor
	cfg          *config.ShipliftConfig
	log          *logging.Logger
	restartDelay time.Duration // post-restart delay before the liveness poll
}

// NewRemoteInstaller creates the install stage for the configured host.
func NewRemoteInstaller(exec RemoteExecutor, cfg *config.ShipliftConfig, log *logging.Logger) *RemoteInstaller {
	return &RemoteInstaller{
		exec:         exec,
		cfg:          cfg,
		log:          log,
		restartDelay: ServiceRestartDelay,
	}
}

// Steps returns the ordered install sequence for the given staged archive.
func (r *RemoteInstaller) Steps(stagedArchive string) []RemoteStep {
	target := r.cfg.Remote.TargetPath
	svc := r.cfg.Services

	steps := []RemoteStep{
		{
			Name:   "extract payload",
			Script: fmt.Sprintf("mkdir -p %s && tar -xzf %s -C %s", target, stagedArchive, target),
		},
		{
			Name:   "ensure environment file",
			Script: fmt.Sprintf("cd %s && ([ -f .env ] || cp .env.example .env)", target),
		},
		{
			Name:  "verify runtime version",
			Check: r.verifyRuntimeVersion,
		},
		{
			Name:   "install dependencies",
			Script: fmt.Sprintf("cd %s && composer install --no-dev --no-interaction --prefer-dist --optimize-autoloader", target),
		},
		{
			Name:   "generate missing secrets",
			Script: fmt.Sprintf(`cd %s && (grep -q '^APP_KEY=.\+' .env || php artisan key:generate --force)`, target),
		},
		{
			Name:   "run database migrations",
			Script: fmt.Sprintf("cd %s && php artisan migrate --force", target),
		},
		{
			Name:   "build front-end assets",
			Script: fmt.Sprintf("cd %s && if [ -f package.json ]; then npm ci --no-audit && npm run build; fi", target),
		},
		{
			Name:   "rebuild framework caches",
			Script: fmt.Sprintf("cd %s && php artisan config:cache && php artisan route:cache && php artisan view:cache", target),
		},
		{
			Name: "fix ownership and permissions",
			Script: fmt.Sprintf("chown -R %s %s && chmod -R ug+rwX %s/storage %s/bootstrap/cache",
				svc.Owner, target, target, target),
		},
	}

	for _, service := range []string{svc.Web, svc.App} {
		steps = append(steps, RemoteStep{
			Name: fmt.Sprintf("restart service %s", service),
			Script: fmt.Sprintf("systemctl restart %s && sleep %d && systemctl is-active --quiet %s",
				service, int(r.restartDelay.Seconds()), service),
		})
	}

	steps = append(steps, RemoteStep{
		Name:   "restart background workers",
		Script: "if command -v supervisorctl >/dev/null 2>&1; then supervisorctl restart all; fi",
	})

	return steps
}

// Run executes the install sequence, recording one structured result per
// sub-step on the session.
//
// # Outputs
//
//   - error: RemoteStepFailure naming the first failing sub-step and
//     carrying its exit status unchanged; nil when all sub-steps pass
func (r *RemoteInstaller) Run(ctx context.Context, session *DeploymentSession, stagedArchive string) error {
	for _, step := range r.Steps(stagedArchive) {
		// A cancelled run is an operator interrupt, not a sub-step defect.
		if err := ctx.Err(); err != nil {
			return NewPipelineError(FailInterrupted, step.Name, ExitInterrupt, "", err)
		}

		r.log.Info("remote install sub-step", "step", step.Name)
		start := time.Now()

		if step.Check != nil {
			err := step.Check(ctx)
			code := 0
			if err != nil {
				code = ExitCodeFor(err)
			}
			session.RecordStep(step.Name, err == nil, code, "", time.Since(start))
			if err != nil {
				return err
			}
			continue
		}

		result, err := r.exec.Run(ctx, step.Script)
		session.RecordStep(step.Name, err == nil && !result.Failed(), result.ExitCode, result.Output, time.Since(start))
		if err != nil {
			return NewPipelineError(FailRemoteStep, step.Name, 1, result.Output, err)
		}
		if result.Failed() {
			return NewPipelineError(FailRemoteStep, step.Name, result.ExitCode, result.Output, nil)
		}
	}
	return nil
}

// verifyRuntimeVersion compares the remote runtime's reported version
// against the configured minimum.
//
// # Description
//
// Runs the configured version command remotely and compares the reported
// version against Runtime.MinVersion using semantic version ordering.
// The comparison happens locally so a subtly broken remote shell cannot
// fake a pass.
func (r *RemoteInstaller) verifyRuntimeVersion(ctx context.Context) error {
	result, err := r.exec.Run(ctx, r.cfg.Runtime.VersionCommand)
	if err != nil {
		return NewPipelineError(FailRemoteStep, "verify runtime version", 1, result.Output, err)
	}
	if result.Failed() {
		return NewPipelineError(FailRemoteStep, "verify runtime version", result.ExitCode, result.Output, nil)
	}

	got := canonicalVersion(result.Output)
	want := canonicalVersion(r.cfg.Runtime.MinVersion)
	if got == "" {
		return NewPipelineError(FailRemoteStep, "verify runtime version", 1, result.Output,
			fmt.Errorf("could not parse runtime version from %q", strings.TrimSpace(result.Output)))
	}

	if semver.Compare(got, want) < 0 {
		return NewPipelineError(FailRemoteStep, "verify runtime version", 1, result.Output,
			fmt.Errorf("runtime version %s is below minimum %s",
				strings.TrimPrefix(got, "v"), r.cfg.Runtime.MinVersion))
	}

	r.log.Info("runtime version verified",
		"version", strings.TrimPrefix(got, "v"),
		"minimum", r.cfg.Runtime.MinVersion,
	)
	return nil
}

// canonicalVersion normalizes a raw version string ("8.2.7", "v8.2.7",
// "8.2.7-extra") into the canonical form semver.Compare expects.
func canonicalVersion(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	// Keep only the leading version token.
	if i := strings.IndexAny(v, " \t\n"); i >= 0 {
		v = v[:i]
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}
