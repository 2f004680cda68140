package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shiplift/shiplift/cmd/shiplift/config"
	"github.com/shiplift/shiplift/pkg/logging"
)

// HealthHTTPClient abstracts the HTTP client for the application probe
// so tests can inject responses without a network.
type HealthHTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HealthChecker probes the deployed application and surveys the
// surrounding system.
//
// # Description
//
// Two independent probes with different contracts:
//
//   - ProbeApplication is blocking: a transport error, a timeout, or a
//     status code outside [200, 400) yields HealthCheckFailure, which
//     routes to rollback exactly like a remote step failure.
//   - SurveySystem is advisory: every check is rendered in the report
//     but no individual failure escalates or blocks the outcome.
//
// # Thread Safety
//
// Safe for concurrent use; all state is read-only after construction.
type HealthChecker struct {
	httpClient HealthHTTPClient
	exec       RemoteExecutor
	cfg        *config.ShipliftConfig
	log        *logging.Logger
	timeout    time.Duration
}

// NewHealthChecker creates a checker with the production HTTP client.
func NewHealthChecker(exec RemoteExecutor, cfg *config.ShipliftConfig, log *logging.Logger) *HealthChecker {
	timeout := EnforceMinTimeout(time.Duration(cfg.Timeouts.ProbeSeconds)*time.Second, MinProbeTimeout)
	return NewHealthCheckerWithHTTPClient(exec, cfg, log, &http.Client{Timeout: timeout})
}

// NewHealthCheckerWithHTTPClient creates a checker with an injected HTTP
// client (tests).
func NewHealthCheckerWithHTTPClient(exec RemoteExecutor, cfg *config.ShipliftConfig, log *logging.Logger, client HealthHTTPClient) *HealthChecker {
	return &HealthChecker{
		httpClient: client,
		exec:       exec,
		cfg:        cfg,
		log:        log,
		timeout:    EnforceMinTimeout(time.Duration(cfg.Timeouts.ProbeSeconds)*time.Second, MinProbeTimeout),
	}
}

// ProbeApplication issues the blocking health request.
//
// # Description
//
// A bounded-timeout GET against the configured endpoint. Success
// requires both the request completing without a network-level error and
// the status code falling in [200, 400). Latency is recorded for
// diagnostics but never gates the result.
//
// # Outputs
//
//   - *AppProbeResult: Always returned, including on failure
//   - error: HealthCheckFailure when the probe fails; nil otherwise
func (h *HealthChecker) ProbeApplication(ctx context.Context) (*AppProbeResult, error) {
	result := &AppProbeResult{ID: uuid.NewString()}

	probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, h.cfg.Health.URL, nil)
	if err != nil {
		result.Detail = fmt.Sprintf("invalid health endpoint: %v", err)
		return result, NewPipelineError(FailHealthCheck, "", 1, result.Detail, err)
	}

	start := time.Now()
	resp, err := h.httpClient.Do(req)
	result.Latency = time.Since(start)

	if err != nil {
		result.Detail = fmt.Sprintf("request failed after %v: %v", result.Latency.Round(time.Millisecond), err)
		h.log.Error("application probe failed", "url", h.cfg.Health.URL, "error", err.Error())
		return result, NewPipelineError(FailHealthCheck, "", 1, result.Detail, err)
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.Healthy = resp.StatusCode >= 200 && resp.StatusCode < 400
	result.Detail = fmt.Sprintf("GET %s -> %d in %v", h.cfg.Health.URL, resp.StatusCode, result.Latency.Round(time.Millisecond))

	if !result.Healthy {
		h.log.Error("application probe unhealthy",
			"url", h.cfg.Health.URL,
			"status_code", resp.StatusCode,
			"latency_ms", result.Latency.Milliseconds(),
		)
		return result, NewPipelineError(FailHealthCheck, "", 1, result.Detail, nil)
	}

	h.log.Info("application probe healthy",
		"status_code", resp.StatusCode,
		"latency_ms", result.Latency.Milliseconds(),
	)
	return result, nil
}

// ProbeCheckResult converts a probe outcome into a report entry.
func ProbeCheckResult(probe *AppProbeResult) CheckResult {
	status := StatusFail
	if probe.Healthy {
		status = StatusPass
	}
	return CheckResult{
		ID:       probe.ID,
		Name:     "application endpoint",
		Category: CategoryApplication,
		Status:   status,
		Detail:   probe.Detail,
	}
}

// surveyCheck is one advisory probe in the system survey.
type surveyCheck struct {
	name   string
	script string
}

// SurveySystem runs the advisory system survey.
//
// # Description
//
// Reports OS and kernel, uptime, CPU, memory, and disk utilization,
// network interfaces, per-service status, runtime version and required
// extensions, application version and environment flags, database
// reachability (config-gated), storage directory writability, log
// tails, and running background workers. Checks run strictly one after
// another; any individual failure is recorded as a failing entry and
// never escalates.
//
// # Outputs
//
//   - *HealthReport: Never nil; contains one entry per check
func (h *HealthChecker) SurveySystem(ctx context.Context) *HealthReport {
	report := &HealthReport{GeneratedAt: time.Now()}

	for _, check := range h.surveyChecks() {
		report.Append(h.runSurveyCheck(ctx, check))
	}
	return report
}

// runSurveyCheck executes one advisory check and classifies its outcome.
func (h *HealthChecker) runSurveyCheck(ctx context.Context, check surveyCheck) CheckResult {
	result := CheckResult{
		ID:       uuid.NewString(),
		Name:     check.name,
		Category: CategoryInfrastructure,
	}

	exec, err := h.exec.Run(ctx, check.script)
	switch {
	case err != nil:
		result.Status = StatusUnknown
		result.Detail = err.Error()
	case exec.Failed():
		result.Status = StatusFail
		result.Detail = truncateDetail(exec.Output)
	default:
		result.Status = StatusPass
		result.Detail = truncateDetail(exec.Output)
	}
	return result
}

// surveyChecks assembles the fixed advisory check list from config.
func (h *HealthChecker) surveyChecks() []surveyCheck {
	target := h.cfg.Remote.TargetPath
	health := h.cfg.Health

	checks := []surveyCheck{
		{"os and kernel", "uname -a"},
		{"uptime", "uptime"},
		{"cpu load", "cat /proc/loadavg"},
		{"memory utilization", "free -m"},
		{"disk utilization", fmt.Sprintf("df -h %s", target)},
		{"network interfaces", "ip -brief addr"},
	}

	for _, service := range []string{h.cfg.Services.Web, h.cfg.Services.App} {
		checks = append(checks, surveyCheck{
			name: fmt.Sprintf("service %s", service),
			script: fmt.Sprintf("systemctl is-active %s && systemctl list-unit-files %s.service --no-legend",
				service, service),
		})
	}

	checks = append(checks, surveyCheck{"runtime version", h.cfg.Runtime.VersionCommand})
	for _, ext := range health.RequiredExtensions {
		checks = append(checks, surveyCheck{
			name:   fmt.Sprintf("runtime extension %s", ext),
			script: fmt.Sprintf("php -m | grep -qi '^%s$'", ext),
		})
	}

	checks = append(checks,
		surveyCheck{"application version", fmt.Sprintf("cd %s && php artisan --version", target)},
		surveyCheck{"application environment", fmt.Sprintf("grep -E '^APP_(ENV|DEBUG)=' %s/.env", target)},
	)

	if health.CheckDatabase {
		checks = append(checks, surveyCheck{
			name:   "database reachability",
			script: fmt.Sprintf("cd %s && php artisan migrate:status >/dev/null && echo reachable", target),
		})
	}

	for _, dir := range health.StorageDirs {
		checks = append(checks, surveyCheck{
			name:   fmt.Sprintf("writable %s", dir),
			script: fmt.Sprintf("test -w %s && echo writable", dir),
		})
	}

	if health.AppLog != "" {
		checks = append(checks, surveyCheck{"application log tail", fmt.Sprintf("tail -n 20 %s", health.AppLog)})
	}
	if health.ProxyLog != "" {
		checks = append(checks, surveyCheck{"reverse proxy log tail", fmt.Sprintf("tail -n 20 %s", health.ProxyLog)})
	}

	if pattern := h.cfg.Services.WorkerPattern; pattern != "" {
		checks = append(checks, surveyCheck{
			name:   "background workers",
			script: fmt.Sprintf("pgrep -af '%s' || echo 'no workers running'", pattern),
		})
	}

	return checks
}

// truncateDetail bounds check evidence for the report.
func truncateDetail(output string) string {
	const maxDetail = 500
	detail := strings.TrimSpace(output)
	if len(detail) > maxDetail {
		return detail[:maxDetail] + "..."
	}
	return detail
}
