package main

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// =============================================================================
// STRUCTURED HEALTH MODEL
// =============================================================================

// CheckCategory separates blocking from informational checks.
type CheckCategory string

const (
	// CategoryApplication checks gate the deploy outcome: a failing
	// application check routes to rollback.
	CategoryApplication CheckCategory = "application"

	// CategoryInfrastructure checks are informational only.
	CategoryInfrastructure CheckCategory = "infrastructure"
)

// CheckStatus is the outcome of one check.
type CheckStatus string

const (
	StatusPass    CheckStatus = "pass"
	StatusFail    CheckStatus = "fail"
	StatusUnknown CheckStatus = "unknown"
)

// CheckResult is one typed entry in a health report.
//
// The report is kept structured end to end; it is rendered to text only
// at the presentation boundary.
type CheckResult struct {
	// ID is a unique correlation identifier.
	ID string

	// Name identifies the check (e.g. "disk utilization").
	Name string

	// Category decides whether a failure blocks the pipeline.
	Category CheckCategory

	// Status is pass, fail, or unknown (check infrastructure broke).
	Status CheckStatus

	// Detail is the captured evidence, trimmed for display.
	Detail string
}

// HealthReport is an ordered list of check results.
type HealthReport struct {
	// GeneratedAt is when the report was assembled.
	GeneratedAt time.Time

	// Checks are the results in execution order.
	Checks []CheckResult
}

// Append adds a result to the report.
func (r *HealthReport) Append(result CheckResult) {
	r.Checks = append(r.Checks, result)
}

// HasBlockingFailure reports whether any application-category check
// failed. Infrastructure-category failures never block.
func (r *HealthReport) HasBlockingFailure() bool {
	for _, c := range r.Checks {
		if c.Category == CategoryApplication && c.Status == StatusFail {
			return true
		}
	}
	return false
}

// Render writes the report as operator-facing text.
//
// This is the presentation boundary; nothing upstream consumes the
// rendered form.
func (r *HealthReport) Render(w io.Writer) {
	fmt.Fprintf(w, "Health report (%s)\n", r.GeneratedAt.Format(time.RFC3339))
	for _, category := range []CheckCategory{CategoryApplication, CategoryInfrastructure} {
		header := false
		for _, c := range r.Checks {
			if c.Category != category {
				continue
			}
			if !header {
				fmt.Fprintf(w, "\n== %s checks ==\n", category)
				header = true
			}
			fmt.Fprintf(w, "  [%s] %s\n", statusGlyph(c.Status), c.Name)
			if detail := strings.TrimSpace(c.Detail); detail != "" {
				for _, line := range strings.Split(detail, "\n") {
					fmt.Fprintf(w, "        %s\n", line)
				}
			}
		}
	}
}

func statusGlyph(status CheckStatus) string {
	switch status {
	case StatusPass:
		return "PASS"
	case StatusFail:
		return "FAIL"
	default:
		return " ?? "
	}
}

// AppProbeResult is the structured outcome of the application probe.
type AppProbeResult struct {
	// ID is a unique correlation identifier.
	ID string

	// StatusCode is the HTTP status returned, 0 on transport error.
	StatusCode int

	// Latency is the observed response time; recorded for diagnostics,
	// never gating.
	Latency time.Duration

	// Healthy is true iff the request completed without a network-level
	// error and the status code lies in [200, 400).
	Healthy bool

	// Detail describes the outcome for the report.
	Detail string
}
