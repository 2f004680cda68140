package main

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies a pipeline failure.
//
// # Description
//
// Every failure that reaches the escalator carries exactly one kind.
// Pruning failures and advisory survey failures never become
// PipelineErrors; they are logged and swallowed at their source.
type FailureKind string

const (
	FailPrecheck     FailureKind = "PrecheckFailure"
	FailConnectivity FailureKind = "ConnectivityFailure"
	FailBackup       FailureKind = "BackupFailure"
	FailPackaging    FailureKind = "PackagingFailure"
	FailUpload       FailureKind = "UploadFailure"
	FailRemoteStep   FailureKind = "RemoteStepFailure"
	FailHealthCheck  FailureKind = "HealthCheckFailure"
	FailRollback     FailureKind = "RollbackFailure"

	// FailInterrupted and FailTerminated model operator signals routed
	// through the same failure funnel as stage failures.
	FailInterrupted FailureKind = "Interrupted"
	FailTerminated  FailureKind = "Terminated"
)

// Conventional exit codes for signal-triggered terminations.
const (
	ExitInterrupt = 130
	ExitTerminate = 143
)

// PipelineError is the structured failure every stage returns.
//
// # Description
//
// Carries the failure kind, the sub-step that failed (remote install
// only), the exit status to terminate the process with, and the captured
// output for diagnostics. Modeled so failure attribution is structural,
// not free-text matching.
//
// # Example
//
//	err := NewPipelineError(FailRemoteStep, "run database migrations", 2, out, nil)
//	var perr *PipelineError
//	if errors.As(err, &perr) {
//	    fmt.Println(perr.Kind, perr.Substep, perr.ExitCode)
//	}
type PipelineError struct {
	// Kind is the failure classification.
	Kind FailureKind

	// Substep names the remote install sub-step that failed. Empty for
	// every other kind.
	Substep string

	// ExitCode is the status the process terminates with. Remote command
	// failures propagate the command's own status unchanged; everything
	// else defaults to 1.
	ExitCode int

	// Output is the captured command or probe output, verbatim.
	Output string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error returns a clearly labeled single-line description.
func (e *PipelineError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Substep != "" {
		fmt.Fprintf(&b, "{%s}", e.Substep)
	}
	fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	if e.Wrapped != nil {
		fmt.Fprintf(&b, ": %v", e.Wrapped)
	} else if out := strings.TrimSpace(e.Output); out != "" {
		fmt.Fprintf(&b, ": %s", firstLine(out))
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *PipelineError) Unwrap() error {
	return e.Wrapped
}

// NewPipelineError creates a PipelineError with full context.
//
// # Inputs
//
//   - kind: Failure classification
//   - substep: Remote sub-step name ("" outside remote install)
//   - exitCode: Status to exit with (values < 1 are normalized to 1)
//   - output: Captured output (kept verbatim)
//   - wrapped: Underlying error (may be nil)
func NewPipelineError(kind FailureKind, substep string, exitCode int, output string, wrapped error) *PipelineError {
	if exitCode < 1 {
		exitCode = 1
	}
	return &PipelineError{
		Kind:     kind,
		Substep:  substep,
		ExitCode: exitCode,
		Output:   output,
		Wrapped:  wrapped,
	}
}

// ExitCodeFor maps any error to the status the process should exit with.
//
// # Description
//
// PipelineErrors carry their own status (remote failures propagate the
// failing command's code; signals use 130/143). Anything else is a
// generic failure: 1.
func ExitCodeFor(err error) int {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.ExitCode
	}
	return 1
}

// FailureKindOf extracts the kind from an error chain, or "" if none.
func FailureKindOf(err error) FailureKind {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

// firstLine truncates multi-line output for one-line error rendering.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
