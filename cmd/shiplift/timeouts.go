package main

import "time"

// Timeout constants define minimum and default values for various operations.
//
// These constants prevent accidental infinite hangs by ensuring all
// operations have a reasonable timeout even if misconfigured. A hung
// remote host must surface as a stage failure, not stall the pipeline.
const (
	// MinSSHTimeout is the absolute minimum for any remote invocation.
	// Prevents accidental infinite hangs from zero timeouts.
	MinSSHTimeout = 5 * time.Second

	// MinProbeTimeout is the absolute minimum for the application probe.
	MinProbeTimeout = 1 * time.Second

	// DefaultSSHTimeout is the standard bound for short remote commands.
	DefaultSSHTimeout = 60 * time.Second

	// DefaultProbeTimeout is the standard bound for the application probe.
	DefaultProbeTimeout = 10 * time.Second

	// DefaultInstallTimeout bounds the long remote sub-steps (dependency
	// install, migrations, asset builds).
	DefaultInstallTimeout = 10 * time.Minute

	// ServiceRestartDelay is the fixed pause between restarting a service
	// and polling its active status.
	ServiceRestartDelay = 2 * time.Second
)

// EnforceMinTimeout returns at least the minimum timeout.
//
// # Description
//
// Ensures a timeout is never below the specified minimum. If the requested
// timeout is zero, negative, or below the minimum, returns the minimum
// instead. This prevents misconfiguration from causing infinite hangs.
//
// # Inputs
//
//   - requested: The timeout value requested by the caller
//   - minimum: The absolute minimum acceptable timeout
//
// # Outputs
//
//   - time.Duration: The requested timeout if valid, otherwise the minimum
//
// # Example
//
//	timeout := EnforceMinTimeout(cfgTimeout, MinProbeTimeout)
//	client := &http.Client{Timeout: timeout}
func EnforceMinTimeout(requested, minimum time.Duration) time.Duration {
	if requested <= 0 || requested < minimum {
		return minimum
	}
	return requested
}

// EnforceDefaultTimeout returns the default if the requested is zero or negative.
//
// # Description
//
// Unlike EnforceMinTimeout, this only applies the default when the value
// is explicitly zero or negative. Useful when any positive value is
// acceptable but a sensible default is wanted.
func EnforceDefaultTimeout(requested, fallback time.Duration) time.Duration {
	if requested <= 0 {
		return fallback
	}
	return requested
}
