package main

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shiplift/shiplift/pkg/logging"
)

// SessionState names a position in the deployment state machine.
//
// Forward states are produced by exactly one stage each; RollingBack and
// Failed form the absorbing failure branch reachable from any
// non-terminal state.
type SessionState string

const (
	StateInit            SessionState = "Init"
	StatePrechecked      SessionState = "Prechecked"
	StateConnected       SessionState = "Connected"
	StateBackedUp        SessionState = "BackedUp"
	StatePackaged        SessionState = "Packaged"
	StateUploaded        SessionState = "Uploaded"
	StateRemoteInstalled SessionState = "RemoteInstalled"
	StateHealthVerified  SessionState = "HealthVerified"
	StateCompleted       SessionState = "Completed"
	StateRollingBack     SessionState = "RollingBack"
	StateFailed          SessionState = "Failed"
)

// StepResult records the outcome of one pipeline step.
//
// Append-only: once recorded on the session it is never mutated.
type StepResult struct {
	// ID is a unique correlation identifier for this result.
	ID string

	// Name is the step that produced the result.
	Name string

	// Success is the pass/fail flag.
	Success bool

	// ExitCode is the step's exit status (0 on success).
	ExitCode int

	// Output is the captured output, verbatim.
	Output string

	// Duration is how long the step ran.
	Duration time.Duration
}

// DeploymentSession is the single mutable object threaded through every
// stage of one deploy run.
//
// # Description
//
// Owns the session identifier, the current state, the active backup
// record, the rollback guard, and the append-only step results. Created
// once per run; nothing persists at process exit except the session log
// and the backup directory.
//
// # Thread Safety
//
// State, the backup record, and step recording are mutex-guarded, and
// the rollback guard is atomic, because the escalator may fire from a
// signal goroutine while a stage is still running on the main
// goroutine.
type DeploymentSession struct {
	// ID is timestamp-derived and names the backup directory and the
	// session log file.
	ID string

	// StartedAt is when the session was created.
	StartedAt time.Time

	// Log is the session's durable log sink.
	Log *logging.Logger

	state  SessionState
	backup *BackupRecord
	guard  atomic.Bool
	steps  []StepResult
	mu     sync.Mutex
}

// NewSession creates a session in the Init state.
//
// # Description
//
// The identifier is timestamp-derived with second precision (see
// NewSessionID) and doubles as the backup directory and log file name.
// It is generated before the logger so both share it.
func NewSession(id string, log *logging.Logger) *DeploymentSession {
	return &DeploymentSession{
		ID:        id,
		StartedAt: time.Now(),
		Log:       log,
		state:     StateInit,
	}
}

// NewSessionID derives a fresh session identifier from the wall clock.
func NewSessionID() string {
	return time.Now().Format(sessionIDLayout)
}

// sessionIDLayout is the timestamp format backing session identifiers.
// Backup pruning parses directory names with the same layout.
const sessionIDLayout = "20060102-150405"

// State returns the current machine state.
func (s *DeploymentSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState moves the session to the given state.
//
// Only the orchestrator and the escalator call this; stages report
// results and never touch state directly.
func (s *DeploymentSession) SetState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// SetBackup records the active backup for the session. At most one
// record is active per session; the backup stage sets it exactly once.
func (s *DeploymentSession) SetBackup(record *BackupRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backup = record
}

// ActiveBackup returns the active backup record, nil until the backup
// stage has run.
//
// The pipeline goroutine writes the record while the signal goroutine
// may already be escalating, so access goes through the session mutex.
func (s *DeploymentSession) ActiveBackup() *BackupRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backup
}

// RecordStep appends a step result. Results are never mutated after
// insertion.
func (s *DeploymentSession) RecordStep(name string, success bool, exitCode int, output string, duration time.Duration) StepResult {
	result := StepResult{
		ID:       uuid.NewString(),
		Name:     name,
		Success:  success,
		ExitCode: exitCode,
		Output:   output,
		Duration: duration,
	}
	s.mu.Lock()
	s.steps = append(s.steps, result)
	s.mu.Unlock()
	return result
}

// Steps returns a copy of the accumulated step results in order.
func (s *DeploymentSession) Steps() []StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StepResult, len(s.steps))
	copy(out, s.steps)
	return out
}

// MarkRollback flips the rollback guard.
//
// # Description
//
// Returns true exactly once per session: the caller that wins the
// compare-and-swap owns the rollback. Every later or concurrent caller
// gets false, regardless of how many failure or interrupt signals
// arrive.
func (s *DeploymentSession) MarkRollback() bool {
	return s.guard.CompareAndSwap(false, true)
}

// RollbackFired reports whether the rollback guard has been set.
func (s *DeploymentSession) RollbackFired() bool {
	return s.guard.Load()
}
