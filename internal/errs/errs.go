// Package errs defines the error taxonomy shared by every deployment
// component. Callers classify failures with errors.As.
package errs

import (
	"fmt"
	"time"
)

// ConfigErrorKind distinguishes a missing configuration file from a
// structurally invalid one.
type ConfigErrorKind string

const (
	ConfigNotFound ConfigErrorKind = "not_found"
	ConfigInvalid  ConfigErrorKind = "invalid"
)

// ConfigError reports missing or invalid configuration. Always fatal,
// raised before any other work begins.
type ConfigError struct {
	Kind   ConfigErrorKind
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Kind, e.Reason)
}

// ConnectivityError reports that the remote target could not be reached.
// Distinct from a remote command that ran and exited non-zero.
type ConnectivityError struct {
	Host string
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("cannot reach remote host %s: %v", e.Host, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// RuntimeUnavailable reports that the container engine itself is
// unreachable. Fatal regardless of target.
type RuntimeUnavailable struct {
	Detail string
}

func (e *RuntimeUnavailable) Error() string {
	return fmt.Sprintf("container runtime unavailable: %s", e.Detail)
}

// OperationFailed reports that a specific lifecycle action failed. The
// stderr and exit code are preserved for the deployment diagnostic.
type OperationFailed struct {
	Op       string
	ExitCode int
	Stderr   string
}

func (e *OperationFailed) Error() string {
	return fmt.Sprintf("%s failed (exit %d): %s", e.Op, e.ExitCode, e.Stderr)
}

// SyncError reports a file synchronization pass that could not fully
// reconcile the destination subtree.
type SyncError struct {
	Source string
	Detail string
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync of %s failed: %s", e.Source, e.Detail)
}

// ValidationFailed reports pre-deploy gates that failed and were not
// overridden. Errors are aggregated across all checks.
type ValidationFailed struct {
	Errors []string
}

func (e *ValidationFailed) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed with %d errors", len(e.Errors))
}

// HealthTimeout reports that post-deploy health could not be confirmed
// within the deadline. External state has already changed by the time
// this error is raised.
type HealthTimeout struct {
	Scope    string
	Deadline time.Duration
}

func (e *HealthTimeout) Error() string {
	return fmt.Sprintf("health verification for %s timed out after %s", e.Scope, e.Deadline)
}
