package backend

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyStarted is returned by Start while a previous start attempt is
// still in flight or the backend is already running.
var ErrAlreadyStarted = errors.New("backend already started")

// NotFoundError reports a missing backend executable. The remediation hint
// differs between a packaged install (bundle incomplete) and a development
// checkout (backend not built yet).
type NotFoundError struct {
	Path     string
	Packaged bool
}

func (e *NotFoundError) Error() string {
	hint := "backend bundle not built; run the backend packaging script first"
	if e.Packaged {
		hint = "application bundle is incomplete; reinstall the application"
	}
	return fmt.Sprintf("backend executable not found at %s (%s)", e.Path, hint)
}

// StartupTimeoutError reports that no readiness signal was observed within the
// allotted window. The child has already been terminated when this is returned.
type StartupTimeoutError struct {
	Timeout time.Duration
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("backend produced no readiness signal within %s", e.Timeout)
}

// SpawnError reports that the operating system refused to create the process.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string { return "spawn backend: " + e.Err.Error() }
func (e *SpawnError) Unwrap() error { return e.Err }

// EarlyExitError reports that the child exited before readiness was observed.
// The wait fails fast on this instead of running out the startup timeout.
type EarlyExitError struct {
	Err error // exit error from Wait, nil on clean exit
}

func (e *EarlyExitError) Error() string {
	if e.Err != nil {
		return "backend exited before becoming ready: " + e.Err.Error()
	}
	return "backend exited before becoming ready"
}

func (e *EarlyExitError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsStartupTimeout reports whether err is (or wraps) a StartupTimeoutError.
func IsStartupTimeout(err error) bool {
	var e *StartupTimeoutError
	return errors.As(err, &e)
}

// IsEarlyExit reports whether err is (or wraps) an EarlyExitError.
func IsEarlyExit(err error) bool {
	var e *EarlyExitError
	return errors.As(err, &e)
}
