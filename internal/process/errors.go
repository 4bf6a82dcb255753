package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
)

// ErrBusy is returned by Run when another run already owns the manager.
var ErrBusy = errors.New("a process is already running")

// StartError reports that the external binary could not be launched.
type StartError struct {
	Binary   string
	NotFound bool
	Err      error
}

func newStartError(binary string, err error) *StartError {
	return &StartError{
		Binary:   binary,
		NotFound: errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist),
		Err:      err,
	}
}

func (e *StartError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("binary '%s' not found. Please ensure it is installed and in your PATH", e.Binary)
	}
	if errors.Is(e.Err, fs.ErrPermission) {
		return fmt.Sprintf("failed to start '%s': %v. Check that it is executable by the current user", e.Binary, e.Err)
	}
	return fmt.Sprintf("failed to start '%s': %v. Check that it is a valid executable for this platform", e.Binary, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// CommunicationError reports a process that launched but did not finish
// cleanly: a non-zero exit, a signal, or a failure while streaming.
type CommunicationError struct {
	ExitCode int
	// Signal is set when the process was terminated by a signal.
	Signal string
	// Stderr is the full error stream, captured once the process exited.
	Stderr string
	// Stopped is true when Stop, Kill or a cancelled context ended the run.
	Stopped bool
	Err     error
}

func (e *CommunicationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to run task: %v", e.Err)
	}

	msg := fmt.Sprintf("process exited with code %d", e.ExitCode)
	if e.Signal != "" {
		msg = fmt.Sprintf("process terminated (%s)", e.Signal)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}
