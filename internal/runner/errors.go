package runner

import (
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// NoErrorOutput replaces empty stderr text in an ExitError
const NoErrorOutput = "(no error output)"

// StartError is returned when the process could not be launched.
type StartError struct {
	Name string
	Err  error
}

func (e *StartError) Error() string {
	if errors.Is(e.Err, exec.ErrNotFound) {
		return fmt.Sprintf("command %q not found; make sure it is installed and available on PATH", e.Name)
	}
	return fmt.Sprintf("failed to start %s: %v", e.Name, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// ExitError is returned when the process exits with a nonzero status.
type ExitError struct {
	Name   string
	Code   int
	Stderr string // trimmed stderr, or NoErrorOutput
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %s failed with exit code %d: %s", e.Name, e.Code, e.Stderr)
}

// TimeoutError is returned when the process outlives the runner's timeout.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %s timed out after %s", e.Name, e.Timeout)
}
