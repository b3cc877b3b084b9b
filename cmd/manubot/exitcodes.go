package main

import (
	"errors"
)

// Exit codes.
const (
	ExitSuccess     = 0 // every citation resolved and nothing was logged at error level
	ExitError       = 1 // a citation failed, an error was logged, or a runtime failure
	ExitConfigError = 2 // invalid configuration or command-line usage
)

// configError marks failures that happen before any work starts.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func asConfigError(err error) error {
	if err == nil {
		return nil
	}
	return &configError{err: err}
}

// errLoggedFailures is returned when a command finished but logged errors.
var errLoggedFailures = errors.New("errors were logged during the run")

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	var cfgErr *configError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &cfgErr):
		return ExitConfigError
	default:
		return ExitError
	}
}
