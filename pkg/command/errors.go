package command

import (
	"errors"
	"fmt"
)

// UsageError reports malformed invocation arguments. It is the only failure
// class that crosses the engine boundary as a returned error; everything else
// is folded into an error-status Result.
type UsageError struct {
	Message string
	Info    map[string]any
}

func (e *UsageError) Error() string { return e.Message }

// Usagef builds a UsageError from a format string.
func Usagef(format string, args ...any) *UsageError {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// AsUsageError unwraps err into a UsageError if it is one.
func AsUsageError(err error) (*UsageError, bool) {
	var ue *UsageError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// ControlFlowSignal marks errors that are legitimate early-exit signals, not
// failures. The engine finishes lifecycle bookkeeping with SUCCESS status and
// then re-raises the signal to the caller.
type ControlFlowSignal interface {
	error
	ControlFlow()
}

// RedirectSignal asks the boundary layer to redirect the caller to URL.
type RedirectSignal struct {
	URL string
}

func (s *RedirectSignal) Error() string { return "redirect requested: " + s.URL }
func (s *RedirectSignal) ControlFlow()  {}

// ShutdownSignal asks the boundary layer to terminate the process. Abort
// skips the graceful save path.
type ShutdownSignal struct {
	Abort bool
}

func (s *ShutdownSignal) Error() string {
	if s.Abort {
		return "abort requested"
	}
	return "shutdown requested"
}

func (s *ShutdownSignal) ControlFlow() {}

// IsControlFlow reports whether err is (or wraps) a ControlFlowSignal.
func IsControlFlow(err error) bool {
	var cf ControlFlowSignal
	return errors.As(err, &cf)
}
