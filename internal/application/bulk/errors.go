package bulk

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors returned by Submit. The HTTP layer maps them with errors.Is.
var (
	ErrUnknownOperationType  = errors.New("unknown operation type")
	ErrMissingParameters     = errors.New("missing parameters")
	ErrInvalidParameterValue = errors.New("invalid parameter value")
	ErrTargetsNotFound       = errors.New("targets not found")
)

// Lifecycle errors.
var (
	ErrOperationNotFound  = errors.New("operation not found")
	ErrOperationFinalized = errors.New("operation already finished")
	ErrServiceClosed      = errors.New("bulk service is shut down")
)

// Causes attached to a job's context when it is stopped early.
var (
	ErrCancelled    = errors.New("operation cancelled")
	ErrJobTimeout   = errors.New("operation timed out")
	ErrShuttingDown = errors.New("operation interrupted by shutdown")
	ErrStale        = errors.New("operation stalled")
)

// MissingTargetsError lists requested ids that do not exist or belong to another vendor.
type MissingTargetsError struct {
	Missing []int64
}

func (e *MissingTargetsError) Error() string {
	ids := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("%s: %s", ErrTargetsNotFound, strings.Join(ids, ", "))
}

// Unwrap lets errors.Is(err, ErrTargetsNotFound) match.
func (e *MissingTargetsError) Unwrap() error {
	return ErrTargetsNotFound
}

func invalidParam(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameterValue, fmt.Sprintf(format, args...))
}
