package engine

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// DefinitionError marks a malformed workflow definition: unknown node
// reference, condition with no matching branch, unsupported operator, cycle.
// Always fatal to the specific run; detected statically where possible.
type DefinitionError struct {
	Reason string
}

func (e *DefinitionError) Error() string {
	return "definition error: " + e.Reason
}

func definitionErrorf(format string, args ...interface{}) error {
	return &DefinitionError{Reason: fmt.Sprintf(format, args...)}
}

func IsDefinitionError(err error) bool {
	var de *DefinitionError
	return errors.As(err, &de)
}

// UnknownPrimitiveError is returned when an action node names a primitive the
// registry does not know. Fatal to the node step and the run.
type UnknownPrimitiveError struct {
	Name string
}

func (e *UnknownPrimitiveError) Error() string {
	return "unknown primitive: " + e.Name
}

func IsUnknownPrimitive(err error) bool {
	var ue *UnknownPrimitiveError
	return errors.As(err, &ue)
}

// InvalidInputError is returned when a resolved action input violates the
// primitive's declared schema. Field names the violation path.
type InvalidInputError struct {
	Primitive string
	Field     string
	Reason    string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input for primitive %s: field %s: %s", e.Primitive, e.Field, e.Reason)
}

func IsInvalidInput(err error) bool {
	var ie *InvalidInputError
	return errors.As(err, &ie)
}

// RetryableError wraps a transient primitive failure. The adapter retries it
// per policy; exhausted attempts convert it into a terminal failure identical
// to a non-retryable error.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable marks err as transient so the adapter's retry policy applies.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// TimeoutError is produced when a primitive invocation exceeds its bounded
// timeout. Treated as retryable if the policy allows further attempts.
type TimeoutError struct {
	Primitive string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("primitive %s timed out after %s", e.Primitive, e.Timeout)
}

// IsRetryable reports whether the adapter may re-attempt after err.
func IsRetryable(err error) bool {
	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}
	var te *TimeoutError
	return errors.As(err, &te)
}
