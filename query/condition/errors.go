package condition

import (
	"errors"
	"fmt"
)

var (
	// ErrNotNumeric is wrapped by ValueError when $inc is given a non-numeric value.
	ErrNotNumeric = errors.New("increment value must be number")
	// ErrInvalidCondition reports a condition shape the compiler cannot render.
	ErrInvalidCondition = errors.New("invalid condition")
)

// ValueError is returned when an operator receives a value it cannot render.
type ValueError struct {
	Op    string
	Field string
	Value any
	Err   error
}

// Error implements the error interface.
func (e *ValueError) Error() string {
	return fmt.Sprintf("%s on %q with value %v: %v", e.Op, e.Field, e.Value, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValueError) Unwrap() error {
	return e.Err
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCondition, fmt.Sprintf(format, args...))
}
