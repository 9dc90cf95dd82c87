package mazenet

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/kkoreilly/mazenet/internal/textfmt"
)

// ConfigurationError reports an impossible configuration: non-integer convolution or pooling
// output dimensions, an unknown activation function, or a neuron whose weights do not match
// its inputs.
type ConfigurationError struct {
	Op  string // the operation that detected the problem
	Msg string // what is wrong
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: configuration error: %s", e.Op, e.Msg)
}

// NewConfigurationError returns a *ConfigurationError with a stack trace attached.
func NewConfigurationError(op, format string, args ...any) error {
	return errors.WithStack(&ConfigurationError{Op: op, Msg: fmt.Sprintf(format, args...)})
}

// ArgumentError reports an argument of the wrong size or shape.
type ArgumentError struct {
	Op       string // the operation that was called
	What     string // the argument that is wrong (ex: "inputs")
	Expected int    // the expected length, if the problem is a length mismatch
	Got      int    // the length that was given
	Msg      string // set instead of Expected/Got for other problems
}

func (e *ArgumentError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: invalid %s: %s", e.Op, e.What, e.Msg)
	}
	return fmt.Sprintf("%s: size mismatch for %s: expected %d, got %d", e.Op, e.What, e.Expected, e.Got)
}

// NewSizeError returns an *ArgumentError for a length mismatch.
func NewSizeError(op, what string, expected, got int) error {
	return errors.WithStack(&ArgumentError{Op: op, What: what, Expected: expected, Got: got})
}

// NewArgumentError returns an *ArgumentError with a free-form message.
func NewArgumentError(op, what, format string, args ...any) error {
	return errors.WithStack(&ArgumentError{Op: op, What: what, Msg: fmt.Sprintf(format, args...)})
}

// ParseError reports malformed serialized text.
type ParseError struct {
	Offset int    // byte offset into the text, -1 if unknown
	Field  string // the field being parsed, if known
	Err    error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("parse error at offset %d in field %q: %v", e.Offset, e.Field, e.Err)
	}
	return fmt.Sprintf("parse error at offset %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError wraps err as a *ParseError, taking the offset from grammar errors.
// It returns nil if err is nil and err unchanged if it already is a *ParseError.
func NewParseError(field string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return err
	}
	offset := -1
	var se *textfmt.SyntaxError
	if errors.As(err, &se) {
		offset = se.Offset
		if field == "" {
			field = se.Field
		}
	}
	return errors.WithStack(&ParseError{Offset: offset, Field: field, Err: err})
}
