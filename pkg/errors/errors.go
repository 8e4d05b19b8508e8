// Package errors provides structured error handling for arrowhouse with
// error categorization, column context and stack traces.
//
// # Overview
//
// Every failure raised by the transcoding core carries an ErrorType so that
// callers can tell schema problems apart from bad data:
//
//	col, err := transcode.Decode(buf, nil, transcode.Options{})
//	if errors.IsType(err, errors.ErrorTypeDecoding) {
//	    // the remote buffer was malformed
//	}
//
// Errors raised while walking nested columns carry the dotted path of the
// offending column (WithColumn) and the type being processed (WithDataType).
package errors

import (
	"errors"
	"runtime"

	stringpool "github.com/ajitpratap0/arrowhouse/pkg/strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeUnsupportedType marks a type with no mapping on the other side
	ErrorTypeUnsupportedType ErrorType = "unsupported_type"
	// ErrorTypeSchemaConflict marks colliding or ambiguous column names
	ErrorTypeSchemaConflict ErrorType = "schema_conflict"
	// ErrorTypeTypeMismatch marks a column whose type disagrees with its target
	ErrorTypeTypeMismatch ErrorType = "type_mismatch"
	// ErrorTypeEncoding marks values that cannot be represented in the remote type
	ErrorTypeEncoding ErrorType = "encoding"
	// ErrorTypeDecoding marks a malformed remote buffer
	ErrorTypeDecoding ErrorType = "decoding"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeConnection represents connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeQuery represents query execution errors
	ErrorTypeQuery ErrorType = "query"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeInternal represents internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// Error represents a structured error with context.
//
// Column holds the dotted path of the column being processed when the error
// was raised, DataType the spelling of the type involved.
type Error struct {
	Type     ErrorType
	Message  string
	Column   string
	DataType string
	Cause    error
	Details  map[string]interface{}
	Stack    []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Column != "" {
		msg = stringpool.Sprintf("column %q: %s", e.Column, msg)
	}
	if e.Cause != nil {
		return stringpool.Sprintf("%s: %s: %v", e.Type, msg, e.Cause)
	}
	return stringpool.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithColumn records the column the error belongs to. When the error already
// names a nested column, the parent name is prepended as a path segment.
func (e *Error) WithColumn(name string) *Error {
	switch {
	case name == "":
	case e.Column == "":
		e.Column = name
	default:
		e.Column = name + "." + e.Column
	}
	return e
}

// WithDataType records the type involved in the failure.
func (e *Error) WithDataType(dataType string) *Error {
	if e.DataType == "" {
		e.DataType = dataType
	}
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: stringpool.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context. If the error is
// already a structured Error its stack and column path are preserved.
// Returns nil if the input error is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:     errType,
			Message:  message,
			Column:   existingErr.Column,
			DataType: existingErr.DataType,
			Cause:    err,
			Stack:    existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// InColumn annotates err with a parent column segment if it is a structured
// Error, and returns it unchanged otherwise. Used when propagating failures
// out of nested column walks.
func InColumn(err error, name string) error {
	var e *Error
	if errors.As(err, &e) {
		e.WithColumn(name)
	}
	return err
}

// As returns the first structured Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the category of a structured error, or ErrorTypeInternal
// for any other error.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// IsRetryable reports whether an operation failing with err may succeed
// when repeated. Only transport failures qualify; every transcoding error
// is deterministic.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// captureStack captures the current call stack up to maxFrames deep
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
