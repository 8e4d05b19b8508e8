package errors_test

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/ajitpratap0/arrowhouse/pkg/errors"
)

// Example demonstrates basic error creation.
func Example() {
	err := errors.New(errors.ErrorTypeUnsupportedType, "no remote type for list of lists").
		WithDataType("List(List(Int32))")

	fmt.Println(err.Error())

	// Output:
	// unsupported_type: no remote type for list of lists
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.EOF, errors.ErrorTypeFile, "failed to read arrow stream").
		WithDetail("path", "events.arrow")

	if errors.IsType(err, errors.ErrorTypeFile) {
		fmt.Println("This is a file error")
	}
	if stderrors.Is(err, io.EOF) {
		fmt.Println("Original error was EOF")
	}

	// Output:
	// This is a file error
	// Original error was EOF
}

// ExampleError_WithColumn shows how nested column paths accumulate while an
// error propagates out of a struct walk.
func ExampleError_WithColumn() {
	err := errors.New(errors.ErrorTypeEncoding, "null value in non-nullable column").
		WithColumn("city")
	err.WithColumn("address")

	fmt.Println(err.Column)
	fmt.Println(err)

	// Output:
	// address.city
	// encoding: column "address.city": null value in non-nullable column
}

// ExampleIsRetryable shows that only transport failures are retryable.
func ExampleIsRetryable() {
	connErr := errors.New(errors.ErrorTypeConnection, "connection refused")
	decodeErr := errors.New(errors.ErrorTypeDecoding, "offsets are not monotonic")

	fmt.Println(errors.IsRetryable(connErr))
	fmt.Println(errors.IsRetryable(decodeErr))
	fmt.Println(errors.IsRetryable(io.EOF))

	// Output:
	// true
	// false
	// false
}

// ExampleTypeOf shows how callers can branch on error categories.
func ExampleTypeOf() {
	errs := []error{
		errors.New(errors.ErrorTypeSchemaConflict, "column a is both a leaf and a prefix"),
		errors.Newf(errors.ErrorTypeTypeMismatch, "expected %s, got %s", "Int64", "UInt64"),
		io.ErrUnexpectedEOF,
	}
	for _, err := range errs {
		fmt.Println(errors.TypeOf(err))
	}

	// Output:
	// schema_conflict
	// type_mismatch
	// internal
}
