package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError is an error built from a recovered panic. It keeps the panic
// value and the stack captured at recovery time.
type PanicError struct {
	PanicValue interface{}
	StackTrace string
	Operation  string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// String includes the captured stack.
func (e *PanicError) String() string {
	return fmt.Sprintf("panic in %s: %v\nStack trace:\n%s", e.Operation, e.PanicValue, e.StackTrace)
}

// NewPanicError creates a PanicError for the given operation.
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
		Operation:  operation,
	}
}

// Recover converts a panic in the calling function into an error. It must be
// deferred directly with a pointer to the named error result:
//
//	func (lr *LinearRegression) Fit(X, y mat.Matrix) (err error) {
//	    defer errors.Recover(&err, "LinearRegression.Fit")
//	    ...
//	}
//
// gonum panics on shape mismatches; entry points that hand user data to
// gonum use Recover so those surface as errors.
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	if *err != nil {
		*err = fmt.Errorf("panic in %s: %v (original error: %w)", operation, r, *err)
		return
	}
	*err = NewPanicError(operation, r)
}
