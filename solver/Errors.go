package solver

import "errors"

// UpdateError implements errors that abort an optimization step. No
// parameter is modified when an UpdateError is returned.
type UpdateError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *UpdateError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error so that errors.Is can be used
// to find the error kind.
func (e *UpdateError) Unwrap() error {
	return e.Err
}

// ErrShapeMismatch reports that a gradient, an optimizer moment, or a
// composed network input does not have the shape it was declared with.
var ErrShapeMismatch = errors.New("shape mismatch")

// ErrClippingInvariant reports that the global gradient norm after
// clipping exceeds its bound or that the gradients were not finite.
var ErrClippingInvariant = errors.New("clipping invariant violated")

// IsShapeMismatch returns whether or not an error reports a shape
// mismatch.
func IsShapeMismatch(err error) bool {
	return errors.Is(err, ErrShapeMismatch)
}

// IsClippingInvariant returns whether or not an error reports a
// violation of the gradient clipping invariant.
func IsClippingInvariant(err error) bool {
	return errors.Is(err, ErrClippingInvariant)
}
