package gae

import "errors"

// BufferError implements errors unique to a GAE buffer.
type BufferError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *BufferError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *BufferError) Unwrap() error {
	return e.Err
}

var errFull = errors.New("buffer at maximum capacity")

var errNotFull = errors.New("buffer must be full before sampling")

// IsFull returns whether or not an error reports that a transition
// could not be stored because the buffer is full.
func IsFull(err error) bool {
	return errors.Is(err, errFull)
}

// IsNotFull returns whether or not an error reports that the buffer
// was sampled before being filled.
func IsNotFull(err error) bool {
	return errors.Is(err, errNotFull)
}
