package agent

import "errors"

// ErrPrecondition reports an operation that was called before the
// operations it depends on
var ErrPrecondition = errors.New("precondition violated")

// ErrDuplicateRegistration reports an attempt to link a different
// policy under an agent identifier that is already bound
var ErrDuplicateRegistration = errors.New("duplicate registration")

// IsPrecondition returns whether or not an error reports a violated
// precondition.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}

// IsDuplicateRegistration returns whether or not an error reports a
// duplicate policy registration.
func IsDuplicateRegistration(err error) bool {
	return errors.Is(err, ErrDuplicateRegistration)
}
