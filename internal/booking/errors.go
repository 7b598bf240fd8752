package booking

import (
	"errors"
	"fmt"

	"github.com/iliyamo/trainer-slot-booking/internal/repository"
	"github.com/iliyamo/trainer-slot-booking/internal/validation"
)

// Error kinds.  Every error returned by the engine matches exactly one of
// them with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrTransient  = errors.New("transient store error")
	ErrInternal   = errors.New("internal error")
)

// Error is an engine failure tagged with its kind and the operation that
// produced it.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// newError builds an *Error of kind with a formatted cause.
func newError(op string, kind error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Classify maps err onto the engine taxonomy.  Errors that already carry a
// kind are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	kind := ErrInternal
	switch {
	case errors.Is(err, validation.ErrInvalid):
		kind = ErrValidation
	case errors.Is(err, repository.ErrNotFound):
		kind = ErrNotFound
	case errors.Is(err, repository.ErrConflict), repository.IsUniqueViolation(err):
		kind = ErrConflict
	case repository.IsTransient(err):
		kind = ErrTransient
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf returns the kind of err, or ErrInternal for errors that were never
// classified.  A nil error has no kind.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrTransient, ErrInternal} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}
