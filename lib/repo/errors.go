package repo

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

var ErrNonUTF8Path = errors.New("paths that are not utf-8 are not supported")

var ErrNotFound = errors.New("object not found")

// Error is a failure of the object store itself: I/O, corruption or a missing object.
// It is never recovered from.
type Error struct {
	Op  string
	ID  OID
	Err error
}

func (e *Error) Error() string {
	if e.ID == "" {
		return "internal git error: " + e.Op + ": " + e.Err.Error()
	}
	return "internal git error: " + e.Op + " " + e.ID.Short(DefaultAbbrev) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap turns a store error into an *Error. Already wrapped errors and nil pass through.
func Wrap(err error, op string, id OID) error {
	if err == nil {
		return nil
	}

	var re *Error
	if errors.As(err, &re) || errors.Is(err, ErrNonUTF8Path) || errors.Is(err, ErrStopWalk) {
		return err
	}

	return &Error{Op: op, ID: id, Err: pkgerrors.WithStack(err)}
}
