package policy

import (
	"fmt"
)

type RejectionKind int

const (
	CreateRef RejectionKind = iota
	ForcePush
	NotSigned
	BadCreate
	BadDelete
	NotAllowed
	Protected
)

// Rejection is a policy violation. Subject is the offending ref or path, when there is one.
type Rejection struct {
	Kind    RejectionKind
	Subject string
}

func (r *Rejection) Error() string {
	switch r.Kind {
	case CreateRef:
		return "creating new refs is not permitted: " + r.Subject
	case ForcePush:
		return "force-pushes are not permitted"
	case NotSigned:
		return "signing your commits is required"
	case BadCreate:
		return "creating pages is not permitted: " + r.Subject
	case BadDelete:
		return "deleting pages is not permitted: " + r.Subject
	case NotAllowed:
		return "editing this page is not permitted: " + r.Subject
	case Protected:
		return "page is protected: " + r.Subject
	default:
		return fmt.Sprintf("rejected (%v): %v", int(r.Kind), r.Subject)
	}
}

// Is matches rejections of the same kind and subject, so errors.Is works with literals.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	if !ok {
		return false
	}
	return t.Kind == r.Kind && t.Subject == r.Subject
}

type BadRegexError struct {
	Pattern string
	Err     error
}

func (e *BadRegexError) Error() string {
	return "failed to compile regex: " + e.Err.Error()
}

func (e *BadRegexError) Unwrap() error {
	return e.Err
}
