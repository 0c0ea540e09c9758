// Package fault classifies domain errors into the categories callers act on.
// Anything unclassified is treated as an infrastructure failure and surfaced
// untouched.
package fault

import "errors"

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindUnauthenticated
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal_error"
	}
}

// Error is a classified sentinel. Code is the stable snake_case reason returned to callers.
type Error struct {
	Kind Kind
	Code string
}

func (e *Error) Error() string { return e.Code }

func Validation(code string) *Error { return &Error{Kind: KindValidation, Code: code} }

func Conflict(code string) *Error { return &Error{Kind: KindConflict, Code: code} }

func NotFound(code string) *Error { return &Error{Kind: KindNotFound, Code: code} }

func Unauthenticated(code string) *Error { return &Error{Kind: KindUnauthenticated, Code: code} }

func Forbidden(code string) *Error { return &Error{Kind: KindForbidden, Code: code} }

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) && fe != nil {
		return fe.Kind
	}
	return KindUnknown
}

// CodeOf returns the reason code of the first classified error in err's chain.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe != nil {
		return fe.Code
	}
	return ""
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }

func IsConflict(err error) bool { return KindOf(err) == KindConflict }

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

func IsForbidden(err error) bool { return KindOf(err) == KindForbidden }
