// Package apperr defines the typed errors returned by authorization rules,
// the entity store and handlers. The global Fiber error handler turns them
// into HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups errors by how they surface to the caller.
type Kind string

const (
	KindForbidden           Kind = "forbidden"
	KindNotFound            Kind = "not_found"
	KindValidationFailed    Kind = "validation_failed"
	KindDuplicateConstraint Kind = "duplicate_constraint"
)

// Error is an application error with a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so wrapped copies of a sentinel still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HTTPStatus maps the error kind to a response status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindDuplicateConstraint:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// New builds an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap returns a copy of e carrying cause.
func Wrap(e *Error, cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithMessage returns a copy of e with a different message.
func WithMessage(e *Error, msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

/* ============================== Sentinels =============================== */

var (
	ErrForbidden = New(KindForbidden, "FORBIDDEN", "Forbidden")
	ErrNotFound  = New(KindNotFound, "NOT_FOUND", "Not Found")
	ErrDuplicate = New(KindDuplicateConstraint, "DUPLICATE", "Resource already exists")
	ErrInvalid   = New(KindValidationFailed, "VALIDATION_FAILED", "Validation failed")

	ErrOnlyLawyersCanBid       = New(KindForbidden, "ONLY_LAWYERS_CAN_BID", "Only lawyers can submit bids")
	ErrDuplicateBid            = New(KindDuplicateConstraint, "DUPLICATE_BID", "You have already bid on this case")
	ErrOnlyClientsCanReview    = New(KindForbidden, "ONLY_CLIENTS_CAN_REVIEW", "Only clients can write reviews")
	ErrNoCompletedEngagement   = New(KindForbidden, "NO_COMPLETED_ENGAGEMENT", "You can only review lawyers who completed a case for you")
	ErrDuplicateReview         = New(KindDuplicateConstraint, "DUPLICATE_REVIEW", "You have already reviewed this lawyer for this case")
	ErrOnlyLawyersHaveProfiles = New(KindForbidden, "ONLY_LAWYERS_HAVE_PROFILES", "Only lawyers can have a profile")
	ErrDuplicateEmail          = New(KindDuplicateConstraint, "DUPLICATE_EMAIL", "email already exists")
	ErrInvalidTransition       = New(KindValidationFailed, "INVALID_STATUS_TRANSITION", "Status transition is not allowed")
)
