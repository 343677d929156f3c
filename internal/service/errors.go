package service

import (
	"errors"
	"fmt"

	"github.com/pwannenmacher/ConfReview/internal/access"
	"github.com/pwannenmacher/ConfReview/internal/repository"
)

// ErrorKind classifies a workflow failure
type ErrorKind string

const (
	ErrorUnauthenticated ErrorKind = "unauthenticated"
	ErrorForbidden       ErrorKind = "forbidden"
	ErrorNotFound        ErrorKind = "not_found"
	ErrorConflict        ErrorKind = "conflict"
	ErrorInvalidState    ErrorKind = "invalid_state"
	ErrorInvalidInput    ErrorKind = "invalid_input"
	ErrorInternal        ErrorKind = "internal"
)

// ServiceError is a typed failure surfaced to the caller with a readable message
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ServiceError) Error() string { return e.Message }

func (e *ServiceError) Unwrap() error { return e.Err }

func NewUnauthenticatedError(msg string) error {
	return &ServiceError{Kind: ErrorUnauthenticated, Message: msg}
}
func NewForbiddenError(msg string) error { return &ServiceError{Kind: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Kind: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Kind: ErrorConflict, Message: msg} }
func NewInvalidStateError(msg string) error {
	return &ServiceError{Kind: ErrorInvalidState, Message: msg}
}
func NewInvalidInputError(msg string) error {
	return &ServiceError{Kind: ErrorInvalidInput, Message: msg}
}

// NewInternalError hides err behind a generic message
func NewInternalError(err error) error {
	return &ServiceError{Kind: ErrorInternal, Message: "internal error", Err: err}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// KindOf returns the kind of err; anything untyped is internal
func KindOf(err error) ErrorKind {
	if se, ok := AsServiceError(err); ok {
		return se.Kind
	}
	return ErrorInternal
}

// accessError translates a gate failure
func accessError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, access.ErrUnauthenticated):
		return NewUnauthenticatedError("authentication required")
	case errors.Is(err, access.ErrForbidden):
		return &ServiceError{Kind: ErrorForbidden, Message: err.Error(), Err: err}
	default:
		return NewInternalError(err)
	}
}

// storeError translates a repository failure about the named entity
func storeError(err error, entity string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return &ServiceError{Kind: ErrorNotFound, Message: entity + " not found", Err: err}
	case errors.Is(err, repository.ErrDuplicate):
		return &ServiceError{Kind: ErrorConflict, Message: entity + " already exists", Err: err}
	case errors.Is(err, repository.ErrVersionConflict):
		return &ServiceError{Kind: ErrorConflict, Message: entity + " was modified concurrently, reload and retry", Err: err}
	default:
		return NewInternalError(fmt.Errorf("%s: %w", entity, err))
	}
}

// wrongState builds the InvalidState failure naming the required states
func wrongState(entity string, have any, want ...any) error {
	if len(want) == 1 {
		return NewInvalidStateError(fmt.Sprintf("%s must be in state %v, is %v", entity, want[0], have))
	}
	return NewInvalidStateError(fmt.Sprintf("%s must be in one of %v, is %v", entity, want, have))
}
