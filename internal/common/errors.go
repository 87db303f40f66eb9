package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors.
	ErrInternal          = errors.New("internal error")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrNotConfirmed      = errors.New("operation not confirmed")
	ErrNotImplemented    = errors.New("not implemented")

	// Form lifecycle errors.
	ErrFormState = errors.New("form is not idle")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

// ValidationError reports a required field left empty, or an input that is
// unusable before any remote call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// UploadError reports a failed file transfer. Field is empty when the
// upload was not started by a form.
type UploadError struct {
	Field string
	Key   string
	Cause error
}

func (e *UploadError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("upload of %s (%s) failed: %v", e.Field, e.Key, e.Cause)
	}
	return fmt.Sprintf("upload of %s failed: %v", e.Key, e.Cause)
}

func (e *UploadError) Unwrap() error { return e.Cause }

// PersistenceError reports a failed create/update/delete against the
// document store.
type PersistenceError struct {
	Op         string
	Collection string
	ID         string
	Cause      error
}

func (e *PersistenceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s failed: %v", e.Op, e.Collection, e.Cause)
	}
	return fmt.Sprintf("%s %s/%s failed: %v", e.Op, e.Collection, e.ID, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }
