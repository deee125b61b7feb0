// Package apperrors holds sentinel errors shared across layers. Layer
// specific errors wrap them, so callers can test for the general
// condition with errors.Is.
package apperrors

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrAccessDenied  = errors.New("access denied")
)
