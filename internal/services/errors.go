// Package services defines the business logic for user accounts.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"
	"fmt"
)

// User-related errors.
var (
	// ErrUserExists is returned when a user with the same unique details
	// (currently the email) is already stored.
	ErrUserExists = errors.New("user already exists")

	// ErrUserNotFound indicates that no user matches the requested id.
	ErrUserNotFound = errors.New("user not found")
)

// Stage names an operation inside a use-case. Handlers use it to pick the
// log event for an unexpected failure.
type Stage string

const (
	StageHashPassword     Stage = "hash_user_password"
	StageCreateUser       Stage = "create_user_db"
	StageGetUser          Stage = "get_user_db"
	StageStoreIdempotency Stage = "idempotency_store"
)

// StageError reports an unexpected failure of one stage. Err is the original
// error, unchanged, so errors.Is and errors.As keep working on it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the stage of the first StageError in err's chain.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
