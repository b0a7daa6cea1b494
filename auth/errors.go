package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/andrebq/sambro/userdb"
)

type (
	// InvalidInput is a problem with the request itself, safe to show to the caller.
	InvalidInput struct {
		Field  string
		Reason string
	}

	// Unauthenticated covers bad credentials and missing, unknown
	// or expired sessions. Its message never says which one.
	Unauthenticated struct{}

	// DataIntegrity means stored data is inconsistent, eg.: a user without
	// a password row or a hash that cannot be parsed.
	DataIntegrity struct {
		UserID string
		cause  error
	}

	// StorageFailure wraps any error returned by the user database.
	StorageFailure struct {
		Op    string
		cause error
	}
)

func (i InvalidInput) Error() string {
	return fmt.Sprintf("invalid %v: %v", i.Field, i.Reason)
}

func (Unauthenticated) Error() string {
	return "invalid credentials"
}

func (d DataIntegrity) Error() string {
	return fmt.Sprintf("data integrity problem for user %v, cause %v", d.UserID, d.cause)
}

func (d DataIntegrity) Unwrap() error {
	return d.cause
}

func (d DataIntegrity) Is(target error) bool {
	other, ok := target.(DataIntegrity)
	return ok && (other.UserID == "" || other.UserID == d.UserID)
}

func (s StorageFailure) Error() string {
	return fmt.Sprintf("unable to %v, cause %v", s.Op, s.cause)
}

func (s StorageFailure) Unwrap() error {
	return s.cause
}

func (s StorageFailure) Is(target error) bool {
	other, ok := target.(StorageFailure)
	return ok && (other.Op == "" || other.Op == s.Op)
}

// StatusCode maps errors returned by Service to an http status code.
func StatusCode(err error) int {
	var invalid InvalidInput
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, Unauthenticated{}):
		return http.StatusUnauthorized
	case errors.Is(err, userdb.UserNotFound{}):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
