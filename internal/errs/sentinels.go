// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// ErrValidation indicates that input failed a format or policy rule.
var ErrValidation = errors.New("validation failed")

// ErrUnauthorized is the root of all authentication failures.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
var ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrUnauthorized)

// ErrExpiredToken indicates a session token past its expiry.
var ErrExpiredToken = fmt.Errorf("%w: token expired", ErrUnauthorized)

// ErrMalformedToken indicates a token with a bad signature, algorithm or structure.
var ErrMalformedToken = fmt.Errorf("%w: malformed token", ErrUnauthorized)

// ErrWrongPassword is returned when the current password does not match on change.
var ErrWrongPassword = fmt.Errorf("%w: current password is incorrect", ErrUnauthorized)

// ErrForbidden is the root of authorization failures.
var ErrForbidden = errors.New("forbidden")

// ErrInsufficientTokens indicates the balance does not cover the session cost.
var ErrInsufficientTokens = fmt.Errorf("%w: insufficient tokens", ErrForbidden)

// ErrNotFound indicates that the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAccountNotFound is returned for a missing or inactive account.
var ErrAccountNotFound = fmt.Errorf("account %w", ErrNotFound)

// ErrGameNotFound is returned for a missing or inactive game.
var ErrGameNotFound = fmt.Errorf("game %w", ErrNotFound)

// ErrSessionNotFound is returned for a missing or already closed game session.
var ErrSessionNotFound = fmt.Errorf("game session %w", ErrNotFound)

// ErrAlreadyExists indicates that the resource already exists.
var ErrAlreadyExists = errors.New("already exists")

// ErrDuplicateEmail indicates the email is taken by another account.
var ErrDuplicateEmail = fmt.Errorf("email %w", ErrAlreadyExists)

// ErrDuplicateUsername indicates the username is taken by another account.
var ErrDuplicateUsername = fmt.Errorf("username %w", ErrAlreadyExists)

// ErrRateLimited indicates that the caller has exceeded allowed attempts.
var ErrRateLimited = errors.New("rate limited")

// ErrPersistence wraps storage failures; the unit of work is rolled back.
var ErrPersistence = errors.New("persistence failure")

// Persistence wraps a storage error so that both ErrPersistence and the cause match errors.Is.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// Validation builds a validation error carrying the violated rule.
func Validation(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}
