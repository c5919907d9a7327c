// Package faults defines the error taxonomy shared by every component.
// Errors are plain sentinels wrapped with fmt.Errorf("%w: ...") so callers
// match them with errors.Is instead of type assertions.
package faults

import (
	"errors"
	"fmt"
)

// Base classes.
var (
	ErrValidation     = errors.New("validation failed")
	ErrDuplicate      = errors.New("duplicate")
	ErrNotFound       = errors.New("not found")
	ErrAuth           = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrStaleReference = errors.New("stale reference")
	ErrConflict       = errors.New("conflict")
)

// Derived sentinels. Each wraps its base class so that, for example,
// errors.Is(ErrNoChallenge, ErrAuth) holds.
var (
	ErrInvalidRole       = fmt.Errorf("%w: invalid role", ErrValidation)
	ErrDuplicateRequest  = fmt.Errorf("%w: request already sent", ErrDuplicate)
	ErrDuplicateKey      = fmt.Errorf("%w: key already in tree", ErrDuplicate)
	ErrNoChallenge       = fmt.Errorf("%w: no challenge issued", ErrAuth)
	ErrSignatureMismatch = fmt.Errorf("%w: signature mismatch", ErrAuth)
	ErrRoleConflict      = fmt.Errorf("%w: ledger role mismatch", ErrConflict)
)

// Benign reports whether err is one of the outcomes the event reconciler
// suppresses into logs: stale, duplicate or already-applied facts.
func Benign(err error) bool {
	return errors.Is(err, ErrStaleReference) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict)
}
