package ruleset

import (
	"errors"
	"fmt"
)

// ErrVersionExists indicates a draft was created with a version number that
// already exists for the (tenant, code) lineage.
var ErrVersionExists = errors.New("ruleset version already exists")

// NotFoundError indicates a requested ruleset version does not exist.
type NotFoundError struct {
	Scope   ScopeKey
	Version int // 0 when looking up by id
	ID      string
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("ruleset %s not found", e.ID)
	}
	if e.Version > 0 {
		return fmt.Sprintf("ruleset %s v%d not found", e.Scope, e.Version)
	}
	return fmt.Sprintf("ruleset %s not found", e.Scope)
}

// NoActiveVersionError indicates no Active version exists for a
// (tenant, code) lineage. Evaluation cannot proceed without one.
type NoActiveVersionError struct {
	Scope ScopeKey
}

// Error returns the error message.
func (e *NoActiveVersionError) Error() string {
	return fmt.Sprintf("no active ruleset for %s", e.Scope)
}

// InvalidTransitionError indicates a rejected lifecycle transition.
// No state is mutated when this error is returned.
type InvalidTransitionError struct {
	Scope   ScopeKey
	Version int
	From    Status
	To      Status
	Reason  string
}

// Error returns the error message.
func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("ruleset %s v%d: invalid transition %s -> %s", e.Scope, e.Version, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// IsNoActiveVersion reports whether err is a NoActiveVersionError.
func IsNoActiveVersion(err error) bool {
	var target *NoActiveVersionError
	return errors.As(err, &target)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}
