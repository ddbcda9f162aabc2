package engine

import (
	"errors"
	"fmt"
)

// NoActiveRulesetError indicates evaluation was requested for a (tenant,
// code) with no Active ruleset version. A Failure execution record is
// written before the error is returned; its id is carried here.
type NoActiveRulesetError struct {
	TenantID       string
	Code           string
	ExecutionLogID string
}

func (e *NoActiveRulesetError) Error() string {
	return fmt.Sprintf("no active ruleset %q for tenant %q", e.Code, e.TenantID)
}

// IsNoActiveRuleset reports whether err is a NoActiveRulesetError.
func IsNoActiveRuleset(err error) bool {
	var target *NoActiveRulesetError
	return errors.As(err, &target)
}
