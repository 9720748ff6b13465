package policy

import (
	"fmt"

	"github.com/polisai/toolgate/pkg/domain"
)

// Rule names reported in violations.
const (
	RuleReadOnly = "read_only"
	RuleMaxRows  = "max_rows"
	RuleQuery    = "query_inspection"
	RuleRego     = "rego"
)

// ViolationError rejects a call before any I/O happens.
type ViolationError struct {
	Tool   string
	Rule   string
	Reason string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("policy violation for tool %s (%s): %s", e.Tool, e.Rule, e.Reason)
}

func (e *ViolationError) Is(target error) bool {
	return target == domain.ErrPolicyViolation
}
