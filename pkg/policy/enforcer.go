package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/polisai/toolgate/internal/jsonpath"
)

var writeKeywords = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|MERGE|CREATE|DROP|ALTER|TRUNCATE|SET|REMOVE|DETACH)\b`)

// Enforcer applies tool policies to call arguments.
type Enforcer struct{}

// NewEnforcer creates an Enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{}
}

// Enforce returns a *ViolationError when the arguments break the policy.
// A nil spec allows every call.
func (e *Enforcer) Enforce(ctx context.Context, tool string, spec *Spec, args json.RawMessage) error {
	if spec == nil {
		return nil
	}

	if spec.ReadOnly {
		if err := checkReadOnly(tool, spec, args); err != nil {
			return err
		}
	}
	if spec.MaxRows != nil {
		if err := checkMaxRows(tool, spec, args); err != nil {
			return err
		}
	}
	if spec.ReadOnly && spec.InspectQuery {
		if err := checkQuery(tool, spec, args); err != nil {
			return err
		}
	}
	if spec.rule != nil {
		messages, err := spec.rule.Deny(ctx, tool, args)
		if err != nil {
			// fail closed
			return &ViolationError{Tool: tool, Rule: RuleRego, Reason: err.Error()}
		}
		if len(messages) > 0 {
			return &ViolationError{Tool: tool, Rule: RuleRego, Reason: strings.Join(messages, "; ")}
		}
	}
	return nil
}

func checkReadOnly(tool string, spec *Spec, args json.RawMessage) error {
	op := gjson.GetBytes(args, jsonpath.Escape(spec.opKey()))
	if !op.Exists() {
		return nil
	}
	value := strings.TrimSpace(op.String())
	for _, w := range spec.writeOps() {
		if strings.EqualFold(value, w) {
			return &ViolationError{
				Tool:   tool,
				Rule:   RuleReadOnly,
				Reason: fmt.Sprintf("%s=%q is not allowed on a read-only tool", spec.opKey(), value),
			}
		}
	}
	return nil
}

func checkMaxRows(tool string, spec *Spec, args json.RawMessage) error {
	limit := gjson.GetBytes(args, jsonpath.Escape(spec.limitKey()))
	if !limit.Exists() {
		return nil
	}

	var n float64
	switch limit.Type {
	case gjson.Number:
		n = limit.Num
	case gjson.String:
		// out-of-range strings parse to ±Inf and are compared like numbers
		parsed, err := strconv.ParseFloat(strings.TrimSpace(limit.Str), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil
		}
		if math.IsNaN(parsed) {
			return &ViolationError{
				Tool:   tool,
				Rule:   RuleMaxRows,
				Reason: fmt.Sprintf("%s %s is not a comparable number", spec.limitKey(), limit.Raw),
			}
		}
		n = parsed
	default:
		return nil
	}

	if n > float64(*spec.MaxRows) {
		return &ViolationError{
			Tool:   tool,
			Rule:   RuleMaxRows,
			Reason: fmt.Sprintf("%s %s exceeds max_rows %d", spec.limitKey(), limit.Raw, *spec.MaxRows),
		}
	}
	return nil
}

func checkQuery(tool string, spec *Spec, args json.RawMessage) error {
	query := gjson.GetBytes(args, jsonpath.Escape(spec.queryKey()))
	if query.Type != gjson.String {
		return nil
	}
	if kw := writeKeywords.FindString(query.Str); kw != "" {
		return &ViolationError{
			Tool:   tool,
			Rule:   RuleQuery,
			Reason: fmt.Sprintf("%s contains write keyword %s", spec.queryKey(), strings.ToUpper(kw)),
		}
	}
	return nil
}
