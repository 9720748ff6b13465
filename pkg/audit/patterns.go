package audit

import (
	"fmt"
	"regexp"
	"strings"
)

// ValueRule masks credential-shaped text wherever it appears, regardless of
// the key it is stored under. Replacement may reference capture groups and
// defaults to Placeholder; its output must not match Pattern again.
type ValueRule struct {
	Name        string
	Pattern     string
	Replacement string
}

// DefaultValueRules cover credentials that commonly leak into free-form
// arguments and custom headers.
func DefaultValueRules() []ValueRule {
	return []ValueRule{
		{Name: "auth_scheme", Pattern: `(?i)\b(bearer|basic)\s+[a-z0-9._~+/=-]{8,}`, Replacement: "${1} " + Placeholder},
		{Name: "jwt", Pattern: `\beyJ[A-Za-z0-9_-]{4,}\.[A-Za-z0-9_-]{4,}\.[A-Za-z0-9_-]{4,}`},
		{Name: "aws_access_key", Pattern: `\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`},
		{Name: "private_key", Pattern: `-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`},
		{Name: "url_userinfo", Pattern: `(?i)\b([a-z][a-z0-9+.-]*)://[^/\s:@]+:[^/\s@]+@`, Replacement: "${1}://" + Placeholder + "@"},
	}
}

type compiledValueRule struct {
	name        string
	expr        *regexp.Regexp
	replacement string
}

// valueScanner replaces rule matches with Placeholder.
type valueScanner struct {
	rules []compiledValueRule
}

func newValueScanner(rules []ValueRule) (*valueScanner, error) {
	compiled := make([]compiledValueRule, 0, len(rules))
	for _, rule := range rules {
		name := strings.TrimSpace(rule.Name)
		if name == "" {
			return nil, fmt.Errorf("audit: value rule name is required")
		}
		expr, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("audit: invalid pattern for value rule %s: %w", name, err)
		}
		replacement := rule.Replacement
		if replacement == "" {
			replacement = Placeholder
		}
		compiled = append(compiled, compiledValueRule{name: name, expr: expr, replacement: replacement})
	}
	return &valueScanner{rules: compiled}, nil
}

// defaultScanner is built from DefaultValueRules at init; the patterns are constant.
var defaultScanner = mustValueScanner(DefaultValueRules())

func mustValueScanner(rules []ValueRule) *valueScanner {
	s, err := newValueScanner(rules)
	if err != nil {
		panic(err)
	}
	return s
}

// Scan returns text with every match replaced, and the names of the rules
// that fired.
func (s *valueScanner) Scan(text string) (string, []string) {
	if s == nil || text == "" {
		return text, nil
	}
	var fired []string
	for _, rule := range s.rules {
		if !rule.expr.MatchString(text) {
			continue
		}
		text = rule.expr.ReplaceAllString(text, rule.replacement)
		fired = append(fired, rule.name)
	}
	return text, fired
}

// RedactString masks credential-shaped substrings of s.
func RedactString(s string) string {
	out, _ := defaultScanner.Scan(s)
	return out
}
