package policy

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultOpKey    = "op"
	defaultLimitKey = "limit"
	defaultQueryKey = "query"
)

var defaultWriteOps = []string{"write"}

// Spec is the per-tool policy declared in the registry configuration.
type Spec struct {
	ReadOnly bool `yaml:"read_only" json:"read_only"`
	MaxRows  *int `yaml:"max_rows,omitempty" json:"max_rows,omitempty"`

	// OpKey names the argument holding the operation indicator.
	OpKey string `yaml:"op_key,omitempty" json:"op_key,omitempty"`
	// WriteOps lists operation values classified as writes.
	WriteOps []string `yaml:"write_ops,omitempty" json:"write_ops,omitempty"`
	LimitKey string   `yaml:"limit_key,omitempty" json:"limit_key,omitempty"`

	// InspectQuery enables keyword inspection of a raw query argument for
	// read-only tools. The operation key stays authoritative.
	InspectQuery bool   `yaml:"inspect_query,omitempty" json:"inspect_query,omitempty"`
	QueryKey     string `yaml:"query_key,omitempty" json:"query_key,omitempty"`

	// Rego is an optional inline module declaring `package toolgate` and a
	// `deny` set of messages.
	Rego string `yaml:"rego,omitempty" json:"-"`

	rule *RegoRule
}

// Compile validates the spec and prepares its Rego module, if any.
func (s *Spec) Compile(ctx context.Context, tool string) error {
	if s == nil {
		return nil
	}
	if s.MaxRows != nil && *s.MaxRows < 0 {
		return fmt.Errorf("max_rows must be non-negative, got %d", *s.MaxRows)
	}
	for _, op := range s.WriteOps {
		if strings.TrimSpace(op) == "" {
			return fmt.Errorf("write_ops entries cannot be empty")
		}
	}
	if strings.TrimSpace(s.Rego) == "" {
		s.rule = nil
		return nil
	}
	rule, err := CompileRego(ctx, tool, s.Rego)
	if err != nil {
		return err
	}
	s.rule = rule
	return nil
}

func (s *Spec) opKey() string {
	if s.OpKey != "" {
		return s.OpKey
	}
	return defaultOpKey
}

func (s *Spec) limitKey() string {
	if s.LimitKey != "" {
		return s.LimitKey
	}
	return defaultLimitKey
}

func (s *Spec) queryKey() string {
	if s.QueryKey != "" {
		return s.QueryKey
	}
	return defaultQueryKey
}

func (s *Spec) writeOps() []string {
	if len(s.WriteOps) > 0 {
		return s.WriteOps
	}
	return defaultWriteOps
}
