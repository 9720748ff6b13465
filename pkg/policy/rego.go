package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/rego"
)

const regoQuery = "data.toolgate.deny"

// RegoRule is a compiled per-tool Rego module.
type RegoRule struct {
	query rego.PreparedEvalQuery
}

// CompileRego parses and prepares a module for repeated evaluation.
func CompileRego(ctx context.Context, tool, src string) (*RegoRule, error) {
	name := tool + ".rego"
	module, err := ast.ParseModuleWithOpts(name, src, ast.ParserOptions{RegoVersion: ast.RegoV1})
	if err != nil {
		return nil, fmt.Errorf("parse rego module %q: %w", name, err)
	}
	if pkg := module.Package.Path.String(); pkg != "data.toolgate" {
		return nil, fmt.Errorf("rego module %q must declare package toolgate, got %s", name, pkg)
	}

	prepared, err := rego.New(
		rego.Query(regoQuery),
		rego.ParsedModule(module),
		rego.SetRegoVersion(ast.RegoV1),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile rego module %q: %w", name, err)
	}
	return &RegoRule{query: prepared}, nil
}

// Deny evaluates the module and returns the sorted deny messages.
func (r *RegoRule) Deny(ctx context.Context, tool string, args json.RawMessage) ([]string, error) {
	var decoded any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &decoded); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
	}
	if decoded == nil {
		decoded = map[string]any{}
	}

	results, err := r.query.Eval(ctx, rego.EvalInput(map[string]any{
		"tool":      tool,
		"arguments": decoded,
	}))
	if err != nil {
		return nil, fmt.Errorf("opa decision: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	values, ok := results[0].Expressions[0].Value.([]any)
	if !ok {
		return nil, fmt.Errorf("opa decision: unexpected result type %T", results[0].Expressions[0].Value)
	}
	messages := make([]string, 0, len(values))
	for _, v := range values {
		messages = append(messages, fmt.Sprint(v))
	}
	sort.Strings(messages)
	return messages, nil
}
