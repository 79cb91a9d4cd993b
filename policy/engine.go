// Package policy decides record access with an OPA rego module.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Query is the rule every policy module must define.
const Query = "data.mcp_access.allow"

// Actions checked by the catalog.
const (
	ActionRead   = "read"
	ActionList   = "list"
	ActionSearch = "search"
)

// Principal is the caller a decision is made for.
type Principal struct {
	ID           string `json:"id"`
	Organization string `json:"organization,omitempty"`
}

// Record describes the record being accessed.
type Record struct {
	Organization string `json:"organization"`
	Owner        string `json:"owner"`
	Public       bool   `json:"public"`
	Type         string `json:"type"`
}

// Input is the document passed to the policy as `input`.
type Input struct {
	Principal Principal `json:"principal"`
	Action    string    `json:"action"`
	Record    Record    `json:"record"`
}

// Engine is a prepared OPA query.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine compiles module, which must be rego v1 and define
// mcp_access.allow.
func NewEngine(ctx context.Context, module string) (*Engine, error) {
	r := rego.New(
		rego.Query(Query),
		rego.Module("mcp_access.rego", module),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Engine{query: query}, nil
}

// NewEngineFromFile compiles the module stored at path.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}
	return NewEngine(ctx, string(b))
}

// Default compiles DefaultPolicy.
func Default(ctx context.Context) (*Engine, error) {
	return NewEngine(ctx, DefaultPolicy)
}

// Allow evaluates the policy. An undefined or non-boolean result denies.
func (e *Engine) Allow(ctx context.Context, input Input) (bool, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := results[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}

// DefaultPolicy grants read, list and search on records that are public or
// owned by the caller, within the caller's organization when one is claimed.
const DefaultPolicy = `
package mcp_access

default allow := false

actions := {"read", "list", "search"}

same_org if object.get(input.principal, "organization", "") == ""

same_org if input.principal.organization == input.record.organization

allow if {
	input.action in actions
	same_org
	input.record.public
}

allow if {
	input.action in actions
	same_org
	input.principal.id != ""
	input.principal.id == input.record.owner
}
`
