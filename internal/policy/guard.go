// Package policy evaluates execution guard rules written in CEL.
//
// Rules see two variables: action (the action name) and params (the parameter
// map). Every rule must evaluate to true for an execution to proceed; the
// first rule that fails or errors denies it.
package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/quillagent/quill/pkg/schema"
)

// Rule is one named guard expression.
type Rule struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// Guard evaluates a fixed rule set against each execution.
// Thread-safe: compiled programs are cached and reused across goroutines.
type Guard struct {
	env   *cel.Env
	rules []Rule

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewGuard creates a Guard over the given rules. Rules are compiled lazily;
// a rule that does not compile denies every execution it applies to.
func NewGuard(rules []Rule) (*Guard, error) {
	env, err := cel.NewEnv(
		cel.Variable("action", cel.StringType),
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &Guard{
		env:   env,
		rules: rules,
		cache: make(map[string]cel.Program),
	}, nil
}

// Check evaluates every rule against the pending execution. A nil or empty
// rule set allows everything.
func (g *Guard) Check(ctx context.Context, action string, params map[string]any) error {
	if g == nil || len(g.rules) == 0 {
		return nil
	}

	if params == nil {
		params = map[string]any{}
	}
	activation := map[string]any{
		"action": action,
		"params": params,
	}

	for _, rule := range g.rules {
		prg, err := g.getOrCompile(rule.Expression)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodePolicyDenied,
				"policy rule %q is invalid: %s", rule.Name, err.Error()).WithCause(err)
		}

		out, _, err := prg.Eval(activation)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodePolicyDenied,
				"policy rule %q failed to evaluate: %s", rule.Name, err.Error()).WithCause(err)
		}

		allowed, ok := out.Value().(bool)
		if !ok {
			return schema.NewErrorf(schema.ErrCodePolicyDenied,
				"policy rule %q did not return a boolean", rule.Name)
		}
		if !allowed {
			return schema.NewErrorf(schema.ErrCodePolicyDenied,
				"execution of %q denied by policy rule %q", action, rule.Name).
				WithDetails(map[string]any{"rule": rule.Name, "action": action})
		}
	}
	return nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (g *Guard) getOrCompile(expression string) (cel.Program, error) {
	g.mu.RLock()
	if prg, ok := g.cache[expression]; ok {
		g.mu.RUnlock()
		return prg, nil
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := g.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := g.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expression, issues.Err())
	}
	prg, err := g.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expression, err)
	}

	g.cache[expression] = prg
	return prg, nil
}
