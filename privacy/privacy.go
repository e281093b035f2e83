package privacy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/syssam/veloxrm"
)

// Policy decision sentinel errors.
//
// Rules return them to steer the evaluation. Use errors.Is() to check
// for these values:
//
//	if errors.Is(err, privacy.Allow) { ... }
//	if errors.Is(err, privacy.Deny) { ... }
//	if errors.Is(err, privacy.Skip) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision.
	Allow = errors.New("veloxrm/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("veloxrm/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("veloxrm/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// MutationRule decides whether a statement of a commit may run.
type MutationRule interface {
	EvalMutation(context.Context, veloxrm.Mutation) error
}

// MutationRuleFunc type is an adapter which allows the use of
// ordinary functions as mutation rules.
type MutationRuleFunc func(context.Context, veloxrm.Mutation) error

// EvalMutation returns f(ctx, m).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, m veloxrm.Mutation) error {
	return f(ctx, m)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() MutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() MutationRule {
	return fixedDecision{Deny}
}

// ContextMutationRule creates a rule from a context evaluation function.
// Returning nil is equivalent to returning Skip.
func ContextMutationRule(eval func(context.Context) error) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, _ veloxrm.Mutation) error {
		return eval(ctx)
	})
}

// OnMutationOperation evaluates the given rule only on a given mutation operation.
func OnMutationOperation(rule MutationRule, op veloxrm.Op) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m veloxrm.Mutation) error {
		if m.Op().Is(op) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// OnTables evaluates the given rule only on mutations of the given tables.
func OnTables(rule MutationRule, tables ...string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m veloxrm.Mutation) error {
		if slices.Contains(tables, m.Table()) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// DenyMutationOperationRule returns a rule denying specified mutation operation.
func DenyMutationOperationRule(op veloxrm.Op) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, m veloxrm.Mutation) error {
		return Denyf("veloxrm/privacy: operation %s on %s is not allowed", m.Op(), m.Table())
	})
	return OnMutationOperation(rule, op)
}

// AllowMutationOperationRule returns a rule allowing specified mutation operation.
func AllowMutationOperationRule(op veloxrm.Op) MutationRule {
	rule := MutationRuleFunc(func(context.Context, veloxrm.Mutation) error {
		return Allow
	})
	return OnMutationOperation(rule, op)
}

// MutationPolicy combines multiple mutation rules into a single policy.
// The first rule returning a decision other than Skip ends the evaluation.
type MutationPolicy []MutationRule

// EvalMutation evaluates a mutation against a mutation policy.
func (policies MutationPolicy) EvalMutation(ctx context.Context, m veloxrm.Mutation) error {
	for _, policy := range policies {
		switch decision := policy.EvalMutation(ctx, m); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// NewPolicy returns the veloxrm.Policy evaluating rules in order. An Allow
// decision, or no decision at all, permits the statement.
//
//	rm, err := veloxrm.New(drv, s, veloxrm.WithPolicy(privacy.NewPolicy(
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("admin"),
//	    privacy.OnTables(privacy.IsOwner("user_id"), "author"),
//	    privacy.AlwaysDenyRule(),
//	)))
func NewPolicy(rules ...MutationRule) veloxrm.Policy {
	return Policies{MutationPolicy(rules)}
}

// Policies combines multiple policies into a single policy.
type Policies []veloxrm.Policy

// EvalMutation evaluates the mutation policies. If the Allow error is returned
// from one of the policies, it stops the evaluation with a nil error. A
// decision attached to ctx with DecisionContext takes precedence.
func (policies Policies) EvalMutation(ctx context.Context, m veloxrm.Mutation) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, policy := range policies {
		switch decision := policy.EvalMutation(ctx, m); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attach to it.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalMutation(context.Context, veloxrm.Mutation) error {
	return f.decision
}
