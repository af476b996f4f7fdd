package governance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request is one plan step about to be dispatched to a plant system.
type Request struct {
	RunID       string
	Kind        string // SCADA or MANUAL
	Description string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates plan steps before they reach plant systems.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// Rule denies steps of one kind whose description matches Pattern.
// An empty Kind applies to every step.
type Rule struct {
	Kind    string
	Pattern *regexp.Regexp
	Reason  string
}

func (r Rule) matches(req Request) bool {
	if r.Kind != "" && r.Kind != req.Kind {
		return false
	}
	return r.Pattern.MatchString(req.Description)
}

// StepPolicy keeps diagnostic runs read-only. Whole step kinds can be
// switched off, and per-kind rules reject steps phrased as control actions.
// A SCADA rule against "restart" does not stop a MANUAL search for the
// restart procedure.
type StepPolicy struct {
	Disabled map[string]bool
	Rules    []Rule
}

func NewStepPolicy(disabledKinds ...string) *StepPolicy {
	p := &StepPolicy{Disabled: make(map[string]bool)}
	for _, k := range disabledKinds {
		p.Disabled[normalizeKind(k)] = true
	}
	return p
}

// Deny adds a case-insensitive rule. Rules are checked in the order added.
func (p *StepPolicy) Deny(kind, pattern, reason string) error {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("invalid %s rule %q: %w", kindLabel(kind), pattern, err)
	}
	p.Rules = append(p.Rules, Rule{Kind: normalizeKind(kind), Pattern: re, Reason: reason})
	return nil
}

func (p *StepPolicy) Evaluate(ctx context.Context, req Request) (Result, error) {
	req.Kind = normalizeKind(req.Kind)
	if p.Disabled[req.Kind] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("%s steps are disabled by plant policy", req.Kind),
		}, nil
	}

	for _, r := range p.Rules {
		if !r.matches(req) {
			continue
		}
		reason := r.Reason
		if reason == "" {
			reason = fmt.Sprintf("%s step matches restricted pattern: %s", req.Kind, strings.TrimPrefix(r.Pattern.String(), "(?i)"))
		}
		return Result{Effect: EffectDeny, Reason: reason}, nil
	}

	return Result{Effect: EffectAllow, Reason: "no plant rule matched"}, nil
}

func normalizeKind(k string) string {
	return strings.ToUpper(strings.TrimSpace(k))
}

func kindLabel(k string) string {
	if k = normalizeKind(k); k == "" {
		return "step"
	}
	return k
}
