package backtest

import (
	"fmt"

	"backlab/internal/domain"
	"backlab/internal/indicator"
)

// compiledRule is a rule bound to its computed indicator series for one run.
// Evaluation is a pure function of the bar index.
type compiledRule struct {
	cond   domain.Condition
	left   indicator.Series
	scalar *float64
	right  indicator.Series // used when scalar is nil
}

// compileRule resolves the rule's operands against the run's indicator set.
func compileRule(rule domain.Rule, set *indicator.Set) (compiledRule, error) {
	left, err := set.Get(rule.Ref())
	if err != nil {
		return compiledRule{}, fmt.Errorf("rule %s: %w", rule.Indicator, err)
	}

	cr := compiledRule{cond: rule.Condition, left: left}
	tgt := rule.CompareTo
	switch {
	case tgt.Scalar != nil:
		cr.scalar = tgt.Scalar
	case tgt.MACDSignal:
		sig, err := set.MACDSignal(rule.Ref())
		if err != nil {
			return compiledRule{}, err
		}
		cr.right = sig
	case tgt.Indicator != nil:
		right, err := set.Get(*tgt.Indicator)
		if err != nil {
			return compiledRule{}, fmt.Errorf("rule %s compare_to: %w", rule.Indicator, err)
		}
		cr.right = right
	default:
		return compiledRule{}, fmt.Errorf("rule %s: empty compare_to target", rule.Indicator)
	}
	return cr, nil
}

// rhs returns the right-hand value at index i and whether it is available.
func (r compiledRule) rhs(i int) (float64, bool) {
	if r.scalar != nil {
		return *r.scalar, true
	}
	return r.right.At(i)
}

// eval returns the rule's signal at bar i. Any unavailable operand makes the
// rule false: no signal can fire during an indicator's warm-up. Crossover
// conditions require strict inequality on the triggering side, so equality at
// the crossing bar does not itself count as a cross.
func (r compiledRule) eval(i int) bool {
	lv, ok := r.left.At(i)
	if !ok {
		return false
	}
	rv, ok := r.rhs(i)
	if !ok {
		return false
	}

	switch r.cond {
	case domain.CondGreaterThan:
		return lv > rv
	case domain.CondLessThan:
		return lv < rv
	case domain.CondEquals:
		return lv == rv
	case domain.CondCrossesAbove:
		lp, rp, ok := r.prior(i)
		return ok && lp <= rp && lv > rv
	case domain.CondCrossesBelow:
		lp, rp, ok := r.prior(i)
		return ok && lp >= rp && lv < rv
	default:
		return false
	}
}

// prior returns both operands at bar i-1 for crossover checks.
func (r compiledRule) prior(i int) (left, right float64, ok bool) {
	if i < 1 {
		return 0, 0, false
	}
	left, lok := r.left.At(i - 1)
	right, rok := r.rhs(i - 1)
	return left, right, lok && rok
}

// predicate AND-combines a rule set into a single per-bar signal. An empty
// rule set never fires, so a strategy with no exit rules holds its position
// until the end of the series.
type predicate []compiledRule

func compilePredicate(rules []domain.Rule, set *indicator.Set) (predicate, error) {
	p := make(predicate, 0, len(rules))
	for _, rule := range rules {
		cr, err := compileRule(rule, set)
		if err != nil {
			return nil, err
		}
		p = append(p, cr)
	}
	return p, nil
}

func (p predicate) eval(i int) bool {
	if len(p) == 0 {
		return false
	}
	for _, r := range p {
		if !r.eval(i) {
			return false
		}
	}
	return true
}
