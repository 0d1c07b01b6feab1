// Package strategy validates strategy definitions and provides the built-in
// template catalog.
package strategy

import (
	"fmt"
	"math"

	"backlab/internal/domain"
)

// InvalidStrategyError reports a strategy definition that can never be
// simulated: empty entry rules, a non-positive position size, or an unknown
// indicator or condition. It is raised at validation time, before any
// simulation runs.
type InvalidStrategyError struct {
	Reason string
}

func (e *InvalidStrategyError) Error() string {
	return "invalid strategy: " + e.Reason
}

func invalidf(format string, args ...any) error {
	return &InvalidStrategyError{Reason: fmt.Sprintf(format, args...)}
}

var validConditions = map[domain.Condition]bool{
	domain.CondGreaterThan:  true,
	domain.CondLessThan:     true,
	domain.CondCrossesAbove: true,
	domain.CondCrossesBelow: true,
	domain.CondEquals:       true,
}

var validIndicators = map[domain.IndicatorKind]bool{
	domain.IndicatorSMA:        true,
	domain.IndicatorEMA:        true,
	domain.IndicatorRSI:        true,
	domain.IndicatorMACD:       true,
	domain.IndicatorBBands:     true,
	domain.IndicatorATR:        true,
	domain.IndicatorStochastic: true,
}

// Validate checks a strategy definition and returns an *InvalidStrategyError
// describing the first problem found. Exit rules may be empty: a strategy
// that never exits (buy-and-hold) is valid.
func Validate(def domain.StrategyDefinition) error {
	if def.Name == "" {
		return invalidf("name must not be empty")
	}
	if len(def.EntryRules) == 0 {
		return invalidf("at least one entry rule is required")
	}
	if def.PositionSize <= 0 || def.PositionSize > 1 {
		return invalidf("position_size must be in (0, 1], got %v", def.PositionSize)
	}
	if def.MaxPositions > 1 {
		return invalidf("max_positions > 1 is not supported (got %d)", def.MaxPositions)
	}
	if def.StopLoss != nil && (*def.StopLoss < 0 || *def.StopLoss > 1) {
		return invalidf("stop_loss must be in [0, 1], got %v", *def.StopLoss)
	}
	if def.TakeProfit != nil && *def.TakeProfit < 0 {
		return invalidf("take_profit must be non-negative, got %v", *def.TakeProfit)
	}

	for i, rule := range def.EntryRules {
		if err := validateRule(rule, fmt.Sprintf("entry rule %d", i+1)); err != nil {
			return err
		}
	}
	for i, rule := range def.ExitRules {
		if err := validateRule(rule, fmt.Sprintf("exit rule %d", i+1)); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(rule domain.Rule, where string) error {
	if !validIndicators[rule.Indicator] {
		return invalidf("%s: unknown indicator %q", where, rule.Indicator)
	}
	if !validConditions[rule.Condition] {
		return invalidf("%s: unknown condition %q", where, rule.Condition)
	}
	if err := validateParams(rule.Ref(), where); err != nil {
		return err
	}

	tgt := rule.CompareTo
	variants := 0
	if tgt.Scalar != nil {
		variants++
	}
	if tgt.Indicator != nil {
		variants++
	}
	if tgt.MACDSignal {
		variants++
	}
	if variants != 1 {
		return invalidf("%s: compare_to must be exactly one of a scalar, an indicator reference, or \"signal\"", where)
	}

	switch {
	case tgt.Scalar != nil:
		if math.IsNaN(*tgt.Scalar) || math.IsInf(*tgt.Scalar, 0) {
			return invalidf("%s: compare_to scalar must be finite", where)
		}
	case tgt.MACDSignal:
		if rule.Indicator != domain.IndicatorMACD {
			return invalidf("%s: \"signal\" compare target is only valid for macd rules", where)
		}
	case tgt.Indicator != nil:
		if !validIndicators[tgt.Indicator.Kind] {
			return invalidf("%s: unknown compare_to indicator %q", where, tgt.Indicator.Kind)
		}
		if err := validateParams(*tgt.Indicator, where+" compare_to"); err != nil {
			return err
		}
	}
	return nil
}

func validateParams(ref domain.IndicatorRef, where string) error {
	p := ref.Params
	if p.Period < 0 || p.Fast < 0 || p.Slow < 0 || p.Signal < 0 || p.Smooth < 0 {
		return invalidf("%s: indicator periods must be positive", where)
	}
	if p.NumStd < 0 {
		return invalidf("%s: num_std must be positive", where)
	}
	if ref.Kind == domain.IndicatorMACD && p.Fast > 0 && p.Slow > 0 && p.Fast >= p.Slow {
		return invalidf("%s: macd fast period (%d) must be less than slow period (%d)", where, p.Fast, p.Slow)
	}
	return nil
}
