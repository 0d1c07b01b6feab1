// Package domain gives internal packages one shared vocabulary for the
// platform's value objects: price bars, strategy definitions, rules, trades,
// and backtest results. The canonical declarations live in pkg/backlab so SDK
// consumers can construct definitions and read results without importing
// internal packages; this package aliases them.
package domain

import "backlab/pkg/backlab"

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

type AssetClass = backlab.AssetClass

const (
	AssetStock  = backlab.AssetStock
	AssetCrypto = backlab.AssetCrypto
	AssetForex  = backlab.AssetForex
)

type Bar = backlab.Bar

// ---------------------------------------------------------------------------
// Strategy rules
// ---------------------------------------------------------------------------

type IndicatorKind = backlab.IndicatorKind

const (
	IndicatorSMA        = backlab.IndicatorSMA
	IndicatorEMA        = backlab.IndicatorEMA
	IndicatorRSI        = backlab.IndicatorRSI
	IndicatorMACD       = backlab.IndicatorMACD
	IndicatorBBands     = backlab.IndicatorBBands
	IndicatorATR        = backlab.IndicatorATR
	IndicatorStochastic = backlab.IndicatorStochastic
)

type Condition = backlab.Condition

const (
	CondGreaterThan  = backlab.CondGreaterThan
	CondLessThan     = backlab.CondLessThan
	CondCrossesAbove = backlab.CondCrossesAbove
	CondCrossesBelow = backlab.CondCrossesBelow
	CondEquals       = backlab.CondEquals
)

type (
	IndicatorParams = backlab.IndicatorParams
	IndicatorRef    = backlab.IndicatorRef
	RuleTarget      = backlab.RuleTarget
	Rule            = backlab.Rule
)

// ScalarTarget builds a RuleTarget holding a literal value.
func ScalarTarget(v float64) RuleTarget { return backlab.ScalarTarget(v) }

// IndicatorTarget builds a RuleTarget referencing another indicator.
func IndicatorTarget(ref IndicatorRef) RuleTarget { return backlab.IndicatorTarget(ref) }

// SignalTarget builds a RuleTarget referencing the MACD signal line.
func SignalTarget() RuleTarget { return backlab.SignalTarget() }

// ---------------------------------------------------------------------------
// Strategy definitions and backtest output
// ---------------------------------------------------------------------------

type (
	StrategyDefinition = backlab.StrategyDefinition
	Strategy           = backlab.Strategy
	Trade              = backlab.Trade
	EquityPoint        = backlab.EquityPoint
	BacktestResult     = backlab.BacktestResult
)
