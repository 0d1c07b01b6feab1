package backlab

import (
	"encoding/json"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// AssetClass identifies the market an instrument trades in.
type AssetClass string

const (
	AssetStock  AssetClass = "stock"
	AssetCrypto AssetClass = "crypto"
	AssetForex  AssetClass = "forex"
)

// Bar is a single OHLCV data point for a fixed time interval. Bars in a
// series are ordered by strictly increasing timestamps with no duplicates.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// ---------------------------------------------------------------------------
// Strategy rules
// ---------------------------------------------------------------------------

// IndicatorKind enumerates the supported technical indicators.
type IndicatorKind string

const (
	IndicatorSMA        IndicatorKind = "sma"
	IndicatorEMA        IndicatorKind = "ema"
	IndicatorRSI        IndicatorKind = "rsi"
	IndicatorMACD       IndicatorKind = "macd"
	IndicatorBBands     IndicatorKind = "bbands"
	IndicatorATR        IndicatorKind = "atr"
	IndicatorStochastic IndicatorKind = "stochastic"
)

// Condition enumerates the comparison operators a rule can apply.
type Condition string

const (
	CondGreaterThan  Condition = "greater_than"
	CondLessThan     Condition = "less_than"
	CondCrossesAbove Condition = "crosses_above"
	CondCrossesBelow Condition = "crosses_below"
	CondEquals       Condition = "equals"
)

// IndicatorParams holds the parameters for a single indicator instance.
// Unused fields stay zero; defaults are applied per kind at compute time.
type IndicatorParams struct {
	Period int     `json:"period,omitempty"`
	Fast   int     `json:"fast,omitempty"`
	Slow   int     `json:"slow,omitempty"`
	Signal int     `json:"signal,omitempty"`
	NumStd float64 `json:"num_std,omitempty"`
	Smooth int     `json:"smooth,omitempty"`
}

// IndicatorRef identifies a parameterized indicator series within one
// backtest run.
type IndicatorRef struct {
	Kind   IndicatorKind   `json:"indicator"`
	Params IndicatorParams `json:"params"`
}

// RuleTarget is the right-hand side of a rule comparison. Exactly one of the
// three variants is set: a literal scalar, a reference to another indicator,
// or the signal line of the rule's own MACD indicator.
type RuleTarget struct {
	Scalar     *float64
	Indicator  *IndicatorRef
	MACDSignal bool
}

// ScalarTarget builds a RuleTarget holding a literal value.
func ScalarTarget(v float64) RuleTarget {
	return RuleTarget{Scalar: &v}
}

// IndicatorTarget builds a RuleTarget referencing another indicator.
func IndicatorTarget(ref IndicatorRef) RuleTarget {
	return RuleTarget{Indicator: &ref}
}

// SignalTarget builds a RuleTarget referencing the MACD signal line.
func SignalTarget() RuleTarget {
	return RuleTarget{MACDSignal: true}
}

// UnmarshalJSON accepts a JSON number (scalar), the string "signal" (MACD
// signal line), or an object with "indicator"/"params" keys.
func (t *RuleTarget) UnmarshalJSON(data []byte) error {
	*t = RuleTarget{}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		t.Scalar = &num
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if str != "signal" {
			return fmt.Errorf("unknown compare_to string %q (only \"signal\" is allowed)", str)
		}
		t.MACDSignal = true
		return nil
	}

	var ref IndicatorRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return fmt.Errorf("compare_to must be a number, \"signal\", or an indicator reference: %w", err)
	}
	t.Indicator = &ref
	return nil
}

// MarshalJSON emits the variant in the same shape UnmarshalJSON accepts.
func (t RuleTarget) MarshalJSON() ([]byte, error) {
	switch {
	case t.Scalar != nil:
		return json.Marshal(*t.Scalar)
	case t.MACDSignal:
		return json.Marshal("signal")
	case t.Indicator != nil:
		return json.Marshal(*t.Indicator)
	default:
		return nil, fmt.Errorf("empty compare_to target")
	}
}

// Rule is a single entry or exit condition: an indicator compared against a
// scalar or another indicator. Immutable value object.
type Rule struct {
	Indicator IndicatorKind   `json:"indicator"`
	Params    IndicatorParams `json:"params"`
	Condition Condition       `json:"condition"`
	CompareTo RuleTarget      `json:"compare_to"`
}

// Ref returns the left-hand indicator reference of the rule.
func (r Rule) Ref() IndicatorRef {
	return IndicatorRef{Kind: r.Indicator, Params: r.Params}
}

// ---------------------------------------------------------------------------
// Strategy definitions
// ---------------------------------------------------------------------------

// StrategyDefinition is the JSON-serializable description of a trading
// strategy: entry and exit rule sets (AND-combined) plus sizing parameters.
type StrategyDefinition struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	EntryRules   []Rule   `json:"entry_rules"`
	ExitRules    []Rule   `json:"exit_rules"`
	PositionSize float64  `json:"position_size"`
	StopLoss     *float64 `json:"stop_loss,omitempty"`
	TakeProfit   *float64 `json:"take_profit,omitempty"`
	MaxPositions int      `json:"max_positions,omitempty"`
}

// Strategy is a saved strategy definition with storage metadata.
type Strategy struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Definition  StrategyDefinition `json:"definition"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	IsPublic    bool               `json:"is_public"`
	Author      string             `json:"author,omitempty"`
}

// ---------------------------------------------------------------------------
// Backtest output
// ---------------------------------------------------------------------------

// Trade is a closed round trip produced by the simulation. Incomplete marks
// a position that was still open at the end of the series and was closed
// synthetically at the final bar's close.
type Trade struct {
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Size       float64   `json:"size"`
	PnL        float64   `json:"pnl"`
	ReturnPct  float64   `json:"return_pct"`
	Incomplete bool      `json:"incomplete,omitempty"`
}

// EquityPoint is one point of the equity curve: total account value (cash
// plus mark-to-market position value) at a bar's close.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

// BacktestResult is the complete output of one backtest run. SharpeRatio and
// ProfitFactor are nil when the metric is not applicable (too few return
// observations, no losing trades) rather than zero or infinity.
type BacktestResult struct {
	Symbol         string        `json:"symbol"`
	AssetClass     AssetClass    `json:"asset_class"`
	Timeframe      string        `json:"timeframe"`
	StartDate      time.Time     `json:"start_date"`
	EndDate        time.Time     `json:"end_date"`
	InitialCapital float64       `json:"initial_capital"`
	FinalValue     float64       `json:"final_value"`
	TotalReturn    float64       `json:"total_return"`
	TotalReturnPct float64       `json:"total_return_pct"`
	SharpeRatio    *float64      `json:"sharpe_ratio"`
	MaxDrawdown    float64       `json:"max_drawdown"`
	MaxDrawdownPct float64       `json:"max_drawdown_pct"`
	WinRate        float64       `json:"win_rate"`
	TotalTrades    int           `json:"total_trades"`
	WinningTrades  int           `json:"winning_trades"`
	LosingTrades   int           `json:"losing_trades"`
	AvgWin         float64       `json:"avg_win"`
	AvgLoss        float64       `json:"avg_loss"`
	ProfitFactor   *float64      `json:"profit_factor"`
	EquityCurve    []EquityPoint `json:"equity_curve"`
	Trades         []Trade       `json:"trades"`
}
