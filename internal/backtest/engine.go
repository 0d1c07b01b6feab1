// Package backtest runs strategy simulations over historical bar series and
// computes performance metrics. The simulation is a deterministic single-pass
// state machine: one long position at a time, orders filled at the close of
// the bar that produced the signal.
package backtest

import (
	"fmt"
	"log/slog"

	"backlab/internal/domain"
	"backlab/internal/indicator"
	"backlab/internal/strategy"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Defaults applied when a run does not specify its own values.
const (
	DefaultInitialCapital = 10_000.0
	DefaultCommissionRate = 0.001
	DefaultPeriodsPerYear = 252
)

// Config holds engine-level defaults. Individual runs may override capital
// and commission through RunParams.
type Config struct {
	InitialCapital float64
	CommissionRate float64
	PeriodsPerYear int
}

func (c Config) withDefaults() Config {
	if c.InitialCapital <= 0 {
		c.InitialCapital = DefaultInitialCapital
	}
	if c.CommissionRate < 0 {
		c.CommissionRate = DefaultCommissionRate
	}
	if c.PeriodsPerYear <= 0 {
		c.PeriodsPerYear = DefaultPeriodsPerYear
	}
	return c
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// Engine runs backtests. It is stateless across runs and safe for concurrent
// use.
type Engine struct {
	cfg Config
	log *slog.Logger
}

// New creates an Engine with the given defaults.
func New(cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{cfg: cfg.withDefaults(), log: log}
}

// RunParams describes one backtest run. InitialCapital falls back to the
// engine default when zero; CommissionRate falls back when nil.
type RunParams struct {
	Symbol         string
	AssetClass     domain.AssetClass
	Timeframe      string
	Bars           []domain.Bar
	Definition     domain.StrategyDefinition
	InitialCapital float64
	CommissionRate *float64
	PeriodsPerYear int
}

// position is the engine's open-position state while IN_POSITION.
type position struct {
	entryIndex int
	entryPrice float64
	size       float64
	commission float64
}

// Run simulates the strategy over the bar series and returns the full result.
// The definition is validated first; the series length is then checked
// against the longest indicator warm-up before any simulation happens.
// Identical inputs always produce identical results.
func (e *Engine) Run(params RunParams) (*domain.BacktestResult, error) {
	def := params.Definition
	if err := strategy.Validate(def); err != nil {
		return nil, err
	}

	bars := params.Bars
	if len(bars) == 0 {
		return nil, &InsufficientDataError{Required: requiredBars(def), Actual: 0}
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return nil, fmt.Errorf("bars out of order at index %d (%s >= %s)",
				i, bars[i-1].Timestamp.Format("2006-01-02"), bars[i].Timestamp.Format("2006-01-02"))
		}
	}

	if required := requiredBars(def); len(bars) < required {
		return nil, &InsufficientDataError{Required: required, Actual: len(bars)}
	}

	initialCapital := params.InitialCapital
	if initialCapital <= 0 {
		initialCapital = e.cfg.InitialCapital
	}
	commissionRate := e.cfg.CommissionRate
	if params.CommissionRate != nil {
		commissionRate = *params.CommissionRate
	}
	if commissionRate < 0 {
		return nil, fmt.Errorf("commission rate must be non-negative, got %v", commissionRate)
	}

	set := indicator.NewSet(bars)
	entry, err := compilePredicate(def.EntryRules, set)
	if err != nil {
		return nil, err
	}
	exit, err := compilePredicate(def.ExitRules, set)
	if err != nil {
		return nil, err
	}

	cash := initialCapital
	var pos *position
	trades := make([]domain.Trade, 0, 8)
	curve := make([]domain.EquityPoint, 0, len(bars))

	for i, bar := range bars {
		if pos != nil {
			if exit.eval(i) {
				var trade domain.Trade
				cash, trade = closePosition(cash, pos, bars, i, commissionRate, false)
				trades = append(trades, trade)
				pos = nil
			}
		} else if entry.eval(i) && cash > 0 && bar.Close > 0 {
			size := def.PositionSize * cash / bar.Close
			cost := bar.Close * size
			com := cost * commissionRate
			cash -= cost + com
			pos = &position{entryIndex: i, entryPrice: bar.Close, size: size, commission: com}
		}

		equity := cash
		if pos != nil {
			equity += pos.size * bar.Close
		}
		curve = append(curve, domain.EquityPoint{Date: bar.Timestamp, Equity: equity})
	}

	// A position still open after the last bar is closed at that bar's close
	// and recorded as an incomplete trade.
	if pos != nil {
		var trade domain.Trade
		cash, trade = closePosition(cash, pos, bars, len(bars)-1, commissionRate, true)
		trades = append(trades, trade)
		curve[len(curve)-1].Equity = cash
	}

	result := &domain.BacktestResult{
		Symbol:         params.Symbol,
		AssetClass:     params.AssetClass,
		Timeframe:      params.Timeframe,
		StartDate:      bars[0].Timestamp,
		EndDate:        bars[len(bars)-1].Timestamp,
		InitialCapital: initialCapital,
		EquityCurve:    curve,
		Trades:         trades,
	}
	periods := params.PeriodsPerYear
	if periods <= 0 {
		periods = e.cfg.PeriodsPerYear
	}
	fillMetrics(result, periods)

	e.log.Info("backtest complete",
		"symbol", params.Symbol,
		"strategy", def.Name,
		"bars", len(bars),
		"trades", result.TotalTrades,
		"final_value", result.FinalValue)
	return result, nil
}

// closePosition sells the whole position at bars[i].Close and returns the
// updated cash balance and the recorded trade.
func closePosition(cash float64, pos *position, bars []domain.Bar, i int, commissionRate float64, incomplete bool) (float64, domain.Trade) {
	price := bars[i].Close
	proceeds := price * pos.size
	com := proceeds * commissionRate
	cash += proceeds - com

	totalCommission := pos.commission + com
	pnl := (price-pos.entryPrice)*pos.size - totalCommission
	cost := pos.entryPrice * pos.size
	returnPct := 0.0
	if cost > 0 {
		returnPct = pnl / cost * 100
	}

	return cash, domain.Trade{
		EntryTime:  bars[pos.entryIndex].Timestamp,
		ExitTime:   bars[i].Timestamp,
		EntryPrice: pos.entryPrice,
		ExitPrice:  price,
		Size:       pos.size,
		PnL:        pnl,
		ReturnPct:  returnPct,
		Incomplete: incomplete,
	}
}

// requiredBars returns the longest warm-up across every indicator the
// strategy references, on either side of any rule.
func requiredBars(def domain.StrategyDefinition) int {
	required := 0
	consider := func(n int) {
		if n > required {
			required = n
		}
	}
	for _, rule := range append(append([]domain.Rule{}, def.EntryRules...), def.ExitRules...) {
		consider(indicator.Warmup(rule.Ref()))
		switch {
		case rule.CompareTo.Indicator != nil:
			consider(indicator.Warmup(*rule.CompareTo.Indicator))
		case rule.CompareTo.MACDSignal:
			consider(indicator.MACDSignalWarmup(rule.Ref()))
		}
	}
	return required
}
