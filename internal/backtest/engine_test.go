package backtest

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"reflect"
	"testing"

	"backlab/internal/domain"
)

func testEngine() *Engine {
	return New(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// closeRule compares the 1-period SMA, which equals the close itself.
func closeRule(cond domain.Condition, target domain.RuleTarget) domain.Rule {
	return domain.Rule{
		Indicator: domain.IndicatorSMA,
		Params:    domain.IndicatorParams{Period: 1},
		Condition: cond,
		CompareTo: target,
	}
}

func buyAndHold() domain.StrategyDefinition {
	return domain.StrategyDefinition{
		Name:         "Buy And Hold",
		EntryRules:   []domain.Rule{closeRule(domain.CondGreaterThan, domain.ScalarTarget(0))},
		PositionSize: 1.0,
	}
}

func TestRunBuyAndHold(t *testing.T) {
	bars := barsFromCloses(30, 60, 120, 240, 400)
	res, err := testEngine().Run(RunParams{
		Symbol:         "TEST",
		AssetClass:     domain.AssetStock,
		Timeframe:      "1d",
		Bars:           bars,
		Definition:     buyAndHold(),
		InitialCapital: 10_000,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.TotalTrades != 1 {
		t.Fatalf("TotalTrades = %d, want 1", res.TotalTrades)
	}
	trade := res.Trades[0]
	if !trade.Incomplete {
		t.Error("position held to the end was not marked incomplete")
	}
	if trade.EntryPrice != 30 || trade.ExitPrice != 400 {
		t.Errorf("trade prices %v -> %v, want 30 -> 400", trade.EntryPrice, trade.ExitPrice)
	}

	// Entry invests all capital at 30 and the forced close sells at 400;
	// final value is the 400/30 multiple minus commission on both sides.
	size := 10_000.0 / 30
	entryCom := 30 * size * DefaultCommissionRate
	exitCom := 400 * size * DefaultCommissionRate
	wantFinal := 10_000 - 30*size - entryCom + 400*size - exitCom
	if math.Abs(res.FinalValue-wantFinal) > 1e-6 {
		t.Errorf("FinalValue = %v, want %v", res.FinalValue, wantFinal)
	}

	// The incomplete trade is excluded from win/loss statistics.
	if res.WinningTrades != 0 || res.LosingTrades != 0 || res.WinRate != 0 {
		t.Errorf("incomplete trade leaked into win/loss stats: %+v", res)
	}
	if res.ProfitFactor != nil {
		t.Error("ProfitFactor set with no completed losing trades")
	}
	if len(res.EquityCurve) != len(bars) {
		t.Errorf("equity curve has %d points, want %d", len(res.EquityCurve), len(bars))
	}
	if res.EquityCurve[len(res.EquityCurve)-1].Equity != res.FinalValue {
		t.Error("final equity point does not match FinalValue")
	}
}

func TestRunNoTrades(t *testing.T) {
	// RSI stays at 100 on a strictly rising series, so an oversold entry
	// never fires and equity stays flat at the initial capital.
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	def := domain.StrategyDefinition{
		Name: "RSI Dip",
		EntryRules: []domain.Rule{{
			Indicator: domain.IndicatorRSI,
			Params:    domain.IndicatorParams{Period: 14},
			Condition: domain.CondLessThan,
			CompareTo: domain.ScalarTarget(30),
		}},
		PositionSize: 1.0,
	}

	res, err := testEngine().Run(RunParams{Bars: barsFromCloses(closes...), Definition: def, InitialCapital: 5_000})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TotalTrades != 0 {
		t.Fatalf("TotalTrades = %d, want 0", res.TotalTrades)
	}
	if res.FinalValue != 5_000 || res.TotalReturn != 0 || res.TotalReturnPct != 0 {
		t.Errorf("flat run changed equity: final=%v return=%v", res.FinalValue, res.TotalReturn)
	}
	if res.MaxDrawdown != 0 || res.MaxDrawdownPct != 0 {
		t.Errorf("flat run reported drawdown %v (%v%%)", res.MaxDrawdown, res.MaxDrawdownPct)
	}
	if res.SharpeRatio != nil {
		t.Error("Sharpe ratio set for a zero-variance equity curve")
	}
	for _, p := range res.EquityCurve {
		if p.Equity != 5_000 {
			t.Fatalf("equity point %v != initial capital", p.Equity)
		}
	}
}

func TestRunRoundTripConservesCash(t *testing.T) {
	// One full round trip plus a forced close at the end.
	bars := barsFromCloses(90, 120, 130, 80, 70, 110, 130)
	def := domain.StrategyDefinition{
		Name:         "Threshold",
		EntryRules:   []domain.Rule{closeRule(domain.CondCrossesAbove, domain.ScalarTarget(100))},
		ExitRules:    []domain.Rule{closeRule(domain.CondCrossesBelow, domain.ScalarTarget(100))},
		PositionSize: 1.0,
	}

	res, err := testEngine().Run(RunParams{Bars: bars, Definition: def, InitialCapital: 10_000})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TotalTrades != 2 {
		t.Fatalf("TotalTrades = %d, want 2", res.TotalTrades)
	}
	if res.Trades[0].Incomplete {
		t.Error("first trade marked incomplete")
	}
	if !res.Trades[1].Incomplete {
		t.Error("position open at the final bar was not marked incomplete")
	}

	sum := 0.0
	for _, tr := range res.Trades {
		sum += tr.PnL
	}
	if math.Abs(res.FinalValue-(res.InitialCapital+sum)) > 1e-6 {
		t.Errorf("final value %v != initial %v + trade pnl %v", res.FinalValue, res.InitialCapital, sum)
	}
}

func TestRunEntrySignalsIgnoredWhileInPosition(t *testing.T) {
	// The close stays above the entry threshold for several bars; only the
	// first signal opens a position.
	bars := barsFromCloses(50, 150, 160, 170, 180, 190)
	res, err := testEngine().Run(RunParams{
		Bars: bars,
		Definition: domain.StrategyDefinition{
			Name:         "Enter Once",
			EntryRules:   []domain.Rule{closeRule(domain.CondGreaterThan, domain.ScalarTarget(100))},
			PositionSize: 0.5,
		},
		InitialCapital: 10_000,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TotalTrades != 1 {
		t.Errorf("TotalTrades = %d, want 1", res.TotalTrades)
	}
	if got := res.Trades[0].EntryPrice; got != 150 {
		t.Errorf("entry price = %v, want 150", got)
	}
	// Half-size position: entry cost is half the capital.
	wantSize := 0.5 * 10_000 / 150
	if math.Abs(res.Trades[0].Size-wantSize) > 1e-9 {
		t.Errorf("size = %v, want %v", res.Trades[0].Size, wantSize)
	}
}

func TestRunInsufficientData(t *testing.T) {
	def := domain.StrategyDefinition{
		Name: "Long SMA",
		EntryRules: []domain.Rule{{
			Indicator: domain.IndicatorSMA,
			Params:    domain.IndicatorParams{Period: 200},
			Condition: domain.CondGreaterThan,
			CompareTo: domain.ScalarTarget(0),
		}},
		PositionSize: 1.0,
	}

	_, err := testEngine().Run(RunParams{Bars: barsFromCloses(1, 2, 3), Definition: def})
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("error is %T, want *InsufficientDataError", err)
	}
	if insufficient.Required != 200 || insufficient.Actual != 3 {
		t.Errorf("got required=%d actual=%d, want 200 and 3", insufficient.Required, insufficient.Actual)
	}
}

func TestRunRequiredBarsCoversBothSides(t *testing.T) {
	// The compare side references a longer SMA than the rule side; the
	// warm-up requirement must follow the longer one.
	def := domain.StrategyDefinition{
		Name: "Cross",
		EntryRules: []domain.Rule{{
			Indicator: domain.IndicatorSMA,
			Params:    domain.IndicatorParams{Period: 5},
			Condition: domain.CondCrossesAbove,
			CompareTo: domain.IndicatorTarget(domain.IndicatorRef{
				Kind:   domain.IndicatorSMA,
				Params: domain.IndicatorParams{Period: 50},
			}),
		}},
		PositionSize: 1.0,
	}
	if got := requiredBars(def); got != 50 {
		t.Errorf("requiredBars = %d, want 50", got)
	}

	sig := domain.StrategyDefinition{
		Name: "MACD",
		EntryRules: []domain.Rule{{
			Indicator: domain.IndicatorMACD,
			Params:    domain.IndicatorParams{Fast: 12, Slow: 26, Signal: 9},
			Condition: domain.CondCrossesAbove,
			CompareTo: domain.SignalTarget(),
		}},
		PositionSize: 1.0,
	}
	if got := requiredBars(sig); got != 34 {
		t.Errorf("requiredBars for MACD signal = %d, want 34", got)
	}
}

func TestRunRejectsInvalidStrategy(t *testing.T) {
	def := buyAndHold()
	def.PositionSize = 0

	_, err := testEngine().Run(RunParams{Bars: barsFromCloses(1, 2, 3), Definition: def})
	if err == nil {
		t.Fatal("Run accepted an invalid strategy")
	}
}

func TestRunRejectsUnorderedBars(t *testing.T) {
	bars := barsFromCloses(10, 11, 12)
	bars[2].Timestamp = bars[0].Timestamp

	_, err := testEngine().Run(RunParams{Bars: bars, Definition: buyAndHold()})
	if err == nil {
		t.Fatal("Run accepted out-of-order bars")
	}
}

func TestRunIsDeterministic(t *testing.T) {
	bars := barsFromCloses(90, 120, 130, 80, 70, 110, 130, 95, 140, 105)
	def := domain.StrategyDefinition{
		Name:         "Threshold",
		EntryRules:   []domain.Rule{closeRule(domain.CondCrossesAbove, domain.ScalarTarget(100))},
		ExitRules:    []domain.Rule{closeRule(domain.CondCrossesBelow, domain.ScalarTarget(100))},
		PositionSize: 1.0,
	}

	first, err := testEngine().Run(RunParams{Bars: bars, Definition: def})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := testEngine().Run(RunParams{Bars: bars, Definition: def})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs produced different results")
	}
}
