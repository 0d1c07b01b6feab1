package backtest

import (
	"math"

	"backlab/internal/domain"
)

// fillMetrics computes every performance metric from the result's equity
// curve and trade list. Metrics that have no defined value (Sharpe with
// fewer than two returns or zero variance, profit factor with no losing
// trades) are left nil rather than forced to zero or infinity.
func fillMetrics(res *domain.BacktestResult, periodsPerYear int) {
	curve := res.EquityCurve
	if len(curve) == 0 {
		res.FinalValue = res.InitialCapital
		return
	}

	res.FinalValue = curve[len(curve)-1].Equity
	res.TotalReturn = res.FinalValue - res.InitialCapital
	if res.InitialCapital > 0 {
		res.TotalReturnPct = res.TotalReturn / res.InitialCapital * 100
	}

	res.MaxDrawdown, res.MaxDrawdownPct = maxDrawdown(curve)
	res.SharpeRatio = sharpeRatio(curve, periodsPerYear)
	fillTradeStats(res)
}

// maxDrawdown returns the largest decline from a running equity peak, as an
// absolute value and as a percentage of that peak. The trough with the
// deepest percentage decline is the one reported.
func maxDrawdown(curve []domain.EquityPoint) (value, pct float64) {
	peak := curve[0].Equity
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		ddPct := (peak - p.Equity) / peak * 100
		if ddPct > pct {
			pct = ddPct
			value = peak - p.Equity
		}
	}
	return value, pct
}

// sharpeRatio computes the annualized Sharpe ratio (zero risk-free rate)
// from per-bar equity returns. Returns nil when fewer than two returns exist
// or when their standard deviation is zero.
func sharpeRatio(curve []domain.EquityPoint, periodsPerYear int) *float64 {
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	if len(returns) < 2 {
		return nil
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return nil
	}

	sharpe := mean / std * math.Sqrt(float64(periodsPerYear))
	return &sharpe
}

// fillTradeStats computes win/loss statistics. Incomplete trades count
// toward the trade total but are excluded from every win/loss metric, so a
// forced final close never distorts the win rate.
func fillTradeStats(res *domain.BacktestResult) {
	res.TotalTrades = len(res.Trades)

	var (
		completed          int
		sumWins, sumLosses float64
	)
	for _, t := range res.Trades {
		if t.Incomplete {
			continue
		}
		completed++
		switch {
		case t.PnL > 0:
			res.WinningTrades++
			sumWins += t.PnL
		case t.PnL < 0:
			res.LosingTrades++
			sumLosses += t.PnL
		}
	}

	if completed > 0 {
		res.WinRate = float64(res.WinningTrades) / float64(completed) * 100
	}
	if res.WinningTrades > 0 {
		res.AvgWin = sumWins / float64(res.WinningTrades)
	}
	if res.LosingTrades > 0 {
		// Reported as a positive magnitude.
		res.AvgLoss = math.Abs(sumLosses / float64(res.LosingTrades))
	}
	if res.LosingTrades > 0 && sumLosses != 0 {
		pf := sumWins / math.Abs(sumLosses)
		res.ProfitFactor = &pf
	}
}
