package util

import "backlab/internal/domain"

// PeriodsPerYear returns the number of bars per year for a timeframe and
// asset class, used to annualize per-bar return statistics. Stocks trade
// roughly 252 sessions a year; crypto trades every day.
func PeriodsPerYear(asset domain.AssetClass, timeframe string) int {
	days := 252
	if asset == domain.AssetCrypto {
		days = 365
	}

	switch timeframe {
	case "1d", "":
		return days
	case "1h":
		if asset == domain.AssetCrypto {
			return days * 24
		}
		// Regular US session: 6.5 trading hours per day.
		return int(float64(days) * 6.5)
	default:
		return days
	}
}
