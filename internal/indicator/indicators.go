package indicator

import (
	"math"

	"backlab/internal/domain"
)

// Closes extracts the close prices from a bar series.
func Closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// SMA computes the arithmetic mean of the last period values. The first
// period-1 positions are unavailable.
func SMA(values []float64, period int) Series {
	s := NewSeries(len(values))
	if period <= 0 || len(values) < period {
		return s
	}

	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			s.set(i, sum/float64(period))
		}
	}
	return s
}

// EMA computes an exponential moving average with smoothing factor
// 2/(period+1), seeded with the SMA of the first period values. Positions
// before the seed bar are unavailable.
func EMA(values []float64, period int) Series {
	s := NewSeries(len(values))
	if period <= 0 || len(values) < period {
		return s
	}

	var seed float64
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)
	s.set(period-1, seed)

	k := 2.0 / float64(period+1)
	prev := seed
	for i := period; i < len(values); i++ {
		prev = (values[i]-prev)*k + prev
		s.set(i, prev)
	}
	return s
}

// RSI computes Wilder's relative strength index over period bars, scaled to
// [0,100]. The first valid position is index period (one full set of price
// changes plus the seed average). A zero average loss yields RSI = 100.
func RSI(values []float64, period int) Series {
	s := NewSeries(len(values))
	if period <= 0 || len(values) < period+1 {
		return s
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	s.set(period, rsiValue(avgGain, avgLoss))

	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		var gain, loss float64
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		s.set(i, rsiValue(avgGain, avgLoss))
	}
	return s
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD computes the MACD line (EMA(fast) − EMA(slow)) and its signal line
// (EMA(signal) of the MACD line). The line is unavailable until the slow EMA
// warms up; the signal line additionally waits for its own warm-up.
func MACD(values []float64, fast, slow, signal int) (line, sig Series) {
	line = NewSeries(len(values))
	emaFast := EMA(values, fast)
	emaSlow := EMA(values, slow)
	for i := range values {
		f, okF := emaFast.At(i)
		s, okS := emaSlow.At(i)
		if okF && okS {
			line.set(i, f-s)
		}
	}
	sig = emaOfSeries(line, signal)
	return line, sig
}

// emaOfSeries computes an EMA over a series whose leading positions may be
// unavailable; the seed is the SMA of the first period available values.
func emaOfSeries(src Series, period int) Series {
	s := NewSeries(src.Len())
	first := src.FirstValid()
	if period <= 0 || first < 0 || src.Len()-first < period {
		return s
	}

	var seed float64
	for i := first; i < first+period; i++ {
		v, _ := src.At(i)
		seed += v
	}
	seed /= float64(period)
	seedIdx := first + period - 1
	s.set(seedIdx, seed)

	k := 2.0 / float64(period+1)
	prev := seed
	for i := seedIdx + 1; i < src.Len(); i++ {
		v, ok := src.At(i)
		if !ok {
			continue
		}
		prev = (v-prev)*k + prev
		s.set(i, prev)
	}
	return s
}

// smaOfSeries computes an SMA over a series whose leading positions may be
// unavailable; a window is valid only when all its positions are.
func smaOfSeries(src Series, period int) Series {
	s := NewSeries(src.Len())
	if period <= 0 {
		return s
	}
	for i := period - 1; i < src.Len(); i++ {
		var sum float64
		ok := true
		for j := i - period + 1; j <= i; j++ {
			v, valid := src.At(j)
			if !valid {
				ok = false
				break
			}
			sum += v
		}
		if ok {
			s.set(i, sum/float64(period))
		}
	}
	return s
}

// Bollinger computes Bollinger Bands: middle = SMA(period), upper/lower =
// middle ± numStd × rolling population standard deviation.
func Bollinger(values []float64, period int, numStd float64) (upper, middle, lower Series) {
	middle = SMA(values, period)
	upper = NewSeries(len(values))
	lower = NewSeries(len(values))

	for i := period - 1; i < len(values); i++ {
		m, ok := middle.At(i)
		if !ok {
			continue
		}
		var sumSq float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - m
			sumSq += d * d
		}
		std := math.Sqrt(sumSq / float64(period))
		upper.set(i, m+numStd*std)
		lower.set(i, m-numStd*std)
	}
	return upper, middle, lower
}

// ATR computes the Wilder-smoothed average true range, where true range is
// max(high−low, |high−prevClose|, |low−prevClose|). The first valid position
// is index period.
func ATR(bars []domain.Bar, period int) Series {
	s := NewSeries(len(bars))
	if period <= 0 || len(bars) < period+1 {
		return s
	}

	tr := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	var atr float64
	for i := 1; i <= period; i++ {
		atr += tr[i]
	}
	atr /= float64(period)
	s.set(period, atr)

	for i := period + 1; i < len(bars); i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
		s.set(i, atr)
	}
	return s
}

// Stochastic computes the stochastic oscillator: %K = 100 × (close −
// lowestLow(period)) / (highestHigh(period) − lowestLow(period)), %D =
// SMA(smooth) of %K. A flat window (highest == lowest) leaves %K unavailable.
func Stochastic(bars []domain.Bar, period, smooth int) (k, d Series) {
	k = NewSeries(len(bars))
	if period <= 0 || len(bars) < period {
		d = smaOfSeries(k, smooth)
		return k, d
	}

	for i := period - 1; i < len(bars); i++ {
		hh := bars[i-period+1].High
		ll := bars[i-period+1].Low
		for j := i - period + 2; j <= i; j++ {
			hh = math.Max(hh, bars[j].High)
			ll = math.Min(ll, bars[j].Low)
		}
		if hh == ll {
			continue
		}
		k.set(i, 100*(bars[i].Close-ll)/(hh-ll))
	}
	d = smaOfSeries(k, smooth)
	return k, d
}
