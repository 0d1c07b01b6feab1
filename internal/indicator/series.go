// Package indicator computes derived series (SMA, EMA, RSI, MACD, Bollinger
// Bands, ATR, Stochastic) from raw price bars. All functions are pure; each
// output series is aligned index-for-index with its input and carries an
// explicit per-index validity flag for warm-up positions.
package indicator

// Series is a derived sequence aligned with a bar series. Positions inside
// an indicator's warm-up window are marked unavailable rather than holding a
// silent zero or NaN.
type Series struct {
	values []float64
	valid  []bool
}

// NewSeries creates a Series of length n with every position unavailable.
func NewSeries(n int) Series {
	return Series{
		values: make([]float64, n),
		valid:  make([]bool, n),
	}
}

// Len returns the number of positions in the series.
func (s Series) Len() int {
	return len(s.values)
}

// At returns the value at index i and whether it is available. Out-of-range
// indices are reported as unavailable.
func (s Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s.values) {
		return 0, false
	}
	return s.values[i], s.valid[i]
}

// FirstValid returns the index of the first available value, or -1 if the
// series has none.
func (s Series) FirstValid() int {
	for i, ok := range s.valid {
		if ok {
			return i
		}
	}
	return -1
}

func (s Series) set(i int, v float64) {
	s.values[i] = v
	s.valid[i] = true
}
