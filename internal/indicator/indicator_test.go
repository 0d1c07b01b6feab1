package indicator

import (
	"math"
	"testing"
	"time"

	"backlab/internal/domain"
)

func barsFromCloses(closes []float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMAWarmupAndValue(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6}
	s := SMA(values, 3)

	for i := 0; i < 2; i++ {
		if _, ok := s.At(i); ok {
			t.Errorf("SMA(3) index %d should be unavailable during warm-up", i)
		}
	}
	v, ok := s.At(2)
	if !ok {
		t.Fatal("SMA(3) index 2 should be available")
	}
	if !almostEqual(v, 2) {
		t.Errorf("SMA(3)[2] = %v, want 2 (mean of 1,2,3)", v)
	}
	v, _ = s.At(5)
	if !almostEqual(v, 5) {
		t.Errorf("SMA(3)[5] = %v, want 5 (mean of 4,5,6)", v)
	}
}

func TestSMAInsufficientData(t *testing.T) {
	s := SMA([]float64{1, 2}, 5)
	if s.FirstValid() != -1 {
		t.Error("SMA over short input should have no valid positions")
	}
}

func TestEMASeededBySMA(t *testing.T) {
	values := []float64{2, 4, 6, 8, 10}
	s := EMA(values, 3)

	if _, ok := s.At(1); ok {
		t.Error("EMA(3) index 1 should be unavailable before the seed bar")
	}
	seed, ok := s.At(2)
	if !ok {
		t.Fatal("EMA(3) index 2 (seed bar) should be available")
	}
	if !almostEqual(seed, 4) {
		t.Errorf("EMA(3) seed = %v, want 4 (SMA of 2,4,6)", seed)
	}

	// Next value: (8-4)*0.5 + 4 = 6 with k = 2/(3+1).
	v, _ := s.At(3)
	if !almostEqual(v, 6) {
		t.Errorf("EMA(3)[3] = %v, want 6", v)
	}
}

func TestRSIZeroAverageLoss(t *testing.T) {
	// Strictly rising prices: no losses, RSI must be 100, not a division error.
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	s := RSI(values, 3)

	if _, ok := s.At(2); ok {
		t.Error("RSI(3) index 2 should be unavailable")
	}
	v, ok := s.At(3)
	if !ok {
		t.Fatal("RSI(3) index 3 should be available")
	}
	if v != 100 {
		t.Errorf("RSI on rising series = %v, want 100", v)
	}
}

func TestRSIMidpoint(t *testing.T) {
	// Alternating equal-size gains and losses give RSI near 50.
	values := []float64{10, 11, 10, 11, 10, 11, 10, 11, 10, 11}
	s := RSI(values, 4)
	v, ok := s.At(9)
	if !ok {
		t.Fatal("RSI(4) final index should be available")
	}
	if v < 40 || v > 60 {
		t.Errorf("RSI on alternating series = %v, want near 50", v)
	}
}

func TestMACDLineAndSignal(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100 + float64(i)
	}
	line, sig := MACD(values, 3, 6, 4)

	if _, ok := line.At(4); ok {
		t.Error("MACD line should be unavailable before the slow EMA warms up")
	}
	if line.FirstValid() != 5 {
		t.Errorf("MACD line first valid = %d, want 5 (slow period 6)", line.FirstValid())
	}
	if sig.FirstValid() != 8 {
		t.Errorf("MACD signal first valid = %d, want 8 (5 + signal 4 - 1)", sig.FirstValid())
	}

	// Cross-check the line against the two EMAs directly.
	fast := EMA(values, 3)
	slow := EMA(values, 6)
	f, _ := fast.At(20)
	s, _ := slow.At(20)
	got, _ := line.At(20)
	if !almostEqual(got, f-s) {
		t.Errorf("MACD[20] = %v, want EMA(3)-EMA(6) = %v", got, f-s)
	}
}

func TestKeyDerivedFromParams(t *testing.T) {
	def := domain.IndicatorRef{Kind: domain.IndicatorMACD}
	custom := domain.IndicatorRef{
		Kind:   domain.IndicatorMACD,
		Params: domain.IndicatorParams{Fast: 5, Slow: 35, Signal: 5},
	}

	if got := Key(def); got != "macd_12_26_9" {
		t.Errorf("default MACD key = %q, want macd_12_26_9", got)
	}
	if got := Key(custom); got != "macd_5_35_5" {
		t.Errorf("custom MACD key = %q, want macd_5_35_5", got)
	}
	if got := MACDSignalKey(custom); got != "macd_signal_5_35_5" {
		t.Errorf("custom MACD signal key = %q, want macd_signal_5_35_5", got)
	}
	if Key(def) == Key(custom) {
		t.Error("different MACD parameters must not share a cache key")
	}
}

func TestBollingerBands(t *testing.T) {
	values := []float64{10, 12, 14, 12, 10, 12, 14}
	upper, middle, lower := Bollinger(values, 5, 2)

	m, ok := middle.At(4)
	if !ok {
		t.Fatal("middle band index 4 should be available")
	}
	if !almostEqual(m, 11.6) {
		t.Errorf("middle[4] = %v, want 11.6", m)
	}

	u, _ := upper.At(4)
	l, _ := lower.At(4)
	if !almostEqual(u-m, m-l) {
		t.Errorf("bands not symmetric: upper-middle=%v middle-lower=%v", u-m, m-l)
	}
	if u <= m || l >= m {
		t.Error("upper band must be above middle and lower below")
	}
}

func TestATRConstantRange(t *testing.T) {
	// Bars with identical range and no gaps: ATR equals that range.
	bars := make([]domain.Bar, 10)
	for i := range bars {
		bars[i] = domain.Bar{High: 105, Low: 100, Close: 102}
	}
	s := ATR(bars, 4)

	if _, ok := s.At(3); ok {
		t.Error("ATR(4) index 3 should be unavailable")
	}
	v, ok := s.At(4)
	if !ok {
		t.Fatal("ATR(4) index 4 should be available")
	}
	if !almostEqual(v, 5) {
		t.Errorf("ATR on constant-range bars = %v, want 5", v)
	}
}

func TestStochasticAtExtremes(t *testing.T) {
	closes := []float64{10, 11, 12, 13, 14, 15}
	bars := barsFromCloses(closes)
	k, _ := Stochastic(bars, 3, 2)

	// Close is below each bar's high (high = close*1.01), so %K < 100 but
	// should sit near the top of the window on a rising series.
	v, ok := k.At(5)
	if !ok {
		t.Fatal("%K final index should be available")
	}
	if v < 80 || v > 100 {
		t.Errorf("%%K on rising series = %v, want in [80,100]", v)
	}
}

func TestStochasticFlatWindowUnavailable(t *testing.T) {
	bars := make([]domain.Bar, 6)
	for i := range bars {
		bars[i] = domain.Bar{High: 100, Low: 100, Close: 100}
	}
	k, d := Stochastic(bars, 3, 2)
	if k.FirstValid() != -1 {
		t.Error("%K over a flat window should be unavailable, not zero or NaN")
	}
	if d.FirstValid() != -1 {
		t.Error("%D over a flat window should be unavailable")
	}
}

func TestSetCachesPerReference(t *testing.T) {
	bars := barsFromCloses([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	set := NewSet(bars)

	ref := domain.IndicatorRef{Kind: domain.IndicatorSMA, Params: domain.IndicatorParams{Period: 3}}
	first, err := set.Get(ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := set.Get(ref)
	if err != nil {
		t.Fatalf("Get (cached): %v", err)
	}
	v1, _ := first.At(5)
	v2, _ := second.At(5)
	if v1 != v2 {
		t.Errorf("cached series differs: %v vs %v", v1, v2)
	}

	if _, err := set.Get(domain.IndicatorRef{Kind: "vwap"}); err == nil {
		t.Error("unknown indicator kind should return an error")
	}
}

func TestSetMACDSignalRequiresMACD(t *testing.T) {
	set := NewSet(barsFromCloses([]float64{1, 2, 3}))
	if _, err := set.MACDSignal(domain.IndicatorRef{Kind: domain.IndicatorSMA}); err == nil {
		t.Error("MACDSignal on a non-MACD reference should fail")
	}
}

func TestWarmup(t *testing.T) {
	cases := []struct {
		ref  domain.IndicatorRef
		want int
	}{
		{domain.IndicatorRef{Kind: domain.IndicatorSMA, Params: domain.IndicatorParams{Period: 20}}, 20},
		{domain.IndicatorRef{Kind: domain.IndicatorEMA, Params: domain.IndicatorParams{Period: 10}}, 10},
		{domain.IndicatorRef{Kind: domain.IndicatorRSI, Params: domain.IndicatorParams{Period: 14}}, 15},
		{domain.IndicatorRef{Kind: domain.IndicatorMACD, Params: domain.IndicatorParams{Fast: 12, Slow: 26, Signal: 9}}, 26},
		{domain.IndicatorRef{Kind: domain.IndicatorATR, Params: domain.IndicatorParams{Period: 14}}, 15},
		{domain.IndicatorRef{Kind: domain.IndicatorStochastic, Params: domain.IndicatorParams{Period: 14, Smooth: 3}}, 14},
	}
	for _, tc := range cases {
		if got := Warmup(tc.ref); got != tc.want {
			t.Errorf("Warmup(%s) = %d, want %d", tc.ref.Kind, got, tc.want)
		}
	}

	macd := domain.IndicatorRef{Kind: domain.IndicatorMACD, Params: domain.IndicatorParams{Fast: 12, Slow: 26, Signal: 9}}
	if got := MACDSignalWarmup(macd); got != 34 {
		t.Errorf("MACDSignalWarmup = %d, want 34", got)
	}
}
