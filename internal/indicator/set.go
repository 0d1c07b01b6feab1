package indicator

import (
	"fmt"
	"strconv"

	"backlab/internal/domain"
)

// Default parameters applied when a rule omits them. These mirror the
// conventional settings for each indicator.
const (
	DefaultSMAPeriod   = 20
	DefaultEMAPeriod   = 20
	DefaultRSIPeriod   = 14
	DefaultMACDFast    = 12
	DefaultMACDSlow    = 26
	DefaultMACDSignal  = 9
	DefaultBBPeriod    = 20
	DefaultBBNumStd    = 2.0
	DefaultATRPeriod   = 14
	DefaultStochPeriod = 14
	DefaultStochSmooth = 3
)

// Normalize returns a copy of ref with default parameters filled in for any
// that were left zero.
func Normalize(ref domain.IndicatorRef) domain.IndicatorRef {
	p := &ref.Params
	switch ref.Kind {
	case domain.IndicatorSMA:
		if p.Period == 0 {
			p.Period = DefaultSMAPeriod
		}
	case domain.IndicatorEMA:
		if p.Period == 0 {
			p.Period = DefaultEMAPeriod
		}
	case domain.IndicatorRSI:
		if p.Period == 0 {
			p.Period = DefaultRSIPeriod
		}
	case domain.IndicatorMACD:
		if p.Fast == 0 {
			p.Fast = DefaultMACDFast
		}
		if p.Slow == 0 {
			p.Slow = DefaultMACDSlow
		}
		if p.Signal == 0 {
			p.Signal = DefaultMACDSignal
		}
	case domain.IndicatorBBands:
		if p.Period == 0 {
			p.Period = DefaultBBPeriod
		}
		if p.NumStd == 0 {
			p.NumStd = DefaultBBNumStd
		}
	case domain.IndicatorATR:
		if p.Period == 0 {
			p.Period = DefaultATRPeriod
		}
	case domain.IndicatorStochastic:
		if p.Period == 0 {
			p.Period = DefaultStochPeriod
		}
		if p.Smooth == 0 {
			p.Smooth = DefaultStochSmooth
		}
	}
	return ref
}

// Key returns the cache identifier for an indicator's primary series. The
// key is always derived from the actual parameters supplied (after default
// filling), never from a hardcoded parameter set.
func Key(ref domain.IndicatorRef) string {
	ref = Normalize(ref)
	p := ref.Params
	switch ref.Kind {
	case domain.IndicatorMACD:
		return fmt.Sprintf("macd_%d_%d_%d", p.Fast, p.Slow, p.Signal)
	case domain.IndicatorBBands:
		return fmt.Sprintf("bbands_middle_%d_%s", p.Period, formatStd(p.NumStd))
	case domain.IndicatorStochastic:
		return fmt.Sprintf("stoch_k_%d_%d", p.Period, p.Smooth)
	default:
		return fmt.Sprintf("%s_%d", ref.Kind, p.Period)
	}
}

// MACDSignalKey returns the cache identifier for the signal line of a MACD
// reference.
func MACDSignalKey(ref domain.IndicatorRef) string {
	ref = Normalize(ref)
	p := ref.Params
	return fmt.Sprintf("macd_signal_%d_%d_%d", p.Fast, p.Slow, p.Signal)
}

func formatStd(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Warmup returns the number of bars required before the indicator's primary
// series produces its first available value.
func Warmup(ref domain.IndicatorRef) int {
	ref = Normalize(ref)
	p := ref.Params
	switch ref.Kind {
	case domain.IndicatorSMA, domain.IndicatorEMA, domain.IndicatorBBands:
		return p.Period
	case domain.IndicatorRSI, domain.IndicatorATR:
		return p.Period + 1
	case domain.IndicatorMACD:
		return p.Slow
	case domain.IndicatorStochastic:
		return p.Period
	default:
		return 0
	}
}

// MACDSignalWarmup returns the number of bars required before a MACD
// reference's signal line produces its first available value.
func MACDSignalWarmup(ref domain.IndicatorRef) int {
	ref = Normalize(ref)
	p := ref.Params
	return p.Slow + p.Signal - 1
}

// Set is a per-run cache of computed indicator series, keyed by indicator
// kind and parameters. A Set is owned by exactly one backtest run, populated
// once per distinct reference, and never shared across runs.
type Set struct {
	bars   []domain.Bar
	closes []float64
	series map[string]Series
}

// NewSet creates an empty Set over the given bars.
func NewSet(bars []domain.Bar) *Set {
	return &Set{
		bars:   bars,
		closes: Closes(bars),
		series: make(map[string]Series),
	}
}

// Get returns the primary series for ref, computing and caching it (and any
// sibling outputs, such as the MACD signal line or the Bollinger upper and
// lower bands) on first use.
func (s *Set) Get(ref domain.IndicatorRef) (Series, error) {
	ref = Normalize(ref)
	key := Key(ref)
	if cached, ok := s.series[key]; ok {
		return cached, nil
	}
	if err := s.compute(ref); err != nil {
		return Series{}, err
	}
	return s.series[key], nil
}

// MACDSignal returns the signal-line series for a MACD reference.
func (s *Set) MACDSignal(ref domain.IndicatorRef) (Series, error) {
	if ref.Kind != domain.IndicatorMACD {
		return Series{}, fmt.Errorf("signal line requested for %q indicator", ref.Kind)
	}
	ref = Normalize(ref)
	key := MACDSignalKey(ref)
	if cached, ok := s.series[key]; ok {
		return cached, nil
	}
	if err := s.compute(ref); err != nil {
		return Series{}, err
	}
	return s.series[key], nil
}

func (s *Set) compute(ref domain.IndicatorRef) error {
	p := ref.Params
	switch ref.Kind {
	case domain.IndicatorSMA:
		s.series[Key(ref)] = SMA(s.closes, p.Period)
	case domain.IndicatorEMA:
		s.series[Key(ref)] = EMA(s.closes, p.Period)
	case domain.IndicatorRSI:
		s.series[Key(ref)] = RSI(s.closes, p.Period)
	case domain.IndicatorMACD:
		line, sig := MACD(s.closes, p.Fast, p.Slow, p.Signal)
		s.series[Key(ref)] = line
		s.series[MACDSignalKey(ref)] = sig
	case domain.IndicatorBBands:
		upper, middle, lower := Bollinger(s.closes, p.Period, p.NumStd)
		std := formatStd(p.NumStd)
		s.series[fmt.Sprintf("bbands_upper_%d_%s", p.Period, std)] = upper
		s.series[fmt.Sprintf("bbands_middle_%d_%s", p.Period, std)] = middle
		s.series[fmt.Sprintf("bbands_lower_%d_%s", p.Period, std)] = lower
	case domain.IndicatorATR:
		s.series[Key(ref)] = ATR(s.bars, p.Period)
	case domain.IndicatorStochastic:
		k, d := Stochastic(s.bars, p.Period, p.Smooth)
		s.series[fmt.Sprintf("stoch_k_%d_%d", p.Period, p.Smooth)] = k
		s.series[fmt.Sprintf("stoch_d_%d_%d", p.Period, p.Smooth)] = d
	default:
		return fmt.Errorf("unknown indicator %q", ref.Kind)
	}
	return nil
}
