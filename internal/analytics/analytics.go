// Package analytics tracks a rolling trade-price series per symbol and
// exposes a moving average and dispersion — metrics-only, never
// wire-visible, derived purely from matching.TradeEvent.
//
// The indicator plumbing is grounded on the teacher's
// internal/trading/market_data/timeframe/indicators.go
// IndicatorCalculator (talib.Sma over a candle window) and
// internal/strategy/optimized_statistical_arbitrage.go's
// stat.MeanStdDev call, combined here into one tracker per symbol rather
// than the teacher's per-strategy calculators.
package analytics

import (
	"sync"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

const windowSize = 64
const smaPeriod = 14

// Snapshot is the current analytics view for one symbol.
type Snapshot struct {
	Symbol   string
	SMA      float64
	Mean     float64
	StdDev   float64
	SampleSz int
}

// Tracker maintains a bounded rolling window of trade prices per symbol.
type Tracker struct {
	mu     sync.Mutex
	prices map[string][]float64
}

// NewTracker constructs an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{prices: make(map[string][]float64)}
}

// OnTrade records a trade price for symbol, wired as matching.Hooks.OnTrade
// (called with TradeEvent.Symbol/TradeEvent.Price, not the full struct, to
// keep this package independent of the matching package).
func (t *Tracker) OnTrade(symbol string, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	series := append(t.prices[symbol], price)
	if len(series) > windowSize {
		series = series[len(series)-windowSize:]
	}
	t.prices[symbol] = series
}

// Snapshot computes the current SMA and mean/stddev for symbol. SMA is
// zero until at least smaPeriod samples have been recorded.
func (t *Tracker) Snapshot(symbol string) Snapshot {
	t.mu.Lock()
	series := append([]float64(nil), t.prices[symbol]...)
	t.mu.Unlock()

	out := Snapshot{Symbol: symbol, SampleSz: len(series)}
	if len(series) == 0 {
		return out
	}

	out.Mean, out.StdDev = stat.MeanStdDev(series, nil)

	if len(series) >= smaPeriod {
		sma := talib.Sma(series, smaPeriod)
		out.SMA = sma[len(sma)-1]
	}
	return out
}
