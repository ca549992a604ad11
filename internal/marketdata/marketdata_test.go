package marketdata

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantedge/matchcore/internal/matching"
	"github.com/quantedge/matchcore/internal/orderbook"
)

type fakeSink struct {
	mu        sync.Mutex
	snapshots int
	tickers   int
	bidPrices []float64
}

func (f *fakeSink) SendSnapshot(symbol string, bids, asks []orderbook.DepthLevel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	if len(bids) > 0 {
		f.bidPrices = append(f.bidPrices, bids[0].Price)
	} else {
		f.bidPrices = append(f.bidPrices, 0)
	}
}

func (f *fakeSink) SendTicker(trade matching.TradeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickers++
}

func (f *fakeSink) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots, f.tickers
}

func (f *fakeSink) bidHistory() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.bidPrices))
	copy(out, f.bidPrices)
	return out
}

func TestSubscribeSendsImmediateSnapshot(t *testing.T) {
	engine := matching.NewEngine(nil, matching.Hooks{})
	pub, err := NewPublisher(engine, nil, 2, 50*time.Millisecond)
	require.NoError(t, err)
	defer pub.Close()

	sink := &fakeSink{}
	pub.Subscribe("AAPL", sink)

	snaps, _ := sink.counts()
	assert.Equal(t, 1, snaps)
}

func TestOnBookMutatedFansOutToSubscribers(t *testing.T) {
	engine := matching.NewEngine(nil, matching.Hooks{})
	pub, err := NewPublisher(engine, nil, 2, 50*time.Millisecond)
	require.NoError(t, err)
	defer pub.Close()

	sink := &fakeSink{}
	pub.Subscribe("AAPL", sink)

	engine.Submit(matching.SubmitRequest{ClientOrderID: 1, SessionID: 1, Symbol: "AAPL", Side: orderbook.Buy, Type: orderbook.Limit, Price: 100, Quantity: 5})
	pub.OnBookMutated("AAPL")

	assert.Eventually(t, func() bool {
		snaps, _ := sink.counts()
		return snaps >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestUnsubscribeStopsFanOut(t *testing.T) {
	engine := matching.NewEngine(nil, matching.Hooks{})
	pub, err := NewPublisher(engine, nil, 2, 50*time.Millisecond)
	require.NoError(t, err)
	defer pub.Close()

	sink := &fakeSink{}
	pub.Subscribe("AAPL", sink)
	pub.Unsubscribe("AAPL", sink)

	pub.OnBookMutated("AAPL")
	time.Sleep(20 * time.Millisecond)

	snaps, _ := sink.counts()
	assert.Equal(t, 1, snaps, "only the subscribe-time snapshot should have been delivered")
}

func TestQueryBypassesSubscriptions(t *testing.T) {
	engine := matching.NewEngine(nil, matching.Hooks{})
	pub, err := NewPublisher(engine, nil, 2, 50*time.Millisecond)
	require.NoError(t, err)
	defer pub.Close()

	engine.Submit(matching.SubmitRequest{ClientOrderID: 1, SessionID: 1, Symbol: "AAPL", Side: orderbook.Sell, Type: orderbook.Limit, Price: 150, Quantity: 10})

	bids, asks := pub.Query("AAPL")
	assert.Empty(t, bids)
	require.Len(t, asks, 1)
	assert.Equal(t, 150.0, asks[0].Price)
}

func TestOnBookMutatedDeliversInMutationOrderPerSymbol(t *testing.T) {
	engine := matching.NewEngine(nil, matching.Hooks{})
	pub, err := NewPublisher(engine, nil, 4, 50*time.Millisecond)
	require.NoError(t, err)
	defer pub.Close()

	sink := &fakeSink{}
	pub.Subscribe("AAPL", sink)

	// Each submit raises the best bid strictly, so the Nth mutation's
	// snapshot is identifiable by its bid price — if the pool ever
	// reordered per-mutation tasks for the same symbol, some later, lower
	// price would be observed after a higher one.
	const rounds = 20
	for i := 1; i <= rounds; i++ {
		price := float64(100 + i)
		engine.Submit(matching.SubmitRequest{
			ClientOrderID: uint64(i), SessionID: 1, Symbol: "AAPL",
			Side: orderbook.Buy, Type: orderbook.Limit, Price: price, Quantity: 1,
		})
		pub.OnBookMutated("AAPL")
	}

	require.Eventually(t, func() bool {
		snaps, _ := sink.counts()
		return snaps >= rounds+1 // +1 for the immediate Subscribe snapshot
	}, 2*time.Second, 5*time.Millisecond)

	history := sink.bidHistory()
	require.Len(t, history, rounds+1)
	for i := 1; i < len(history); i++ {
		assert.GreaterOrEqual(t, history[i], history[i-1], "snapshots must arrive in non-decreasing mutation order")
	}
}

func TestOnTradeFansTickerOut(t *testing.T) {
	engine := matching.NewEngine(nil, matching.Hooks{})
	pub, err := NewPublisher(engine, nil, 2, 50*time.Millisecond)
	require.NoError(t, err)
	defer pub.Close()

	sink := &fakeSink{}
	pub.Subscribe("AAPL", sink)

	pub.OnTrade(matching.TradeEvent{Symbol: "AAPL", Price: 150, Quantity: 10})

	assert.Eventually(t, func() bool {
		_, tickers := sink.counts()
		return tickers == 1
	}, time.Second, 5*time.Millisecond)
}
