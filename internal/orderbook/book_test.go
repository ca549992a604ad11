package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertMaintainsPricePriorityAndFIFO(t *testing.T) {
	b := New("AAPL")

	o1 := &Order{EngineOrderID: 1, Side: Sell, Price: 150.10, OriginalQty: 10}
	o2 := &Order{EngineOrderID: 2, Side: Sell, Price: 150.00, OriginalQty: 10}
	o3 := &Order{EngineOrderID: 3, Side: Sell, Price: 150.00, OriginalQty: 5}

	b.Insert(o1)
	b.Insert(o2)
	b.Insert(o3)

	best := b.Best(Sell)
	require.NotNil(t, best)
	assert.Equal(t, 150.00, best.Price)
	assert.Equal(t, uint64(15), best.Quantity)

	front := best.Orders.Front().Value.(*Order)
	assert.Equal(t, uint64(2), front.EngineOrderID, "older order at the same price fills first")

	next := best.next
	require.NotNil(t, next)
	assert.Equal(t, 150.10, next.Price)
}

func TestBidsDescendingAsksAscending(t *testing.T) {
	b := New("AAPL")
	b.Insert(&Order{EngineOrderID: 1, Side: Buy, Price: 100, OriginalQty: 1})
	b.Insert(&Order{EngineOrderID: 2, Side: Buy, Price: 110, OriginalQty: 1})
	b.Insert(&Order{EngineOrderID: 3, Side: Buy, Price: 105, OriginalQty: 1})

	prices := []float64{}
	for lvl := b.Best(Buy); lvl != nil; lvl = lvl.next {
		prices = append(prices, lvl.Price)
	}
	assert.Equal(t, []float64{110, 105, 100}, prices)
}

func TestRemoveDropsEmptyLevel(t *testing.T) {
	b := New("AAPL")
	o := &Order{EngineOrderID: 1, Side: Buy, Price: 100, OriginalQty: 1}
	h := b.Insert(o)

	b.Remove(h)
	assert.Nil(t, b.Best(Buy))
	_, ok := b.bidIndex[100]
	assert.False(t, ok)
}

func TestDepthRespectsLimit(t *testing.T) {
	b := New("AAPL")
	for i := 0; i < 8; i++ {
		b.Insert(&Order{EngineOrderID: uint64(i), Side: Sell, Price: float64(150 + i), OriginalQty: 10})
	}
	depth := b.Depth(Sell, 5)
	assert.Len(t, depth, 5)
	assert.Equal(t, 150.0, depth[0].Price)
}

func TestReduceTopPopsFullyFilledOrder(t *testing.T) {
	b := New("AAPL")
	o := &Order{EngineOrderID: 1, Side: Sell, Price: 150, OriginalQty: 10}
	b.Insert(o)

	o.FilledQty = 10
	lvl := b.Best(Sell)
	b.ReduceTop(Sell, lvl, 10)

	assert.Nil(t, b.Best(Sell))
}
