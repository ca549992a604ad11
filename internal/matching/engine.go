// Package matching implements the cross-book routing, execution-report
// generation, and order-id registry of C4, driving the price-time-priority
// algorithm of spec §4.3 over the C3 order books.
//
// The match loop is grounded on the teacher's
// internal/orders/matching/engine_processors.go processOrder/matchOrders
// pair, generalized from that file's per-order container/heap priority
// queue to the FIFO-level orderbook.Book so that same-price orders match
// in strict arrival order (spec invariant 1) and cancellation stays O(1)
// (spec Design Note 9).
package matching

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/quantedge/matchcore/internal/orderbook"
	"github.com/quantedge/matchcore/pkg/errors"
)

// Execution is the immutable record described in spec §3, addressed to the
// session that should receive it.
type Execution struct {
	ExecutionID              uint64
	EngineOrderID            uint64
	ClientOrderID            uint64
	SessionID                uint64
	Symbol                   string
	Side                     orderbook.Side
	Price                    float64
	OriginalQuantity         uint64
	FilledQuantityCumulative uint64
	Status                   orderbook.Status
}

// TradeEvent is published once per match (not once per execution report —
// a single trade produces two Executions, one per side, but one TradeEvent).
type TradeEvent struct {
	Symbol        string
	Price         float64
	Quantity      uint64
	TimestampNS   uint64
	AggressorSide orderbook.Side
}

// SubmitRequest is a validated new-order request routed in from C2.
type SubmitRequest struct {
	ClientOrderID uint64
	SessionID     uint64
	Symbol        string
	Side          orderbook.Side
	Type          orderbook.Type
	Price         float64
	Quantity      uint64
}

// Hooks lets callers (market-data publisher, event publisher, analytics)
// observe engine activity without the engine importing any of them —
// generalizes the teacher's triggerCallbacks/orderBookCallbacks map in
// internal/matching/unified_engine.go into a fixed set of explicit,
// single-purpose hooks rather than a dynamic per-symbol subscriber
// registry (that registry lives in internal/marketdata, one layer up).
type Hooks struct {
	OnBookMutated   func(symbol string)
	OnTrade         func(TradeEvent)
	OnExecution     func(Execution)
	OnSubmit        func(req SubmitRequest)
	OnSubmitLatency func(time.Duration)
}

type registryEntry struct {
	handle orderbook.Handle
	order  *orderbook.Order
	symbol string
}

// Engine owns every book in the process and serializes all mutations
// through a single mutex — model 2 of spec §5 (thread-per-session I/O,
// one engine mutex).
type Engine struct {
	mu       sync.Mutex
	books    map[string]*orderbook.Book
	registry map[uint64]*registryEntry

	nextOrderID uint64
	nextExecID  uint64

	logger *zap.Logger
	hooks  Hooks

	now func() time.Time // overridable for tests
}

// NewEngine constructs an Engine. hooks' fields may be nil.
func NewEngine(logger *zap.Logger, hooks Hooks) *Engine {
	return &Engine{
		books:    make(map[string]*orderbook.Book),
		registry: make(map[uint64]*registryEntry),
		logger:   logger,
		hooks:    hooks,
		now:      time.Now,
	}
}

func (e *Engine) bookFor(symbol string) *orderbook.Book {
	b, ok := e.books[symbol]
	if !ok {
		b = orderbook.New(symbol)
		e.books[symbol] = b
	}
	return b
}

func (e *Engine) emit(exec Execution) Execution {
	if e.hooks.OnExecution != nil {
		e.hooks.OnExecution(exec)
	}
	return exec
}

// Submit assigns an engine_order_id, runs the match loop, inserts any
// limit residual into the book, and returns every execution report
// generated along the way (spec §4.3).
func (e *Engine) Submit(req SubmitRequest) []Execution {
	start := e.now()
	defer func() {
		if e.hooks.OnSubmitLatency != nil {
			e.hooks.OnSubmitLatency(e.now().Sub(start))
		}
	}()

	if req.Quantity == 0 || (req.Type == orderbook.Limit && req.Price <= 0) {
		return []Execution{e.emit(Execution{
			ExecutionID:   atomic.AddUint64(&e.nextExecID, 1),
			ClientOrderID: req.ClientOrderID,
			SessionID:     req.SessionID,
			Symbol:        req.Symbol,
			Side:          req.Side,
			Price:         req.Price,
			Status:        orderbook.StatusRejected,
		})}
	}

	if e.hooks.OnSubmit != nil {
		e.hooks.OnSubmit(req)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	book := e.bookFor(req.Symbol)
	aggressor := &orderbook.Order{
		EngineOrderID: atomic.AddUint64(&e.nextOrderID, 1),
		ClientOrderID: req.ClientOrderID,
		SessionID:     req.SessionID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		OriginalQty:   req.Quantity,
	}

	var executions []Execution
	mutated := false
	opposite := req.Side.Opposite()

	for aggressor.Remaining() > 0 {
		best := book.Best(opposite)
		if best == nil {
			break
		}
		if !crosses(req.Type, req.Side, req.Price, best.Price) {
			break
		}

		front := best.Orders.Front()
		resting := front.Value.(*orderbook.Order)

		tradeQty := aggressor.Remaining()
		if resting.Remaining() < tradeQty {
			tradeQty = resting.Remaining()
		}
		tradePrice := resting.Price

		resting.FilledQty += tradeQty
		aggressor.FilledQty += tradeQty
		book.ReduceTop(opposite, best, tradeQty)
		mutated = true

		restingStatus := orderbook.StatusPartial
		if resting.Remaining() == 0 {
			restingStatus = orderbook.StatusFilled
		}
		executions = append(executions, e.emit(Execution{
			ExecutionID:              atomic.AddUint64(&e.nextExecID, 1),
			EngineOrderID:            resting.EngineOrderID,
			ClientOrderID:            resting.ClientOrderID,
			SessionID:                resting.SessionID,
			Symbol:                   req.Symbol,
			Side:                     resting.Side,
			Price:                    tradePrice,
			OriginalQuantity:         resting.OriginalQty,
			FilledQuantityCumulative: resting.FilledQty,
			Status:                   restingStatus,
		}))

		if resting.Remaining() == 0 {
			delete(e.registry, resting.EngineOrderID)
		}

		aggressorStatus := orderbook.StatusPartial
		if aggressor.Remaining() == 0 {
			aggressorStatus = orderbook.StatusFilled
		}
		executions = append(executions, e.emit(Execution{
			ExecutionID:              atomic.AddUint64(&e.nextExecID, 1),
			EngineOrderID:            aggressor.EngineOrderID,
			ClientOrderID:            aggressor.ClientOrderID,
			SessionID:                aggressor.SessionID,
			Symbol:                   req.Symbol,
			Side:                     aggressor.Side,
			Price:                    tradePrice,
			OriginalQuantity:         aggressor.OriginalQty,
			FilledQuantityCumulative: aggressor.FilledQty,
			Status:                   aggressorStatus,
		}))

		if e.hooks.OnTrade != nil {
			e.hooks.OnTrade(TradeEvent{
				Symbol:        req.Symbol,
				Price:         tradePrice,
				Quantity:      tradeQty,
				TimestampNS:   uint64(e.now().UnixNano()),
				AggressorSide: req.Side,
			})
		}
	}

	if aggressor.Remaining() > 0 {
		switch req.Type {
		case orderbook.Limit:
			status := orderbook.StatusNew
			if aggressor.FilledQty > 0 {
				status = orderbook.StatusPartial
			}
			aggressor.Status = status
			h := book.Insert(aggressor)
			e.registry[aggressor.EngineOrderID] = &registryEntry{handle: h, order: aggressor, symbol: req.Symbol}
			mutated = true
			executions = append(executions, e.emit(Execution{
				ExecutionID:              atomic.AddUint64(&e.nextExecID, 1),
				EngineOrderID:            aggressor.EngineOrderID,
				ClientOrderID:            aggressor.ClientOrderID,
				SessionID:                aggressor.SessionID,
				Symbol:                   req.Symbol,
				Side:                     aggressor.Side,
				Price:                    aggressor.Price,
				OriginalQuantity:         aggressor.OriginalQty,
				FilledQuantityCumulative: aggressor.FilledQty,
				Status:                   status,
			}))
		case orderbook.Market:
			executions = append(executions, e.emit(Execution{
				ExecutionID:              atomic.AddUint64(&e.nextExecID, 1),
				EngineOrderID:            aggressor.EngineOrderID,
				ClientOrderID:            aggressor.ClientOrderID,
				SessionID:                aggressor.SessionID,
				Symbol:                   req.Symbol,
				Side:                     aggressor.Side,
				Price:                    aggressor.Price,
				OriginalQuantity:         aggressor.OriginalQty,
				FilledQuantityCumulative: aggressor.FilledQty,
				Status:                   orderbook.StatusCancelled,
			}))
		}
	}

	if mutated && e.hooks.OnBookMutated != nil {
		e.hooks.OnBookMutated(req.Symbol)
	}

	assertNotCrossed(book)

	return executions
}

// crosses implements the cross-check of spec §4.3 step 2b.
func crosses(orderType orderbook.Type, side orderbook.Side, price float64, bestOppositePrice float64) bool {
	if orderType == orderbook.Market {
		return true
	}
	if side == orderbook.Buy {
		return price >= bestOppositePrice
	}
	return price <= bestOppositePrice
}

// assertNotCrossed is a defensive check for spec invariant 2: a process
// abort (not a user-reachable error) if a bug leaves the book crossed at
// rest — a book can only legally be crossed transiently, inside the match
// loop above.
func assertNotCrossed(book *orderbook.Book) {
	bid, hasBid := book.BestBidPrice()
	ask, hasAsk := book.BestAskPrice()
	if hasBid && hasAsk && bid >= ask {
		panic(errors.Newf(errors.ErrInternalInvariant, "book %s crossed at rest: bid=%v ask=%v", book.Symbol, bid, ask))
	}
}

// Cancel removes a resting order from its book (spec §4.3). If the id is
// unknown, or known under a different symbol/side, it is a not-found error
// per spec §7: the returned Execution carries status REJECTED and engine
// state is left untouched.
func (e *Engine) Cancel(engineOrderID uint64, symbol string, side orderbook.Side) Execution {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.registry[engineOrderID]
	if !ok || entry.symbol != symbol || entry.order.Side != side {
		return e.emit(Execution{
			ExecutionID:   atomic.AddUint64(&e.nextExecID, 1),
			EngineOrderID: engineOrderID,
			Symbol:        symbol,
			Side:          side,
			Status:        orderbook.StatusRejected,
		})
	}

	book := e.bookFor(symbol)
	book.Remove(entry.handle)
	delete(e.registry, engineOrderID)

	if e.hooks.OnBookMutated != nil {
		e.hooks.OnBookMutated(symbol)
	}

	return e.emit(Execution{
		ExecutionID:              atomic.AddUint64(&e.nextExecID, 1),
		EngineOrderID:            engineOrderID,
		ClientOrderID:            entry.order.ClientOrderID,
		SessionID:                entry.order.SessionID,
		Symbol:                   symbol,
		Side:                     side,
		Price:                    entry.order.Price,
		OriginalQuantity:         entry.order.OriginalQty,
		FilledQuantityCumulative: entry.order.FilledQty,
		Status:                   orderbook.StatusCancelled,
	})
}

// DepthSnapshot is the top-N view of one symbol's book.
type DepthSnapshot struct {
	Symbol string
	Bids   []orderbook.DepthLevel
	Asks   []orderbook.DepthLevel
}

// Snapshot returns the top depth levels of both sides of symbol (spec
// §4.4: depth is 5 for wire snapshots, while the BookDepth metric in
// cmd/matchcore asks for every level via a larger depth).
func (e *Engine) Snapshot(symbol string, depth int) DepthSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	book, ok := e.books[symbol]
	if !ok {
		return DepthSnapshot{Symbol: symbol}
	}
	return DepthSnapshot{
		Symbol: symbol,
		Bids:   book.Depth(orderbook.Buy, depth),
		Asks:   book.Depth(orderbook.Sell, depth),
	}
}

// Symbols returns every symbol with a book, for the admin debug dump.
func (e *Engine) Symbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.books))
	for s := range e.books {
		out = append(out, s)
	}
	return out
}

// AllOrders returns every resting order on both sides of symbol's book,
// for the admin debug dump only.
func (e *Engine) AllOrders(symbol string) (bids, asks []*orderbook.Order) {
	e.mu.Lock()
	defer e.mu.Unlock()

	book, ok := e.books[symbol]
	if !ok {
		return nil, nil
	}
	return book.AllOrders(orderbook.Buy), book.AllOrders(orderbook.Sell)
}
