// Package marketdata builds top-of-book snapshots and ticker prints and
// fans them out to subscribed sessions (C5). The bounded worker pool for
// fan-out generalizes the teacher's
// internal/architecture/fx/workerpool/worker_pool.go WorkerPoolFactory,
// pared down from that file's named-multi-pool/fx-provided shape to a
// single ants.Pool sized by configuration, since market-data fan-out is
// the only CPU-bound broadcast fan-out in this service. Snapshot caching
// follows the same bounded-TTL idea the teacher expresses with
// patrickmn/go-cache elsewhere in its resilience layer.
//
// Deliveries for a given symbol are run through a per-symbol serial queue
// (symbolDispatcher) rather than submitted to the pool independently:
// ants makes no ordering guarantee between tasks running on different
// pool workers, and two mutations to the same symbol arriving back to
// back (a trade followed immediately by its book-mutation callback, or
// two orders in quick succession) must still reach every subscriber in
// the order they occurred.
package marketdata

import (
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/quantedge/matchcore/internal/matching"
	"github.com/quantedge/matchcore/internal/orderbook"
)

// Sink is how the publisher hands a snapshot or ticker frame to one
// subscriber — implemented by internal/session.
type Sink interface {
	SendSnapshot(symbol string, bids, asks []orderbook.DepthLevel)
	SendTicker(trade matching.TradeEvent)
}

const wireDepth = 5

// Publisher tracks per-symbol subscriber sets and serializes fan-out
// through a bounded goroutine pool so a burst of trades on one symbol
// cannot starve others, while a per-symbol dispatcher keeps deliveries for
// that symbol strictly in mutation order.
type Publisher struct {
	engine *matching.Engine
	logger *zap.Logger
	pool   *ants.Pool
	cache  *cache.Cache

	mu          sync.RWMutex
	subscribers map[string]map[Sink]struct{}

	dispatchMu  sync.Mutex
	dispatchers map[string]*symbolDispatcher
}

// symbolDispatcher runs every delivery task for one symbol, one at a time,
// in the order they were enqueued — the serialization point that keeps
// same-symbol deliveries FIFO even though the actual send runs on the
// shared ants pool.
type symbolDispatcher struct {
	tasks chan func()
}

func newSymbolDispatcher(pool *ants.Pool, logger *zap.Logger, symbol string) *symbolDispatcher {
	d := &symbolDispatcher{tasks: make(chan func(), 256)}
	go d.run(pool, logger, symbol)
	return d
}

func (d *symbolDispatcher) run(pool *ants.Pool, logger *zap.Logger, symbol string) {
	for task := range d.tasks {
		done := make(chan struct{})
		t := task
		err := pool.Submit(func() {
			defer close(done)
			t()
		})
		if err != nil {
			if logger != nil {
				logger.Warn("marketdata fan-out dropped", zap.String("symbol", symbol), zap.Error(err))
			}
			continue
		}
		<-done
	}
}

// NewPublisher constructs a Publisher backed by a worker pool of poolSize
// goroutines and a snapshot cache with the given TTL.
func NewPublisher(engine *matching.Engine, logger *zap.Logger, poolSize int, snapshotTTL time.Duration) (*Publisher, error) {
	pool, err := ants.NewPool(poolSize, ants.WithPanicHandler(func(r interface{}) {
		if logger != nil {
			logger.Error("marketdata fan-out task panicked", zap.Any("panic", r))
		}
	}))
	if err != nil {
		return nil, err
	}
	return &Publisher{
		engine:      engine,
		logger:      logger,
		pool:        pool,
		cache:       cache.New(snapshotTTL, 2*snapshotTTL),
		subscribers: make(map[string]map[Sink]struct{}),
		dispatchers: make(map[string]*symbolDispatcher),
	}, nil
}

// Close releases the worker pool and stops every per-symbol dispatcher.
func (p *Publisher) Close() {
	p.dispatchMu.Lock()
	for _, d := range p.dispatchers {
		close(d.tasks)
	}
	p.dispatchMu.Unlock()
	p.pool.Release()
}

// dispatcherFor returns (creating if needed) the serial dispatcher for symbol.
func (p *Publisher) dispatcherFor(symbol string) *symbolDispatcher {
	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()
	d, ok := p.dispatchers[symbol]
	if !ok {
		d = newSymbolDispatcher(p.pool, p.logger, symbol)
		p.dispatchers[symbol] = d
	}
	return d
}

// enqueue hands task to symbol's serial dispatcher. Never blocks past a
// full queue indefinitely: a saturated dispatcher means that symbol's
// subscribers are falling badly behind, same as a full session outbound
// queue, so the task is dropped rather than stalling the caller (typically
// the engine mutex holder).
func (p *Publisher) enqueue(symbol string, task func()) {
	d := p.dispatcherFor(symbol)
	select {
	case d.tasks <- task:
	default:
		if p.logger != nil {
			p.logger.Warn("marketdata dispatch queue full, dropping update", zap.String("symbol", symbol))
		}
	}
}

// Subscribe adds sink to symbol's subscriber set and immediately sends it
// the current snapshot (spec §4.4: subscribing delivers an immediate
// snapshot, not just future tickers).
func (p *Publisher) Subscribe(symbol string, sink Sink) {
	p.mu.Lock()
	set, ok := p.subscribers[symbol]
	if !ok {
		set = make(map[Sink]struct{})
		p.subscribers[symbol] = set
	}
	set[sink] = struct{}{}
	p.mu.Unlock()

	bids, asks := p.snapshot(symbol)
	sink.SendSnapshot(symbol, bids, asks)
}

// Unsubscribe removes sink from symbol's subscriber set.
func (p *Publisher) Unsubscribe(symbol string, sink Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if set, ok := p.subscribers[symbol]; ok {
		delete(set, sink)
		if len(set) == 0 {
			delete(p.subscribers, symbol)
		}
	}
}

// UnsubscribeAll removes sink from every symbol — called on session close.
func (p *Publisher) UnsubscribeAll(sink Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for symbol, set := range p.subscribers {
		delete(set, sink)
		if len(set) == 0 {
			delete(p.subscribers, symbol)
		}
	}
}

// Query answers a one-shot pull ('M') directly, bypassing the
// subscription set entirely.
func (p *Publisher) Query(symbol string) (bids, asks []orderbook.DepthLevel) {
	return p.snapshot(symbol)
}

func (p *Publisher) snapshot(symbol string) (bids, asks []orderbook.DepthLevel) {
	if cached, ok := p.cache.Get(symbol); ok {
		dv := cached.(DepthView)
		return dv.Bids, dv.Asks
	}

	view := p.engine.Snapshot(symbol, wireDepth)
	p.cache.SetDefault(symbol, DepthView{Bids: view.Bids, Asks: view.Asks})
	return view.Bids, view.Asks
}

// DepthView is the cached (bids, asks) pair for one symbol.
type DepthView struct {
	Bids []orderbook.DepthLevel
	Asks []orderbook.DepthLevel
}

// OnBookMutated invalidates the cached snapshot and fans the fresh one out
// to every subscriber of symbol, in one task on that symbol's serial
// dispatcher so it cannot reorder against any other pending update for the
// same symbol. Wired as matching.Hooks.OnBookMutated.
func (p *Publisher) OnBookMutated(symbol string) {
	p.cache.Delete(symbol)
	bids, asks := p.snapshot(symbol)

	p.mu.RLock()
	sinks := make([]Sink, 0, len(p.subscribers[symbol]))
	for s := range p.subscribers[symbol] {
		sinks = append(sinks, s)
	}
	p.mu.RUnlock()

	p.enqueue(symbol, func() {
		for _, sink := range sinks {
			sink.SendSnapshot(symbol, bids, asks)
		}
	})
}

// OnTrade fans a ticker print out to symbol's subscribers, in one task on
// that symbol's serial dispatcher so a ticker can never overtake (or be
// overtaken by) a snapshot for the same symbol. Wired as matching.Hooks.OnTrade.
func (p *Publisher) OnTrade(trade matching.TradeEvent) {
	p.mu.RLock()
	sinks := make([]Sink, 0, len(p.subscribers[trade.Symbol]))
	for s := range p.subscribers[trade.Symbol] {
		sinks = append(sinks, s)
	}
	p.mu.RUnlock()

	p.enqueue(trade.Symbol, func() {
		for _, sink := range sinks {
			sink.SendTicker(trade)
		}
	})
}
