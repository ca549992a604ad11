// Package events publishes fire-and-forget order and trade notifications
// for out-of-band consumers (analytics, audit, downstream risk systems) —
// entirely separate from the session exec-report path, which is the only
// channel sessions themselves rely on.
//
// The publisher shape is grounded on the teacher's
// internal/architecture/cqrs/eventbus/nats_adapter.go NatsEventBus, pared
// down from that file's JetStream/event-sourcing-store machinery (not
// needed here — these are best-effort notifications, not a durable event
// log, which spec.md's Non-goals exclude) to a plain core NATS publish.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/quantedge/matchcore/internal/matching"
	"github.com/quantedge/matchcore/internal/orderbook"
)

// Publisher receives matching-engine activity and forwards it somewhere.
// Both methods must never block the caller for long — the matching engine
// invokes them synchronously from inside its own mutex via Hooks.
type Publisher interface {
	PublishExecution(exec matching.Execution)
	PublishTrade(trade matching.TradeEvent)
	Close() error
}

// NoopPublisher discards everything; the default when events.publisher is
// "noop" in configuration.
type NoopPublisher struct{}

func (NoopPublisher) PublishExecution(matching.Execution) {}
func (NoopPublisher) PublishTrade(matching.TradeEvent)    {}
func (NoopPublisher) Close() error                        { return nil }

// orderEvent and tradeEvent are the JSON payloads placed on NATS subjects.
type orderEvent struct {
	ExecutionID   uint64 `json:"execution_id"`
	EngineOrderID uint64 `json:"engine_order_id"`
	ClientOrderID uint64 `json:"client_order_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Price         float64 `json:"price"`
	FilledQty     uint64 `json:"filled_qty"`
	Status        string `json:"status"`
}

type tradeEvent struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Quantity      uint64  `json:"quantity"`
	TimestampNS   uint64  `json:"timestamp_ns"`
	AggressorSide string  `json:"aggressor_side"`
}

// NATSPublisher publishes order and trade events as JSON to
// matchcore.orders.<symbol> and matchcore.trades.<symbol>.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewNATSPublisher connects to url and returns a ready Publisher.
func NewNATSPublisher(url string, logger *zap.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("matchcore"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: conn, logger: logger}, nil
}

func (p *NATSPublisher) PublishExecution(exec matching.Execution) {
	payload, err := json.Marshal(orderEvent{
		ExecutionID:   exec.ExecutionID,
		EngineOrderID: exec.EngineOrderID,
		ClientOrderID: exec.ClientOrderID,
		Symbol:        exec.Symbol,
		Side:          sideString(exec.Side),
		Price:         exec.Price,
		FilledQty:     exec.FilledQuantityCumulative,
		Status:        statusString(exec.Status),
	})
	if err != nil {
		p.logWarn("marshal order event", err)
		return
	}
	subject := fmt.Sprintf("matchcore.orders.%s", exec.Symbol)
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logWarn("publish order event", err)
	}
}

func (p *NATSPublisher) PublishTrade(trade matching.TradeEvent) {
	payload, err := json.Marshal(tradeEvent{
		Symbol:        trade.Symbol,
		Price:         trade.Price,
		Quantity:      trade.Quantity,
		TimestampNS:   trade.TimestampNS,
		AggressorSide: sideString(trade.AggressorSide),
	})
	if err != nil {
		p.logWarn("marshal trade event", err)
		return
	}
	subject := fmt.Sprintf("matchcore.trades.%s", trade.Symbol)
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logWarn("publish trade event", err)
	}
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

func (p *NATSPublisher) logWarn(msg string, err error) {
	if p.logger != nil {
		p.logger.Warn(msg, zap.Error(err))
	}
}

func sideString(s orderbook.Side) string {
	if s == orderbook.Buy {
		return "buy"
	}
	return "sell"
}

func statusString(s orderbook.Status) string {
	switch s {
	case orderbook.StatusNew:
		return "new"
	case orderbook.StatusPartial:
		return "partial"
	case orderbook.StatusFilled:
		return "filled"
	case orderbook.StatusCancelled:
		return "cancelled"
	case orderbook.StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}
