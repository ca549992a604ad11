// Package session implements C2: the per-connection state machine,
// framing, and execution-report routing that sits between a raw TCP
// connection and the matching engine.
//
// The read-loop/write-loop split with a buffered outbound channel
// generalizes the teacher's internal/ws/client.go Client
// readPump/writePump pair, replacing gorilla/websocket framing with the
// length-prefixed binary codec of internal/protocol and replacing the
// hub fan-out with direct calls into internal/matching and
// internal/marketdata. Outbound writes are wrapped in a sony/gobreaker
// circuit breaker the way the teacher's
// internal/architecture/fx/resilience/circuit_breaker.go wraps arbitrary
// calls, so one session stuck on a slow socket cannot wedge the
// marketdata fan-out pool that calls into it.
package session

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/quantedge/matchcore/internal/auth"
	"github.com/quantedge/matchcore/internal/marketdata"
	"github.com/quantedge/matchcore/internal/matching"
	"github.com/quantedge/matchcore/internal/orderbook"
	"github.com/quantedge/matchcore/internal/protocol"
	"github.com/quantedge/matchcore/internal/ratelimit"
)

// State is the session lifecycle of spec §4.2.
type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

const outboundQueueDepth = 256

// Deps bundles the shared services a session needs; one Deps is typically
// constructed once per process and handed to every Session.
type Deps struct {
	Engine        *matching.Engine
	MarketData    *marketdata.Publisher
	Authenticator auth.Authenticator
	Logger        *zap.Logger
	MaxFrameBytes int
	ThrottleRate  int
	ThrottleBurst int
}

// Session owns one TCP connection end to end: framing, auth state,
// inbound throttling, and the outbound write queue.
type Session struct {
	id      string
	conn    net.Conn
	deps    Deps
	logger  *zap.Logger
	state   int32
	throttle *ratelimit.SessionThrottle
	breaker *gobreaker.CircuitBreaker

	outSeq   uint32
	outbound chan []byte
	done     chan struct{}
	closeOnce sync.Once

	identity auth.Identity
}

// New wraps conn in a Session ready to Run.
func New(conn net.Conn, deps Deps) *Session {
	id := uuid.NewString()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session_id", id), zap.String("remote_addr", conn.RemoteAddr().String()))

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "session-write-" + id,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Session{
		id:       id,
		conn:     conn,
		deps:     deps,
		logger:   logger,
		throttle: ratelimit.NewSessionThrottle(deps.ThrottleRate, deps.ThrottleBurst),
		breaker:  breaker,
		outbound: make(chan []byte, outboundQueueDepth),
		done:     make(chan struct{}),
	}
}

// ID returns the session's trace id, used in logs.
func (s *Session) ID() string { return s.id }

// NumericID returns the stable numeric identifier executions are addressed
// to — derived from the trace id, used as the session registry's map key.
func (s *Session) NumericID() uint64 { return sessionNumericID(s.id) }

func (s *Session) state() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Session) setState(v State) {
	atomic.StoreInt32(&s.state, int32(v))
}

// Run drives the session until the connection closes or a protocol
// violation occurs. It blocks until both the read and write loops exit.
func (s *Session) Run() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop()
	}()

	s.readLoop()
	s.Close()
	wg.Wait()
}

// Close tears the session down idempotently: marks it closed, unsubscribes
// it from every symbol, and closes the outbound queue and connection.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		if s.deps.MarketData != nil {
			s.deps.MarketData.UnsubscribeAll(s)
		}
		close(s.done)
		close(s.outbound)
		s.conn.Close()
	})
}

func (s *Session) readLoop() {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)

	for {
		msg, consumed, err := protocol.DecodeOne(buf)
		if err == nil {
			buf = buf[consumed:]
			s.handle(msg)
			if s.state() == StateClosed {
				return
			}
			continue
		}
		if !protocol.IsNeedMore(err) {
			s.logger.Warn("protocol violation, closing session", zap.Error(err))
			return
		}
		if len(buf) >= s.maxFrameBytes() {
			s.logger.Warn("inbound frame exceeds max size, closing session", zap.Int("buffered", len(buf)))
			return
		}

		n, readErr := s.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if readErr != nil {
			return
		}
	}
}

func (s *Session) maxFrameBytes() int {
	if s.deps.MaxFrameBytes > 0 {
		return s.deps.MaxFrameBytes
	}
	return 4096
}

func (s *Session) handle(msg protocol.Message) {
	if s.state() != StateAuthenticated {
		if _, ok := msg.(protocol.Login); !ok {
			s.logger.Warn("message before login, closing session", zap.Uint8("type", msg.Type()))
			s.setState(StateClosed)
			return
		}
	} else if !s.throttle.Allow() {
		s.logger.Warn("inbound rate exceeded, closing session")
		s.setState(StateClosed)
		return
	}

	switch m := msg.(type) {
	case protocol.Login:
		s.handleLogin(m)
	case protocol.NewOrder:
		s.handleNewOrder(m)
	case protocol.Cancel:
		s.handleCancel(m)
	case protocol.MDQuery:
		s.handleMDQuery(m)
	case protocol.Subscribe:
		s.handleSubscribe(m)
	default:
		s.logger.Warn("unexpected message type from client", zap.Uint8("type", msg.Type()))
		s.setState(StateClosed)
	}
}

func (s *Session) handleLogin(m protocol.Login) {
	user := trimNul(m.User[:])
	password := trimNul(m.Password[:])

	id, err := s.deps.Authenticator.Authenticate(user, password)
	resp := protocol.LoginResp{}
	if err != nil {
		resp.Status = 0
		copy(resp.Message[:], err.Error())
		s.send(protocol.Encode(s.nextSeq(), resp))
		s.setState(StateClosed)
		return
	}

	s.identity = id
	s.setState(StateAuthenticated)
	resp.Status = 1
	copy(resp.Message[:], "ok")
	s.send(protocol.Encode(s.nextSeq(), resp))

	if issuer, ok := s.deps.Authenticator.(auth.TokenIssuer); ok {
		token, tokenErr := issuer.Issue(id)
		if tokenErr != nil {
			s.logger.Warn("failed to issue correlation token", zap.Error(tokenErr))
		} else {
			s.logger.Info("issued correlation token", zap.String("user_id", id.UserID), zap.String("token", token))
		}
	}
}

// handleNewOrder and handleCancel rely on matching.Hooks.OnExecution,
// routed by the session registry in internal/server, to deliver execution
// reports to every affected session (which may not be this one — a
// resting counterparty gets filled by someone else's aggressor). The one
// exception is a rejected cancel: it carries no owning session, so
// handleCancel delivers it to this session directly.
func (s *Session) handleNewOrder(m protocol.NewOrder) {
	req := matching.SubmitRequest{
		ClientOrderID: m.ClientOrderID,
		SessionID:     sessionNumericID(s.id),
		Symbol:        protocol.SymbolString(m.Symbol),
		Side:          wireToSide(m.Side),
		Type:          wireToType(m.OrderType),
		Price:         m.Price,
		Quantity:      m.Quantity,
	}
	s.deps.Engine.Submit(req)
}

func (s *Session) handleCancel(m protocol.Cancel) {
	ex := s.deps.Engine.Cancel(m.EngineOrderID, protocol.SymbolString(m.Symbol), wireToSide(m.Side))
	if ex.Status == orderbook.StatusRejected {
		s.DeliverExecution(ex)
	}
}

func (s *Session) handleMDQuery(m protocol.MDQuery) {
	symbol := protocol.SymbolString(m.Symbol)
	bids, asks := s.deps.MarketData.Query(symbol)
	s.SendSnapshot(symbol, bids, asks)
}

func (s *Session) handleSubscribe(m protocol.Subscribe) {
	symbol := protocol.SymbolString(m.Symbol)
	if m.Flag == 1 {
		s.deps.MarketData.Subscribe(symbol, s)
	} else {
		s.deps.MarketData.Unsubscribe(symbol, s)
	}
}

// DeliverExecution encodes and enqueues an execution report addressed to
// this session. Called by the server's session registry in response to
// matching.Hooks.OnExecution once it has resolved ex.SessionID to this
// Session.
func (s *Session) DeliverExecution(ex matching.Execution) {
	symbolBytes, err := protocol.SymbolBytes(ex.Symbol)
	if err != nil {
		s.logger.Error("execution symbol too long to encode", zap.Error(err))
		return
	}
	report := protocol.ExecReport{
		ClientOrderID: ex.ClientOrderID,
		ExecutionID:   ex.ExecutionID,
		Symbol:        symbolBytes,
		Side:          sideToWire(ex.Side),
		Price:         ex.Price,
		Quantity:      ex.OriginalQuantity,
		FilledQty:     ex.FilledQuantityCumulative,
		Status:        statusToWire(ex.Status),
	}
	s.send(protocol.Encode(s.nextSeq(), report))
}

// SendSnapshot implements marketdata.Sink.
func (s *Session) SendSnapshot(symbol string, bids, asks []orderbook.DepthLevel) {
	symbolBytes, err := protocol.SymbolBytes(symbol)
	if err != nil {
		return
	}
	snap := protocol.Snapshot{Symbol: symbolBytes}
	snap.NBids = uint32(len(bids))
	snap.NAsks = uint32(len(asks))
	for i, lvl := range bids {
		if i >= len(snap.Bids) {
			break
		}
		snap.Bids[i] = protocol.Level{Price: lvl.Price, Qty: lvl.Quantity}
	}
	for i, lvl := range asks {
		if i >= len(snap.Asks) {
			break
		}
		snap.Asks[i] = protocol.Level{Price: lvl.Price, Qty: lvl.Quantity}
	}
	s.send(protocol.Encode(s.nextSeq(), snap))
}

// SendTicker implements marketdata.Sink.
func (s *Session) SendTicker(trade matching.TradeEvent) {
	symbolBytes, err := protocol.SymbolBytes(trade.Symbol)
	if err != nil {
		return
	}
	ticker := protocol.Ticker{
		Symbol:        symbolBytes,
		Price:         trade.Price,
		Quantity:      trade.Quantity,
		TimestampNS:   trade.TimestampNS,
		AggressorSide: sideToWire(trade.AggressorSide),
	}
	s.send(protocol.Encode(s.nextSeq(), ticker))
}

func (s *Session) nextSeq() uint16 {
	return uint16(atomic.AddUint32(&s.outSeq, 1))
}

// send enqueues a frame for the write loop. It never blocks: a full queue
// means the peer isn't keeping up, and the frame is dropped rather than
// stalling whichever goroutine (engine hook, fan-out pool) called in.
func (s *Session) send(frame []byte) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.outbound <- frame:
	default:
		s.logger.Warn("outbound queue full, dropping frame")
	}
}

func (s *Session) writeLoop() {
	for frame := range s.outbound {
		_, err := s.breaker.Execute(func() (interface{}, error) {
			deadline := time.Now().Add(10 * time.Second)
			if err := s.conn.SetWriteDeadline(deadline); err != nil {
				return nil, err
			}
			_, err := s.conn.Write(frame)
			return nil, err
		})
		if err != nil {
			if err == gobreaker.ErrOpenState {
				s.logger.Warn("write circuit open, dropping frame")
				continue
			}
			s.logger.Warn("write failed, closing session", zap.Error(err))
			s.Close()
			return
		}
	}
}

func sessionNumericID(id string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(id); i++ {
		h ^= uint64(id[i])
		h *= 1099511628211
	}
	return h
}

func trimNul(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}

func sideToWire(s orderbook.Side) byte {
	if s == orderbook.Buy {
		return protocol.SideBuy
	}
	return protocol.SideSell
}

func wireToSide(b byte) orderbook.Side {
	if b == protocol.SideBuy {
		return orderbook.Buy
	}
	return orderbook.Sell
}

func wireToType(b byte) orderbook.Type {
	if b == protocol.OrderTypeLimit {
		return orderbook.Limit
	}
	return orderbook.Market
}

func statusToWire(s orderbook.Status) byte {
	switch s {
	case orderbook.StatusNew:
		return protocol.StatusNew
	case orderbook.StatusPartial:
		return protocol.StatusPartial
	case orderbook.StatusFilled:
		return protocol.StatusFilled
	case orderbook.StatusCancelled:
		return protocol.StatusCancelled
	default:
		return protocol.StatusRejected
	}
}
