// Package server implements the TCP acceptor loop of C2/C6: one
// goroutine per accepted connection (concurrency model 2 of spec §5),
// a registry resolving matching.Execution.SessionID to the right
// session, and per-IP connection admission throttling.
//
// The registry generalizes the teacher's internal/ws/connection_pool.go
// ConnectionPool, replacing its channel/symbol indexing (meaningful for
// a pub/sub WebSocket hub) with the single numeric-SessionID index this
// service's execution-routing actually needs.
package server

import (
	"context"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/quantedge/matchcore/internal/matching"
	"github.com/quantedge/matchcore/internal/metrics"
	"github.com/quantedge/matchcore/internal/ratelimit"
	"github.com/quantedge/matchcore/internal/session"
)

// Server owns the trading TCP listener and every live session.
type Server struct {
	listener net.Listener
	admitter *ratelimit.ConnectionAdmitter
	sessDeps session.Deps
	logger   *zap.Logger
	metrics  *metrics.Registry

	mu       sync.RWMutex
	sessions map[uint64]*session.Session

	wg sync.WaitGroup
}

// Config holds the pieces server.New needs to assemble the listener and
// its session dependencies.
type Config struct {
	Addr             string
	AcceptBacklog    int
	ConnAdmissionRPS int
	SessionDeps      session.Deps
	Logger           *zap.Logger
	Metrics          *metrics.Registry
}

// New binds Config.Addr and returns a Server ready to Serve.
func New(cfg Config) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		listener: ln,
		admitter: ratelimit.NewConnectionAdmitter(cfg.ConnAdmissionRPS),
		sessDeps: cfg.SessionDeps,
		logger:   logger,
		metrics:  cfg.Metrics,
		sessions: make(map[uint64]*session.Session),
	}, nil
}

// Addr returns the bound address (useful when Config.Addr used port 0).
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// RouteExecution resolves ex.SessionID to a live session and delivers the
// execution report to it, dropping it silently if that session has since
// disconnected. Wired as matching.Hooks.OnExecution.
func (s *Server) RouteExecution(ex matching.Execution) {
	s.mu.RLock()
	sess, ok := s.sessions[ex.SessionID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	sess.DeliverExecution(ex)
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return err
			}
		}

		remoteIP := conn.RemoteAddr().String()
		if host, _, splitErr := net.SplitHostPort(remoteIP); splitErr == nil {
			remoteIP = host
		}
		allowed, admitErr := s.admitter.Allow(ctx, remoteIP)
		if admitErr != nil || !allowed {
			s.logger.Warn("connection admission rejected", zap.String("remote_addr", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()

	sess := session.New(conn, s.sessDeps)
	id := sess.NumericID()

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}

	defer func() {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.ActiveSessions.Dec()
		}
	}()

	sess.Run()
}

// Close stops accepting new connections; in-flight sessions are left to
// drain via their own Run loops.
func (s *Server) Close() error {
	return s.listener.Close()
}
