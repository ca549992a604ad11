// Package ratelimit implements the two distinct throttles of C2/C6: an
// admission limiter keyed by remote IP guarding how fast new TCP
// connections are accepted, and a per-session inbound-message limiter
// guarding how fast an already-authenticated session may submit frames.
//
// The admission limiter is grounded on the teacher's
// internal/api/middleware/security.go SecurityMiddleware, which builds a
// ulule/limiter/v3 memory-store limiter per process; here it is keyed by
// address instead of by HTTP request since admission happens at accept()
// time, before any HTTP-shaped request exists. The per-session limiter
// uses golang.org/x/time/rate directly, one instance per session, since
// that is a per-connection token bucket rather than a shared keyed store.
package ratelimit

import (
	"context"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"golang.org/x/time/rate"
)

// ConnectionAdmitter decides whether a new TCP connection from a given
// remote address may proceed to the Login handshake.
type ConnectionAdmitter struct {
	limiter *limiter.Limiter
}

// NewConnectionAdmitter builds an admitter allowing ratePerSecond
// connection attempts per remote address per second.
func NewConnectionAdmitter(ratePerSecond int) *ConnectionAdmitter {
	limiterRate := limiter.Rate{
		Period: time.Second,
		Limit:  int64(ratePerSecond),
	}
	store := memory.NewStore()
	return &ConnectionAdmitter{limiter: limiter.New(store, limiterRate)}
}

// Allow reports whether a connection from remoteAddr may be admitted.
func (a *ConnectionAdmitter) Allow(ctx context.Context, remoteAddr string) (bool, error) {
	ctxResult, err := a.limiter.Get(ctx, remoteAddr)
	if err != nil {
		return false, err
	}
	return !ctxResult.Reached, nil
}

// SessionThrottle is a per-session inbound-message token bucket.
type SessionThrottle struct {
	limiter *rate.Limiter
}

// NewSessionThrottle builds a throttle allowing msgsPerSecond sustained,
// with burst headroom of burst messages.
func NewSessionThrottle(msgsPerSecond int, burst int) *SessionThrottle {
	return &SessionThrottle{limiter: rate.NewLimiter(rate.Limit(msgsPerSecond), burst)}
}

// Allow reports whether one more inbound message may be processed now.
func (t *SessionThrottle) Allow() bool {
	return t.limiter.Allow()
}
