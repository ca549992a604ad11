package session

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantedge/matchcore/internal/auth"
	"github.com/quantedge/matchcore/internal/marketdata"
	"github.com/quantedge/matchcore/internal/matching"
	"github.com/quantedge/matchcore/internal/protocol"
)

func newTestDeps(t *testing.T) Deps {
	engine := matching.NewEngine(nil, matching.Hooks{})
	pub, err := marketdata.NewPublisher(engine, nil, 2, 50*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(pub.Close)

	return Deps{
		Engine:        engine,
		MarketData:    pub,
		Authenticator: auth.AllowAllAuthenticator{},
		MaxFrameBytes: 4096,
		ThrottleRate:  1000,
		ThrottleBurst: 1000,
	}
}

func readFrame(t *testing.T, conn net.Conn) protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	msg, consumed, err := protocol.DecodeOne(buf[:n])
	require.NoError(t, err)
	require.Equal(t, n, consumed)
	return msg
}

func TestLoginHandshakeSucceeds(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	sess := New(serverConn, newTestDeps(t))
	go sess.Run()

	login := protocol.Login{}
	copy(login.User[:], "alice")
	copy(login.Password[:], "secret")
	_, err := clientConn.Write(protocol.Encode(1, login))
	require.NoError(t, err)

	resp := readFrame(t, clientConn).(protocol.LoginResp)
	assert.Equal(t, byte(1), resp.Status)
}

// spyIssuingAuthenticator counts Issue calls so tests can assert the login
// path wires auth.TokenIssuer without depending on log output.
type spyIssuingAuthenticator struct {
	issued int32
}

func (a *spyIssuingAuthenticator) Authenticate(user, password string) (auth.Identity, error) {
	return auth.AllowAllAuthenticator{}.Authenticate(user, password)
}

func (a *spyIssuingAuthenticator) Issue(id auth.Identity) (string, error) {
	atomic.AddInt32(&a.issued, 1)
	return "token-" + id.UserID, nil
}

func TestLoginSuccessIssuesTokenWhenAuthenticatorSupportsIt(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	deps := newTestDeps(t)
	spy := &spyIssuingAuthenticator{}
	deps.Authenticator = spy

	sess := New(serverConn, deps)
	go sess.Run()

	login := protocol.Login{}
	copy(login.User[:], "alice")
	copy(login.Password[:], "secret")
	_, err := clientConn.Write(protocol.Encode(1, login))
	require.NoError(t, err)

	resp := readFrame(t, clientConn).(protocol.LoginResp)
	assert.Equal(t, byte(1), resp.Status)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&spy.issued) == 1
	}, time.Second, 5*time.Millisecond, "handleLogin must call Issue when the Authenticator implements TokenIssuer")
}

func TestLoginHandshakeFailsOnEmptyCredentials(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	sess := New(serverConn, newTestDeps(t))
	go sess.Run()

	login := protocol.Login{}
	_, err := clientConn.Write(protocol.Encode(1, login))
	require.NoError(t, err)

	resp := readFrame(t, clientConn).(protocol.LoginResp)
	assert.Equal(t, byte(0), resp.Status)
}

func TestNewOrderBeforeLoginClosesConnection(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	sess := New(serverConn, newTestDeps(t))
	go sess.Run()

	order := protocol.NewOrder{ClientOrderID: 1, Side: protocol.SideBuy, OrderType: protocol.OrderTypeLimit, Price: 100, Quantity: 10}
	copy(order.Symbol[:], "AAPL")
	_, _ = clientConn.Write(protocol.Encode(1, order))

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	_, err := clientConn.Read(buf)
	assert.Error(t, err, "server must close the connection without replying")
}

func TestMDQueryReturnsSnapshot(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	deps := newTestDeps(t)
	deps.Engine.Submit(matching.SubmitRequest{ClientOrderID: 1, SessionID: 1, Symbol: "AAPL", Side: 1, Type: 1, Price: 150, Quantity: 10})

	sess := New(serverConn, deps)
	go sess.Run()

	login := protocol.Login{}
	copy(login.User[:], "alice")
	copy(login.Password[:], "secret")
	_, _ = clientConn.Write(protocol.Encode(1, login))
	readFrame(t, clientConn)

	query := protocol.MDQuery{}
	copy(query.Symbol[:], "AAPL")
	_, _ = clientConn.Write(protocol.Encode(2, query))

	snap := readFrame(t, clientConn).(protocol.Snapshot)
	assert.Equal(t, uint32(1), snap.NAsks)
	assert.Equal(t, 150.0, snap.Asks[0].Price)
}
