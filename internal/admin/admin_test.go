package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantedge/matchcore/internal/matching"
	"github.com/quantedge/matchcore/internal/orderbook"
)

func TestHealthzReturnsOK(t *testing.T) {
	engine := matching.NewEngine(nil, matching.Hooks{})
	srv := New(engine, prometheus.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	engine := matching.NewEngine(nil, matching.Hooks{})
	srv := New(engine, prometheus.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBooksDumpReturnsGzip(t *testing.T) {
	engine := matching.NewEngine(nil, matching.Hooks{})
	engine.Submit(matching.SubmitRequest{ClientOrderID: 1, SessionID: 1, Symbol: "AAPL", Side: orderbook.Buy, Type: orderbook.Limit, Price: 100, Quantity: 5})

	srv := New(engine, prometheus.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/debug/books.gz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.NotEmpty(t, rec.Body.Bytes())
}
