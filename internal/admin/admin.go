// Package admin exposes the gin-gonic/gin HTTP surface described in
// SPEC_FULL §4.9: health, prometheus metrics, and a gzip-compressed debug
// dump of every book. The router construction generalizes the teacher's
// internal/config/gin.go NewHFTGinEngine/SetupHFTRoutes pair, pared down
// to the three routes this service actually needs and replacing that
// file's custom HFT middleware with gin-contrib/cors (the only
// cross-origin concern this admin surface has — it is read-only and
// carries no auth-gated mutation routes).
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantedge/matchcore/internal/matching"
)

// Server is the admin HTTP surface, independent of the trading TCP port.
type Server struct {
	engine *matching.Engine
	router *gin.Engine
}

// New builds the admin router. reg is the prometheus registry backing
// /metrics.
func New(engine *matching.Engine, reg *prometheus.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet},
	}))

	s := &Server{engine: engine, router: router}

	router.GET("/healthz", s.handleHealthz)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/debug/books.gz", s.handleBooksDump)

	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type debugOrder struct {
	EngineOrderID uint64  `json:"engine_order_id"`
	ClientOrderID uint64  `json:"client_order_id"`
	Price         float64 `json:"price"`
	Remaining     uint64  `json:"remaining"`
}

type debugBook struct {
	Symbol string       `json:"symbol"`
	Bids   []debugOrder `json:"bids"`
	Asks   []debugOrder `json:"asks"`
}

// handleBooksDump writes every book's full resting-order list as
// gzip-compressed JSON — intentionally unbounded depth, unlike the
// 5-level wire snapshot, since this endpoint is for operators, not
// trading clients.
func (s *Server) handleBooksDump(c *gin.Context) {
	c.Header("Content-Encoding", "gzip")
	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)

	gz := gzip.NewWriter(c.Writer)
	defer gz.Close()

	enc := json.NewEncoder(gz)
	for _, symbol := range s.engine.Symbols() {
		bids, asks := s.engine.AllOrders(symbol)
		dump := debugBook{Symbol: symbol}
		for _, o := range bids {
			dump.Bids = append(dump.Bids, debugOrder{EngineOrderID: o.EngineOrderID, ClientOrderID: o.ClientOrderID, Price: o.Price, Remaining: o.Remaining()})
		}
		for _, o := range asks {
			dump.Asks = append(dump.Asks, debugOrder{EngineOrderID: o.EngineOrderID, ClientOrderID: o.ClientOrderID, Price: o.Price, Remaining: o.Remaining()})
		}
		if err := enc.Encode(dump); err != nil {
			return
		}
	}
}
