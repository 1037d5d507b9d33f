// Package gateway exposes ticket sessions over HTTP: a small BFF a trading
// UI drives through discrete edit events, plus a websocket stream of the
// reference quotes.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joripage/orderentry-dev/pkg/logging"
	"github.com/joripage/orderentry-dev/pkg/refquote"
)

// BookSource hands out order book snapshots, normally the tradeclient.
type BookSource interface {
	FetchOrderBook(ctx context.Context, asset string) (json.RawMessage, error)
}

type Config struct {
	Addr         string
	AllowOrigins []string
}

type Server struct {
	addr     string
	engine   *gin.Engine
	httpSrv  *http.Server
	registry *Registry
	books    BookSource
	tracker  *refquote.Tracker
	hub      *QuoteHub
}

func NewServer(cfg Config, registry *Registry, books BookSource, tracker *refquote.Tracker) *Server {
	s := &Server{
		addr:     cfg.Addr,
		registry: registry,
		books:    books,
		tracker:  tracker,
		hub:      NewQuoteHub(tracker),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestID())
	_ = engine.SetTrustedProxies(nil)

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Upgrade", "Connection"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowOrigins
		corsCfg.AllowCredentials = true
	} else {
		corsCfg.AllowAllOrigins = true
	}
	engine.Use(cors.New(corsCfg))

	s.engine = engine
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api/v1")
	{
		api.POST("/tickets", s.handleCreateTicket)
		api.GET("/tickets/:id", s.handleGetTicket)
		api.PUT("/tickets/:id/fields", s.handleEditField)
		api.POST("/tickets/:id/preset", s.handleApplyPreset)
		api.PUT("/tickets/:id/side", s.handleSetSide)
		api.POST("/tickets/:id/submit", s.handleSubmit)
		api.DELETE("/tickets/:id", s.handleCloseTicket)

		api.GET("/orderbook/:asset", s.handleOrderBook)
		api.GET("/quotes/:asset", s.handleQuote)
	}

	s.engine.GET("/ws/quotes", s.hub.HandleWebSocket)
}

// Engine exposes the router, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start runs the quote hub and the HTTP listener. It returns immediately;
// use Shutdown for a graceful stop.
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run(ctx)
	s.registry.Start(ctx)

	s.httpSrv = &http.Server{Addr: s.addr, Handler: s.engine}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.S().Errorf("http server: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// requestID tags every request with an id the log wrapper picks up from the
// context.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := logging.WithRequestID(c.Request.Context(), reqID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", reqID)
		c.Next()
	}
}
