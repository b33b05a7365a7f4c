// Package http provides an HTTP operator surface over a queue payment
// processor: queue inspection, manual queue execution, order cancellation,
// and recovery of unclaimable funds. It is a thin adapter; all settlement
// logic lives in the engine.
package http

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	payqueue "github.com/quorumlabs/payqueue-go"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// Engine is the processor surface the server exposes. Both *QueueProcessor
// and *ManualQueueProcessor satisfy it.
type Engine interface {
	Order(client common.Address, orderID uint64) (payqueue.QueuedOrder, error)
	QueueIDs(client common.Address) ([]uint64, error)
	QueueSize(client common.Address) (int, error)
	UnclaimableAmount(client, token, receiver common.Address) (*big.Int, error)
	ExecutePaymentQueue(ctx context.Context, caller common.Address, client payqueue.Client) error
	CancelPaymentOrderThroughQueueID(caller, client common.Address, orderID uint64) error
	ClaimPreviouslyUnclaimable(ctx context.Context, client payqueue.Client, token, receiver common.Address) error
}

// Config configures the operator server.
type Config struct {
	// Operator is the account the server acts as for role-gated operations.
	Operator common.Address

	// Logger receives request logs. Optional.
	Logger *slog.Logger
}

// Server exposes a queue processor over HTTP.
type Server struct {
	engine   Engine
	operator common.Address
	logger   *slog.Logger
	clients  map[common.Address]payqueue.Client
	router   *gin.Engine
}

// NewServer creates a Server around engine.
func NewServer(cfg Config, engine Engine) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:   engine,
		operator: cfg.Operator,
		logger:   logger,
		clients:  make(map[common.Address]payqueue.Client),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID())

	v1 := r.Group("/v1")
	v1.GET("/clients/:client/queue", s.handleQueue)
	v1.GET("/clients/:client/orders/:id", s.handleOrder)
	v1.GET("/clients/:client/unclaimable", s.handleUnclaimable)
	v1.POST("/clients/:client/execute", s.handleExecute)
	v1.POST("/clients/:client/orders/:id/cancel", s.handleCancel)
	v1.POST("/clients/:client/claims", s.handleClaim)

	s.router = r
	return s
}

// RegisterClient makes a spending module addressable through the API.
// Execution and claim endpoints only work for registered clients.
func (s *Server) RegisterClient(client payqueue.Client) {
	s.clients[client.Address()] = client
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestID attaches a correlation ID to every request, honoring one supplied
// by the caller.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Set("request_id", id)
		c.Next()
	}
}
