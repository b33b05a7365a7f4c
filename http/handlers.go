package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	payqueue "github.com/quorumlabs/payqueue-go"
)

// orderResponse is the JSON shape of a queued order.
type orderResponse struct {
	OrderID   uint64 `json:"orderId"`
	State     string `json:"state"`
	Client    string `json:"client"`
	Recipient string `json:"recipient"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	Timestamp string `json:"timestamp"`
}

// claimRequest is the body of POST /clients/:client/claims.
type claimRequest struct {
	Token    string `json:"token" binding:"required"`
	Receiver string `json:"receiver" binding:"required"`
}

func (s *Server) handleQueue(c *gin.Context) {
	client, ok := s.clientAddr(c)
	if !ok {
		return
	}

	ids, err := s.engine.QueueIDs(client)
	if err != nil {
		s.fail(c, err)
		return
	}
	size, err := s.engine.QueueSize(client)
	if err != nil {
		s.fail(c, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	c.JSON(http.StatusOK, gin.H{"client": client.Hex(), "ids": ids, "size": size})
}

func (s *Server) handleOrder(c *gin.Context) {
	client, ok := s.clientAddr(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := s.engine.Order(client, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse{
		OrderID:   order.OrderID,
		State:     order.State.String(),
		Client:    order.Client.Hex(),
		Recipient: order.Order.Recipient.Hex(),
		Token:     order.Order.PaymentToken.Hex(),
		Amount:    order.Order.Amount.String(),
		Timestamp: order.Timestamp.Format(time.RFC3339Nano),
	})
}

func (s *Server) handleUnclaimable(c *gin.Context) {
	client, ok := s.clientAddr(c)
	if !ok {
		return
	}
	token := c.Query("token")
	receiver := c.Query("receiver")
	if !common.IsHexAddress(token) || !common.IsHexAddress(receiver) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token or receiver address"})
		return
	}

	amount, err := s.engine.UnclaimableAmount(client, common.HexToAddress(token), common.HexToAddress(receiver))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"client":   client.Hex(),
		"token":    common.HexToAddress(token).Hex(),
		"receiver": common.HexToAddress(receiver).Hex(),
		"amount":   amount.String(),
	})
}

func (s *Server) handleExecute(c *gin.Context) {
	client, ok := s.registeredClient(c)
	if !ok {
		return
	}

	if err := s.engine.ExecutePaymentQueue(c.Request.Context(), s.operator, client); err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("queue executed", "client", client.Address().Hex(), "request_id", c.GetString("request_id"))
	c.JSON(http.StatusOK, gin.H{"status": "executed"})
}

func (s *Server) handleCancel(c *gin.Context) {
	client, ok := s.clientAddr(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	if err := s.engine.CancelPaymentOrderThroughQueueID(s.operator, client, id); err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("order cancelled", "client", client.Hex(), "order_id", id, "request_id", c.GetString("request_id"))
	c.JSON(http.StatusOK, gin.H{"status": "cancelled", "orderId": id})
}

func (s *Server) handleClaim(c *gin.Context) {
	client, ok := s.registeredClient(c)
	if !ok {
		return
	}

	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid claim request"})
		return
	}
	if !common.IsHexAddress(req.Token) || !common.IsHexAddress(req.Receiver) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token or receiver address"})
		return
	}

	token := common.HexToAddress(req.Token)
	receiver := common.HexToAddress(req.Receiver)
	if err := s.engine.ClaimPreviouslyUnclaimable(c.Request.Context(), client, token, receiver); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "claimed"})
}

// clientAddr parses the :client path parameter.
func (s *Server) clientAddr(c *gin.Context) (common.Address, bool) {
	raw := c.Param("client")
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client address"})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// registeredClient resolves the :client path parameter to a registered module.
func (s *Server) registeredClient(c *gin.Context) (payqueue.Client, bool) {
	addr, ok := s.clientAddr(c)
	if !ok {
		return nil, false
	}
	client, ok := s.clients[addr]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown client"})
		return nil, false
	}
	return client, true
}

// fail maps engine errors to HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, payqueue.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, payqueue.ErrQueueEmpty),
		errors.Is(err, payqueue.ErrNothingToClaim),
		errors.Is(err, payqueue.ErrInvalidStateTransition):
		status = http.StatusConflict
	case errors.Is(err, payqueue.ErrNotQueueOperator),
		errors.Is(err, payqueue.ErrNotModule),
		errors.Is(err, payqueue.ErrOnlyProcessor):
		status = http.StatusForbidden
	case errors.Is(err, payqueue.ErrTransferFailed):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
