package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/joripage/orderentry-dev/pkg/logging"
	"github.com/joripage/orderentry-dev/pkg/ticket"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreateTicket(c *gin.Context) {
	var req struct {
		Asset string `json:"asset"`
		Side  string `json:"side"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tk, err := s.registry.Create(req.Asset, ticket.Side(strings.ToUpper(req.Side)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, tk.Snapshot())
}

func (s *Server) handleGetTicket(c *gin.Context) {
	tk, ok := s.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrTicketNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, tk.Snapshot())
}

func (s *Server) handleEditField(c *gin.Context) {
	tk, ok := s.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrTicketNotFound.Error()})
		return
	}

	var req struct {
		Field string `json:"field" binding:"required"`
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := tk.EditField(ticket.Field(strings.ToLower(req.Field)), req.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleApplyPreset(c *gin.Context) {
	tk, ok := s.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrTicketNotFound.Error()})
		return
	}

	var req struct {
		Preset string `json:"preset" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := tk.ApplyPreset(ticket.Preset(strings.ToUpper(req.Preset)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleSetSide(c *gin.Context) {
	tk, ok := s.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrTicketNotFound.Error()})
		return
	}

	var req struct {
		Side string `json:"side" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := tk.SetSide(ticket.Side(strings.ToUpper(req.Side)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleSubmit(c *gin.Context) {
	tk, ok := s.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrTicketNotFound.Error()})
		return
	}

	logger, ctx := logging.GetLogger(c.Request.Context())
	snap, err := tk.Submit(ctx)
	if err != nil {
		var verr *ticket.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Message, "field": string(verr.Field)})
		case errors.Is(err, ticket.ErrSubmitInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		}
		return
	}

	if snap.Phase == ticket.PhaseError {
		msg := "Order failed"
		if snap.Result != nil {
			msg = snap.Result.Message
		}
		logger.Warn(ctx, "order rejected",
			zap.String("ticket_id", snap.ID),
			zap.String("asset", snap.Asset),
			zap.String("message", msg))
		c.JSON(http.StatusBadGateway, gin.H{"error": msg})
		return
	}

	logger.Info(ctx, "order submitted",
		zap.String("ticket_id", snap.ID),
		zap.String("asset", snap.Asset),
		zap.String("side", string(snap.Side)))
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleCloseTicket(c *gin.Context) {
	if !s.registry.Remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrTicketNotFound.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleOrderBook(c *gin.Context) {
	asset := strings.ToUpper(c.Param("asset"))

	logger, ctx := logging.GetLogger(c.Request.Context())
	snapshot, err := s.books.FetchOrderBook(ctx, asset)
	if err != nil {
		logger.Error(ctx, "fetch orderbook", zap.String("asset", asset), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch orderbook"})
		return
	}
	c.Data(http.StatusOK, "application/json", snapshot)
}

func (s *Server) handleQuote(c *gin.Context) {
	asset := strings.ToUpper(c.Param("asset"))
	q, ok := s.tracker.Latest(asset)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no quote for asset"})
		return
	}
	c.JSON(http.StatusOK, q)
}
