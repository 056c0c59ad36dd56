package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/riwaai/riwa-pos-backend/internal/fanout"
	"github.com/riwaai/riwa-pos-backend/internal/middleware"
	"github.com/riwaai/riwa-pos-backend/internal/models"
	"github.com/riwaai/riwa-pos-backend/internal/services"
	"github.com/riwaai/riwa-pos-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// streamPingInterval keeps idle SSE connections alive through proxies.
const streamPingInterval = 25 * time.Second

// KDSHandler serves the kitchen display: an active-orders feed plus a push
// stream that tells displays when to re-pull it.
type KDSHandler struct {
	orderService services.OrderService
	hub          *fanout.Hub
}

// NewKDSHandler creates a new KDSHandler.
func NewKDSHandler(os services.OrderService, hub *fanout.Hub) *KDSHandler {
	return &KDSHandler{orderService: os, hub: hub}
}

// ListActive returns all non-terminal orders for the tenant, newest first.
// Displays poll this endpoint on an interval regardless of the stream, so a
// missed push never loses an order.
func (h *KDSHandler) ListActive(c *gin.Context) {
	orders, err := h.orderService.ListActive(middleware.TenantID(c))
	if err != nil {
		utils.LogError(err, "ListActive: Error from orderService.ListActive")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to fetch active orders.", "Internal error"))
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"data": orders})
}

// Stream is the SSE push channel. Events are coarse change notifications;
// the display reacts by re-pulling ListActive.
func (h *KDSHandler) Stream(c *gin.Context) {
	sub := h.hub.Subscribe(middleware.TenantID(c))
	defer sub.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent("order_changed", event)
			return true
		case <-ping.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
