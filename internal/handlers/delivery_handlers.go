package handlers

import (
	"net/http"

	"github.com/riwaai/riwa-pos-backend/internal/middleware"
	"github.com/riwaai/riwa-pos-backend/internal/services"
	"github.com/riwaai/riwa-pos-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// DeliveryHandler holds the delivery service.
type DeliveryHandler struct {
	deliveryService services.DeliveryService
}

// NewDeliveryHandler creates a new DeliveryHandler.
func NewDeliveryHandler(ds services.DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{deliveryService: ds}
}

// CreateDelivery dispatches an order to a courier.
func (h *DeliveryHandler) CreateDelivery(c *gin.Context) {
	var req services.CreateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	result, err := h.deliveryService.Create(c.Request.Context(), middleware.TenantID(c), c.Param("id"), req)
	if err != nil {
		respondProviderError(c, err, "CreateDelivery")
		return
	}
	c.JSON(http.StatusCreated, result)
}

// CancelDelivery cancels a courier job by its delivery code.
func (h *DeliveryHandler) CancelDelivery(c *gin.Context) {
	err := h.deliveryService.Cancel(c.Request.Context(), middleware.TenantID(c), c.Param("provider"), c.Param("code"))
	if err != nil {
		respondProviderError(c, err, "CancelDelivery")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Delivery cancelled"})
}

// GetDeliveryStatus queries the courier for the live state of a job.
func (h *DeliveryHandler) GetDeliveryStatus(c *gin.Context) {
	event, err := h.deliveryService.GetStatus(c.Request.Context(), middleware.TenantID(c), c.Param("provider"), c.Param("code"))
	if err != nil {
		respondProviderError(c, err, "GetDeliveryStatus")
		return
	}
	c.JSON(http.StatusOK, event)
}
