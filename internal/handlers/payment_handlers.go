package handlers

import (
	"errors"
	"net/http"

	"github.com/riwaai/riwa-pos-backend/internal/middleware"
	"github.com/riwaai/riwa-pos-backend/internal/services"
	"github.com/riwaai/riwa-pos-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// PaymentHandler holds the payment service.
type PaymentHandler struct {
	paymentService services.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(ps services.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: ps}
}

// InitiatePayment starts a hosted payment for an order and returns the
// redirect URL.
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	var req services.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	result, err := h.paymentService.Initiate(c.Request.Context(), middleware.TenantID(c), c.Param("id"), req)
	if err != nil {
		respondProviderError(c, err, "InitiatePayment")
		return
	}
	c.JSON(http.StatusOK, result)
}

// respondProviderError maps the shared service error taxonomy onto HTTP for
// the provider-facing endpoints.
func respondProviderError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Order not found.", ""))
	case errors.Is(err, services.ErrUnknownProvider):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Unknown provider.", err.Error()))
	case errors.Is(err, services.ErrIntegrationNotConfigured), errors.Is(err, services.ErrIntegrationDisabled):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeIntegrationDisabled, "Integration is not configured or disabled.", err.Error()))
	case errors.Is(err, services.ErrProviderRejected):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadGateway, utils.ErrCodeProviderRejected, "Provider rejected the request.", err.Error()))
	case errors.Is(err, services.ErrProviderUnreachable):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadGateway, utils.ErrCodeProviderUnreachable, "Provider is unreachable.", err.Error()))
	case errors.Is(err, services.ErrValidation):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request.", err.Error()))
	case errors.Is(err, services.ErrConflict):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "State changed concurrently; retry.", err.Error()))
	default:
		utils.LogError(err, op+": unexpected service error")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Request failed.", "Internal error"))
	}
}
