package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/riwaai/riwa-pos-backend/internal/services"
	"github.com/riwaai/riwa-pos-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody caps webhook payload reads.
const maxWebhookBody = 1 << 20

// signatureHeader carries the HMAC hex digest on payment webhooks.
const signatureHeader = "X-Webhook-Signature"

// WebhookHandler receives unauthenticated provider callbacks. These routes
// sit outside the JWT middleware; each service verifies the payload against
// the owning tenant's stored secret before mutating anything.
type WebhookHandler struct {
	paymentService  services.PaymentService
	deliveryService services.DeliveryService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(ps services.PaymentService, ds services.DeliveryService) *WebhookHandler {
	return &WebhookHandler{paymentService: ps, deliveryService: ds}
}

// PaymentWebhook handles a payment provider's server-to-server notification.
func (h *WebhookHandler) PaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeBadRequest, "Failed to read payload.", ""))
		return
	}

	err = h.paymentService.HandleWebhook(c.Request.Context(), c.Param("provider"), payload, c.GetHeader(signatureHeader))
	if err != nil {
		h.respondWebhookError(c, err, "PaymentWebhook")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// PaymentCallback handles the customer's browser returning from the hosted
// payment page. The query alone is untrusted; the service re-verifies the
// payment with the provider before applying it.
func (h *WebhookHandler) PaymentCallback(c *gin.Context) {
	orderID := c.Query("order_id")
	reference := c.Query("paymentId")
	if reference == "" {
		reference = c.Query("track_id")
	}
	if orderID == "" || reference == "" {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Missing callback parameters.", "order_id and payment reference are required"))
		return
	}

	order, err := h.paymentService.HandleCallback(c.Request.Context(), c.Param("provider"), orderID, reference)
	if err != nil {
		h.respondWebhookError(c, err, "PaymentCallback")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id":       order.ID,
		"order_number":   order.OrderNumber,
		"payment_status": order.PaymentStatus,
	})
}

// DeliveryWebhook handles a courier's status push. Unknown delivery codes
// return 404 without touching any order so the courier retries after the
// reference index catches up.
func (h *WebhookHandler) DeliveryWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeBadRequest, "Failed to read payload.", ""))
		return
	}

	// Header names are lower-cased; adapters match their provider's exact
	// header spelling against this map.
	headers := make(map[string]string, len(c.Request.Header))
	for name, values := range c.Request.Header {
		if len(values) > 0 {
			headers[strings.ToLower(name)] = values[0]
		}
	}

	err = h.deliveryService.HandleWebhook(c.Request.Context(), c.Param("provider"), payload, headers)
	if err != nil {
		h.respondWebhookError(c, err, "DeliveryWebhook")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

func (h *WebhookHandler) respondWebhookError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Order not found.", ""))
	case errors.Is(err, services.ErrUnknownProvider):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Unknown provider.", ""))
	case errors.Is(err, services.ErrWebhookUnverified):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Webhook verification failed.", ""))
	case errors.Is(err, services.ErrValidation):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid payload.", err.Error()))
	case errors.Is(err, services.ErrIntegrationNotConfigured), errors.Is(err, services.ErrIntegrationDisabled):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeIntegrationDisabled, "Integration is not configured or disabled.", ""))
	case errors.Is(err, services.ErrConflict):
		// The provider will retry and observe the fresh state.
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "State changed concurrently.", ""))
	default:
		utils.LogError(err, op+": unexpected service error")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Webhook processing failed.", "Internal error"))
	}
}
