package handlers

import (
	"errors"
	"net/http"

	"github.com/riwaai/riwa-pos-backend/internal/middleware"
	"github.com/riwaai/riwa-pos-backend/internal/models"
	"github.com/riwaai/riwa-pos-backend/internal/services"
	"github.com/riwaai/riwa-pos-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// IntegrationHandler backs the admin integrations screen.
type IntegrationHandler struct {
	integrationService services.IntegrationService
}

// NewIntegrationHandler creates a new IntegrationHandler.
func NewIntegrationHandler(is services.IntegrationService) *IntegrationHandler {
	return &IntegrationHandler{integrationService: is}
}

// ListIntegrations returns the tenant's provider configurations with all
// credential values masked.
func (h *IntegrationHandler) ListIntegrations(c *gin.Context) {
	configs, err := h.integrationService.List(middleware.TenantID(c))
	if err != nil {
		utils.LogError(err, "ListIntegrations: Error from integrationService.List")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to fetch integrations.", "Internal error"))
		return
	}
	if configs == nil {
		configs = []models.IntegrationConfig{}
	}
	c.JSON(http.StatusOK, gin.H{"data": configs})
}

// SaveIntegration replaces a provider's configuration for the tenant.
func (h *IntegrationHandler) SaveIntegration(c *gin.Context) {
	var req services.SaveIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	if err := h.integrationService.Save(middleware.TenantID(c), req); err != nil {
		utils.LogError(err, "SaveIntegration: Error from integrationService.Save")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to save integration.", "Internal error"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Integration saved"})
}

// TestIntegration checks submitted credentials against the provider without
// persisting them.
func (h *IntegrationHandler) TestIntegration(c *gin.Context) {
	var req services.TestIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	if err := h.integrationService.Test(c.Request.Context(), req); err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownProvider):
			utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Unknown provider.", err.Error()))
		case errors.Is(err, services.ErrProviderRejected):
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadGateway, utils.ErrCodeProviderRejected, "Provider rejected the credentials.", err.Error()))
		case errors.Is(err, services.ErrProviderUnreachable):
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadGateway, utils.ErrCodeProviderUnreachable, "Provider is unreachable.", err.Error()))
		default:
			utils.LogError(err, "TestIntegration: Error from integrationService.Test")
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to test integration.", "Internal error"))
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Connection successful"})
}
