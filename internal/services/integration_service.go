package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/riwaai/riwa-pos-backend/internal/delivery"
	"github.com/riwaai/riwa-pos-backend/internal/models"
	"github.com/riwaai/riwa-pos-backend/internal/payments"
	"github.com/riwaai/riwa-pos-backend/internal/repositories"
)

// SaveIntegrationRequest replaces a provider's whole configuration. Partial
// merges are deliberately not offered; see IntegrationRepository.
type SaveIntegrationRequest struct {
	ProviderID string            `json:"integration_id" binding:"required"`
	Category   string            `json:"category" binding:"required,oneof=payments delivery aggregator"`
	Enabled    bool              `json:"enabled"`
	Config     map[string]string `json:"config" binding:"required"`
}

// TestIntegrationRequest checks credentials against the provider's API
// without persisting them.
type TestIntegrationRequest struct {
	ProviderID string            `json:"integration_id" binding:"required"`
	Config     map[string]string `json:"config" binding:"required"`
}

// IntegrationService resolves per-tenant provider configuration for the
// adapters and backs the admin integrations screen. Credential values are
// redacted on every read path and never logged.
type IntegrationService interface {
	// ResolveEnabled returns the live configuration, or
	// ErrIntegrationNotConfigured / ErrIntegrationDisabled before any
	// network call is attempted.
	ResolveEnabled(tenantID, providerID string) (*models.IntegrationConfig, error)
	List(tenantID string) ([]models.IntegrationConfig, error)
	Save(tenantID string, req SaveIntegrationRequest) error
	Test(ctx context.Context, req TestIntegrationRequest) error
}

type integrationService struct {
	integrationRepo  repositories.IntegrationRepository
	paymentRegistry  *payments.Registry
	deliveryRegistry *delivery.Registry
	db               *sql.DB
}

// NewIntegrationService creates a new instance of IntegrationService.
func NewIntegrationService(
	integrationRepo repositories.IntegrationRepository,
	paymentRegistry *payments.Registry,
	deliveryRegistry *delivery.Registry,
	db *sql.DB,
) IntegrationService {
	return &integrationService{
		integrationRepo:  integrationRepo,
		paymentRegistry:  paymentRegistry,
		deliveryRegistry: deliveryRegistry,
		db:               db,
	}
}

func (s *integrationService) ResolveEnabled(tenantID, providerID string) (*models.IntegrationConfig, error) {
	cfg, err := s.integrationRepo.GetIntegration(tenantID, providerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrIntegrationNotConfigured, providerID)
		}
		return nil, fmt.Errorf("failed to resolve integration %s: %w", providerID, err)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrIntegrationDisabled, providerID)
	}
	return cfg, nil
}

// List returns all of the tenant's configurations with credentials masked.
func (s *integrationService) List(tenantID string) ([]models.IntegrationConfig, error) {
	configs, err := s.integrationRepo.ListIntegrations(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	redacted := make([]models.IntegrationConfig, 0, len(configs))
	for i := range configs {
		redacted = append(redacted, configs[i].Redacted())
	}
	return redacted, nil
}

func (s *integrationService) Save(tenantID string, req SaveIntegrationRequest) error {
	cfg := &models.IntegrationConfig{
		TenantID:   tenantID,
		ProviderID: req.ProviderID,
		Category:   req.Category,
		Enabled:    req.Enabled,
		Config:     req.Config,
		UpdatedAt:  time.Now(),
	}
	if err := s.integrationRepo.UpsertIntegration(s.db, cfg); err != nil {
		return fmt.Errorf("failed to save integration %s: %w", req.ProviderID, err)
	}
	return nil
}

// Test makes one lightweight authenticated call against the provider using
// the submitted (unsaved) credentials.
func (s *integrationService) Test(ctx context.Context, req TestIntegrationRequest) error {
	cfg := &models.IntegrationConfig{ProviderID: req.ProviderID, Config: req.Config}

	if adapter, ok := s.paymentRegistry.Get(req.ProviderID); ok {
		return mapProviderError(adapter.TestConnection(ctx, cfg))
	}
	if adapter, ok := s.deliveryRegistry.Get(req.ProviderID); ok {
		return mapProviderError(adapter.TestConnection(ctx, cfg))
	}
	return fmt.Errorf("%w: %s", ErrUnknownProvider, req.ProviderID)
}

// mapProviderError folds the adapters' package-local sentinels into the
// service taxonomy at the layer boundary.
func mapProviderError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, payments.ErrUnreachable), errors.Is(err, delivery.ErrUnreachable):
		return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	case errors.Is(err, payments.ErrRejected), errors.Is(err, delivery.ErrRejected):
		return fmt.Errorf("%w: %v", ErrProviderRejected, err)
	case errors.Is(err, payments.ErrBadPayload), errors.Is(err, delivery.ErrBadPayload):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		return err
	}
}
