package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/riwaai/riwa-pos-backend/internal/models"
)

// IntegrationRepository stores the per-tenant provider configurations.
type IntegrationRepository interface {
	GetIntegration(tenantID, providerID string) (*models.IntegrationConfig, error)
	ListIntegrations(tenantID string) ([]models.IntegrationConfig, error)
	// UpsertIntegration replaces the whole row. Field-by-field merges under
	// concurrent writers would interleave partial configurations.
	UpsertIntegration(executor SQLExecutor, cfg *models.IntegrationConfig) error
}

type integrationRepository struct {
	db *sql.DB
}

// NewIntegrationRepository creates a new instance of IntegrationRepository.
func NewIntegrationRepository(db *sql.DB) IntegrationRepository {
	return &integrationRepository{db: db}
}

func (r *integrationRepository) GetIntegration(tenantID, providerID string) (*models.IntegrationConfig, error) {
	cfg := &models.IntegrationConfig{}
	var rawConfig []byte
	query := `SELECT tenant_id, provider_id, category, enabled, config, updated_at
	          FROM integration_configs
	          WHERE tenant_id = $1 AND provider_id = $2`
	err := r.db.QueryRow(query, tenantID, providerID).Scan(
		&cfg.TenantID, &cfg.ProviderID, &cfg.Category, &cfg.Enabled, &rawConfig, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting integration %s: %v", ErrDatabaseError, providerID, err)
	}
	if err := json.Unmarshal(rawConfig, &cfg.Config); err != nil {
		return nil, fmt.Errorf("%w: decoding integration config %s: %v", ErrDatabaseError, providerID, err)
	}
	return cfg, nil
}

func (r *integrationRepository) ListIntegrations(tenantID string) ([]models.IntegrationConfig, error) {
	configs := []models.IntegrationConfig{}
	query := `SELECT tenant_id, provider_id, category, enabled, config, updated_at
	          FROM integration_configs
	          WHERE tenant_id = $1
	          ORDER BY provider_id`

	rows, err := r.db.Query(query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying integrations: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		cfg := models.IntegrationConfig{}
		var rawConfig []byte
		if err := rows.Scan(&cfg.TenantID, &cfg.ProviderID, &cfg.Category, &cfg.Enabled, &rawConfig, &cfg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning integration: %v", ErrDatabaseError, err)
		}
		if err := json.Unmarshal(rawConfig, &cfg.Config); err != nil {
			return nil, fmt.Errorf("%w: decoding integration config %s: %v", ErrDatabaseError, cfg.ProviderID, err)
		}
		configs = append(configs, cfg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating integration rows: %v", ErrDatabaseError, err)
	}
	return configs, nil
}

func (r *integrationRepository) UpsertIntegration(executor SQLExecutor, cfg *models.IntegrationConfig) error {
	rawConfig, err := json.Marshal(cfg.Config)
	if err != nil {
		return fmt.Errorf("%w: encoding integration config %s: %v", ErrDatabaseError, cfg.ProviderID, err)
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now()
	}

	query := `INSERT INTO integration_configs (tenant_id, provider_id, category, enabled, config, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT (tenant_id, provider_id)
	          DO UPDATE SET category = EXCLUDED.category, enabled = EXCLUDED.enabled,
	                        config = EXCLUDED.config, updated_at = EXCLUDED.updated_at`
	_, err = executor.Exec(query, cfg.TenantID, cfg.ProviderID, cfg.Category, cfg.Enabled, rawConfig, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: saving integration %s: %v", ErrDatabaseError, cfg.ProviderID, err)
	}
	return nil
}
