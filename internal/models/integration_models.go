package models

import (
	"strings"
	"time"
)

// Integration categories.
const (
	CategoryPayments   = "payments"
	CategoryDelivery   = "delivery"
	CategoryAggregator = "aggregator"
)

// IntegrationConfig is the per-tenant configuration of one external provider.
// Config holds provider-specific credential/environment fields (api_key,
// merchant_id, environment, webhook_secret, ...). Read-mostly; admin writes
// replace the whole config, never merge field-by-field.
type IntegrationConfig struct {
	TenantID   string            `json:"tenant_id" db:"tenant_id"`
	ProviderID string            `json:"provider_id" db:"provider_id"`
	Category   string            `json:"category" db:"category"`
	Enabled    bool              `json:"enabled" db:"enabled"`
	Config     map[string]string `json:"config" db:"config"`
	UpdatedAt  time.Time         `json:"updated_at" db:"updated_at"`
}

// ConfigValue returns the named config field, or "" when absent.
func (c *IntegrationConfig) ConfigValue(key string) string {
	if c.Config == nil {
		return ""
	}
	return c.Config[key]
}

// Redacted returns a copy safe to echo back to clients: credential-looking
// values are masked down to their last four characters.
func (c *IntegrationConfig) Redacted() IntegrationConfig {
	out := *c
	out.Config = make(map[string]string, len(c.Config))
	for k, v := range c.Config {
		if isSensitiveConfigKey(k) {
			out.Config[k] = maskValue(v)
		} else {
			out.Config[k] = v
		}
	}
	return out
}

func isSensitiveConfigKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "key") || strings.Contains(k, "secret") || strings.Contains(k, "token") || strings.Contains(k, "password")
}

func maskValue(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}

// Provider reference kinds. A reference row correlates an asynchronous
// provider callback (which carries only the provider's own identifier) back
// to the internal order it belongs to.
const (
	ReferenceKindPayment  = "payment"
	ReferenceKindDelivery = "delivery"
)

// ProviderReference is the persisted (provider reference -> order) index,
// written at adapter-initiation time so webhooks survive process restarts.
type ProviderReference struct {
	ID         int64     `json:"id" db:"id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	OrderID    string    `json:"order_id" db:"order_id"`
	Kind       string    `json:"kind" db:"kind"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	Reference  string    `json:"reference" db:"reference"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
