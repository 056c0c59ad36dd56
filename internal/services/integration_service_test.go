package services

import (
	"context"
	"testing"

	"github.com/riwaai/riwa-pos-backend/internal/delivery"
	"github.com/riwaai/riwa-pos-backend/internal/models"
	"github.com/riwaai/riwa-pos-backend/internal/payments"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntegrationServiceForTest(configs *fakeIntegrationRepo, adapter *fakePaymentAdapter) IntegrationService {
	return NewIntegrationService(
		configs,
		payments.NewRegistry(adapter),
		delivery.NewRegistry(),
		nil,
	)
}

func TestIntegrationSaveAndResolve(t *testing.T) {
	configs := newFakeIntegrationRepo()
	svc := newIntegrationServiceForTest(configs, &fakePaymentAdapter{id: "myfatoorah"})

	err := svc.Save("tenant-1", SaveIntegrationRequest{
		ProviderID: "myfatoorah",
		Category:   "payments",
		Enabled:    true,
		Config:     map[string]string{"api_key": "mf-secret-key-1234", "webhook_secret": "whsec"},
	})
	require.NoError(t, err)

	cfg, err := svc.ResolveEnabled("tenant-1", "myfatoorah")
	require.NoError(t, err)
	assert.Equal(t, "mf-secret-key-1234", cfg.ConfigValue("api_key"))
	assert.False(t, cfg.UpdatedAt.IsZero())
}

func TestIntegrationResolveUnconfigured(t *testing.T) {
	svc := newIntegrationServiceForTest(newFakeIntegrationRepo(), &fakePaymentAdapter{id: "myfatoorah"})

	_, err := svc.ResolveEnabled("tenant-1", "myfatoorah")
	assert.ErrorIs(t, err, ErrIntegrationNotConfigured)
}

func TestIntegrationResolveDisabled(t *testing.T) {
	configs := newFakeIntegrationRepo()
	svc := newIntegrationServiceForTest(configs, &fakePaymentAdapter{id: "myfatoorah"})

	require.NoError(t, svc.Save("tenant-1", SaveIntegrationRequest{
		ProviderID: "myfatoorah",
		Category:   "payments",
		Enabled:    false,
		Config:     map[string]string{"api_key": "mf-secret-key-1234"},
	}))

	_, err := svc.ResolveEnabled("tenant-1", "myfatoorah")
	assert.ErrorIs(t, err, ErrIntegrationDisabled)
}

func TestIntegrationListRedactsCredentials(t *testing.T) {
	configs := newFakeIntegrationRepo()
	svc := newIntegrationServiceForTest(configs, &fakePaymentAdapter{id: "myfatoorah"})

	require.NoError(t, svc.Save("tenant-1", SaveIntegrationRequest{
		ProviderID: "myfatoorah",
		Category:   "payments",
		Enabled:    true,
		Config: map[string]string{
			"api_key":     "mf-secret-key-1234",
			"environment": "production",
		},
	}))
	require.NoError(t, svc.Save("tenant-2", SaveIntegrationRequest{
		ProviderID: "myfatoorah",
		Category:   "payments",
		Enabled:    true,
		Config:     map[string]string{"api_key": "other-tenant-key"},
	}))

	listed, err := svc.List("tenant-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)

	assert.Equal(t, "**************1234", listed[0].Config["api_key"])
	assert.Equal(t, "production", listed[0].Config["environment"])

	// The stored value stays intact for the adapters.
	stored, err := configs.GetIntegration("tenant-1", "myfatoorah")
	require.NoError(t, err)
	assert.Equal(t, "mf-secret-key-1234", stored.ConfigValue("api_key"))
}

func TestIntegrationTestConnection(t *testing.T) {
	adapter := &fakePaymentAdapter{id: "myfatoorah"}
	svc := newIntegrationServiceForTest(newFakeIntegrationRepo(), adapter)

	req := TestIntegrationRequest{
		ProviderID: "myfatoorah",
		Config:     map[string]string{"api_key": "candidate-key"},
	}
	assert.NoError(t, svc.Test(context.Background(), req))

	adapter.testErr = payments.ErrRejected
	assert.ErrorIs(t, svc.Test(context.Background(), req), ErrProviderRejected)

	adapter.testErr = payments.ErrUnreachable
	assert.ErrorIs(t, svc.Test(context.Background(), req), ErrProviderUnreachable)
}

func TestIntegrationTestUnknownProvider(t *testing.T) {
	svc := newIntegrationServiceForTest(newFakeIntegrationRepo(), &fakePaymentAdapter{id: "myfatoorah"})

	err := svc.Test(context.Background(), TestIntegrationRequest{
		ProviderID: "stripe",
		Config:     map[string]string{"api_key": "sk_test"},
	})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRedactedMasksSensitiveKeys(t *testing.T) {
	cfg := models.IntegrationConfig{
		Config: map[string]string{
			"api_key":        "mf-secret-key-1234",
			"webhook_secret": "abc",
			"auth_token":     "token-value-9",
			"environment":    "production",
		},
	}
	out := cfg.Redacted()

	assert.Equal(t, "**************1234", out.Config["api_key"])
	assert.Equal(t, "***", out.Config["webhook_secret"])
	assert.Equal(t, "*********en-9", out.Config["auth_token"])
	assert.Equal(t, "production", out.Config["environment"])
}
