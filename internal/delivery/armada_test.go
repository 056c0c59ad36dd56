package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/riwaai/riwa-pos-backend/internal/models"
	"github.com/riwaai/riwa-pos-backend/internal/payments"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func armadaConfig() *models.IntegrationConfig {
	return &models.IntegrationConfig{
		TenantID:   "tenant-1",
		ProviderID: ProviderArmada,
		Enabled:    true,
		Config:     map[string]string{"api_key": "armada-key", "webhook_key": "hook-key"},
	}
}

func TestArmadaStatusMapping(t *testing.T) {
	assert.Equal(t, models.DeliveryPending, mapArmadaStatus("pending"))
	assert.Equal(t, models.DeliveryDriverAssigned, mapArmadaStatus("dispatched"))
	assert.Equal(t, models.DeliveryDriverArrived, mapArmadaStatus("waiting_pack"))
	assert.Equal(t, models.DeliveryOutForDelivery, mapArmadaStatus("en_route"))
	assert.Equal(t, models.DeliveryDelivered, mapArmadaStatus("completed"))
	assert.Equal(t, models.DeliveryCancelled, mapArmadaStatus("canceled"))
	assert.Equal(t, models.DeliveryFailed, mapArmadaStatus("failed"))
	// Unmapped statuses pass through raw.
	assert.Equal(t, "returning", mapArmadaStatus("returning"))
}

func TestDropoffValidate(t *testing.T) {
	coords := Dropoff{Latitude: 29.37, Longitude: 47.98}
	assert.NoError(t, coords.Validate())

	address := Dropoff{Area: "Salmiya", Block: "2", Street: "Salem Al Mubarak", Building: "12"}
	assert.NoError(t, address.Validate())

	both := Dropoff{Latitude: 29.37, Longitude: 47.98, Area: "Salmiya"}
	assert.Error(t, both.Validate())

	neither := Dropoff{Instructions: "ring the bell"}
	assert.Error(t, neither.Validate())
}

func TestArmadaCreateDelivery(t *testing.T) {
	var got armadaCreateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v0/deliveries", r.URL.Path)
		require.Equal(t, "Key armada-key", r.Header.Get("Authorization"))
		require.Equal(t, "hook-key", r.Header.Get(WebhookKeyHeader))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":         "D12345",
			"orderStatus":  "pending",
			"deliveryFee":  0.750,
			"trackingLink": "https://track.armadadelivery.com/D12345",
		})
	}))
	defer server.Close()

	adapter := NewArmadaAdapter(server.Client())
	adapter.baseURL = server.URL

	result, err := adapter.CreateDelivery(context.Background(), armadaConfig(), CreateRequest{
		Order:    &models.Order{ID: "order-1"},
		Customer: models.DriverInfo{Name: "Fatima", Phone: "90001234"},
		Dropoff:  Dropoff{Latitude: 29.37, Longitude: 47.98},
		Amount:   4.5,
	})
	require.NoError(t, err)

	assert.Equal(t, "D12345", result.DeliveryCode)
	assert.Equal(t, models.DeliveryPending, result.Status)
	assert.Equal(t, 0.750, result.Fee)

	assert.Equal(t, "order-1", got.PlatformData.OrderID)
	// Armada wants the amount as a fixed three-decimal string.
	assert.Equal(t, "4.500", got.PlatformData.Amount)
	assert.Equal(t, "paid", got.PlatformData.PaymentType)
	require.NotNil(t, got.PlatformData.Location)
	assert.Equal(t, 29.37, got.PlatformData.Location.Latitude)
	assert.Empty(t, got.PlatformData.Area)
}

func TestArmadaCreateDeliveryRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "out of coverage"})
	}))
	defer server.Close()

	adapter := NewArmadaAdapter(server.Client())
	adapter.baseURL = server.URL

	_, err := adapter.CreateDelivery(context.Background(), armadaConfig(), CreateRequest{
		Order:   &models.Order{ID: "order-1"},
		Dropoff: Dropoff{Latitude: 29.37, Longitude: 47.98},
	})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "out of coverage")
}

func TestArmadaCancelDeliveryEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v0/deliveries/D12345/cancel", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewArmadaAdapter(server.Client())
	adapter.baseURL = server.URL

	assert.NoError(t, adapter.CancelDelivery(context.Background(), armadaConfig(), "D12345"))
}

func TestArmadaNormalizeWebhook(t *testing.T) {
	adapter := NewArmadaAdapter(payments.NewHTTPClient(0))

	event, err := adapter.NormalizeWebhook([]byte(`{
		"code": "D12345",
		"orderStatus": "en_route",
		"trackingLink": "https://track.armadadelivery.com/D12345",
		"driver": {"name": "Ali", "phone": "99887766"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "D12345", event.DeliveryCode)
	assert.Equal(t, models.DeliveryOutForDelivery, event.Status)
	assert.Equal(t, "en_route", event.RawStatus)
	require.NotNil(t, event.Driver)
	assert.Equal(t, "Ali", event.Driver.Name)

	_, err = adapter.NormalizeWebhook([]byte(`{"orderStatus": "en_route"}`))
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestArmadaVerifyWebhook(t *testing.T) {
	adapter := NewArmadaAdapter(payments.NewHTTPClient(0))
	cfg := armadaConfig()

	assert.NoError(t, adapter.VerifyWebhook(cfg, map[string]string{WebhookKeyHeader: "hook-key"}))
	assert.Error(t, adapter.VerifyWebhook(cfg, map[string]string{WebhookKeyHeader: "wrong"}))
	assert.Error(t, adapter.VerifyWebhook(cfg, map[string]string{}))

	// No configured key means the tenant opted out of webhook auth.
	cfg.Config = map[string]string{"api_key": "armada-key"}
	assert.NoError(t, adapter.VerifyWebhook(cfg, map[string]string{}))
}
