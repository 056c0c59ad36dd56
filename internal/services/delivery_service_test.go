package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/riwaai/riwa-pos-backend/internal/delivery"
	"github.com/riwaai/riwa-pos-backend/internal/models"
	"github.com/riwaai/riwa-pos-backend/internal/payments"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDeliveryAdapter is a canned delivery.Adapter. Webhook payloads are
// DeliveryStatusEvent JSON; verification checks a fixed key header.
type fakeDeliveryAdapter struct {
	id        string
	createErr error
	cancelErr error
	cancelled []string
}

func (a *fakeDeliveryAdapter) ProviderID() string { return a.id }

func (a *fakeDeliveryAdapter) CreateDelivery(_ context.Context, _ *models.IntegrationConfig, req delivery.CreateRequest) (*delivery.CreateResult, error) {
	if a.createErr != nil {
		return nil, a.createErr
	}
	return &delivery.CreateResult{
		DeliveryCode: "job-" + req.Order.ID,
		Status:       models.DeliveryPending,
		TrackingLink: "https://track.example.com/job-" + req.Order.ID,
	}, nil
}

func (a *fakeDeliveryAdapter) CancelDelivery(_ context.Context, _ *models.IntegrationConfig, deliveryCode string) error {
	if a.cancelErr != nil {
		return a.cancelErr
	}
	a.cancelled = append(a.cancelled, deliveryCode)
	return nil
}

func (a *fakeDeliveryAdapter) GetStatus(_ context.Context, _ *models.IntegrationConfig, deliveryCode string) (*models.DeliveryStatusEvent, error) {
	return &models.DeliveryStatusEvent{DeliveryCode: deliveryCode, Status: models.DeliveryPending}, nil
}

func (a *fakeDeliveryAdapter) NormalizeWebhook(payload []byte) (*models.DeliveryStatusEvent, error) {
	var event models.DeliveryStatusEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, delivery.ErrBadPayload
	}
	return &event, nil
}

func (a *fakeDeliveryAdapter) VerifyWebhook(cfg *models.IntegrationConfig, headers map[string]string) error {
	if key := cfg.ConfigValue("webhook_key"); key != "" && headers[delivery.WebhookKeyHeader] != key {
		return errors.New("webhook key mismatch")
	}
	return nil
}

func (a *fakeDeliveryAdapter) TestConnection(_ context.Context, _ *models.IntegrationConfig) error {
	return nil
}

type deliveryFixture struct {
	svc     DeliveryService
	orders  *fakeOrderRepo
	refs    *fakeReferenceRepo
	configs *fakeIntegrationRepo
	adapter *fakeDeliveryAdapter
	pub     *recordingPublisher
}

func newDeliveryFixture() *deliveryFixture {
	orders := newFakeOrderRepo()
	refs := newFakeReferenceRepo()
	configs := newFakeIntegrationRepo()
	adapter := &fakeDeliveryAdapter{id: "armada"}
	pub := &recordingPublisher{}

	registry := delivery.NewRegistry(adapter)
	integration := NewIntegrationService(configs, payments.NewRegistry(), registry, nil)
	svc := NewDeliveryService(orders, refs, integration, registry, pub, nil)

	return &deliveryFixture{svc: svc, orders: orders, refs: refs, configs: configs, adapter: adapter, pub: pub}
}

func (f *deliveryFixture) enableProvider() {
	f.configs.UpsertIntegration(nil, &models.IntegrationConfig{
		TenantID:   "tenant-1",
		ProviderID: "armada",
		Category:   "delivery",
		Enabled:    true,
		Config:     map[string]string{"api_key": "k", "webhook_key": "hook-key"},
	})
}

func (f *deliveryFixture) createJob(t *testing.T) {
	t.Helper()
	_, err := f.svc.Create(context.Background(), "tenant-1", "order-1", CreateDeliveryRequest{
		ProviderID: "armada",
		Dropoff:    delivery.Dropoff{Latitude: 29.37, Longitude: 47.98},
	})
	require.NoError(t, err)
}

func statusWebhook(t *testing.T, code, status, raw string) []byte {
	t.Helper()
	payload, err := json.Marshal(models.DeliveryStatusEvent{
		DeliveryCode: code, Status: status, RawStatus: raw,
	})
	require.NoError(t, err)
	return payload
}

func webhookHeaders() map[string]string {
	return map[string]string{delivery.WebhookKeyHeader: "hook-key"}
}

func TestCreateDeliveryIndexesCode(t *testing.T) {
	f := newDeliveryFixture()
	seedOrder(f.orders, models.StatusReady)
	f.enableProvider()

	f.createJob(t)

	ref, err := f.refs.ResolveReference(models.ReferenceKindDelivery, "armada", "job-order-1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", ref.OrderID)

	order, _ := f.orders.GetOrderAnyTenant("order-1")
	require.NotNil(t, order.DeliveryStatus)
	assert.Equal(t, models.DeliveryPending, *order.DeliveryStatus)
	require.NotNil(t, order.DeliveryTracking)
}

func TestCreateDeliveryRejectsAmbiguousDropoff(t *testing.T) {
	f := newDeliveryFixture()
	seedOrder(f.orders, models.StatusReady)
	f.enableProvider()

	_, err := f.svc.Create(context.Background(), "tenant-1", "order-1", CreateDeliveryRequest{
		ProviderID: "armada",
		Dropoff:    delivery.Dropoff{Latitude: 29.37, Longitude: 47.98, Area: "Salmiya", Block: "2"},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestWebhookUnknownCodeMutatesNothing(t *testing.T) {
	f := newDeliveryFixture()
	seedOrder(f.orders, models.StatusReady)
	f.enableProvider()

	err := f.svc.HandleWebhook(context.Background(), "armada",
		statusWebhook(t, "job-unknown", models.DeliveryDelivered, "completed"), webhookHeaders())
	assert.ErrorIs(t, err, ErrOrderNotFound)

	order, _ := f.orders.GetOrderAnyTenant("order-1")
	assert.Equal(t, models.StatusReady, order.Status)
	assert.Nil(t, order.DeliveryStatus)
}

func TestWebhookRejectsBadKey(t *testing.T) {
	f := newDeliveryFixture()
	seedOrder(f.orders, models.StatusReady)
	f.enableProvider()
	f.createJob(t)

	err := f.svc.HandleWebhook(context.Background(), "armada",
		statusWebhook(t, "job-order-1", models.DeliveryDelivered, "completed"),
		map[string]string{delivery.WebhookKeyHeader: "wrong"})
	assert.ErrorIs(t, err, ErrWebhookUnverified)
}

func TestWebhookDeliveredCompletesOrder(t *testing.T) {
	f := newDeliveryFixture()
	seedOrder(f.orders, models.StatusOutForDelivery)
	f.enableProvider()
	f.createJob(t)

	err := f.svc.HandleWebhook(context.Background(), "armada",
		statusWebhook(t, "job-order-1", models.DeliveryDelivered, "completed"), webhookHeaders())
	require.NoError(t, err)

	order, _ := f.orders.GetOrderAnyTenant("order-1")
	assert.Equal(t, models.StatusCompleted, order.Status)
	require.NotNil(t, order.DeliveryStatus)
	assert.Equal(t, models.DeliveryDelivered, *order.DeliveryStatus)
	assert.NotNil(t, order.CompletedAt)
}

func TestWebhookDriverAssignedDoesNotAdvancePipeline(t *testing.T) {
	f := newDeliveryFixture()
	seedOrder(f.orders, models.StatusReady)
	f.enableProvider()
	f.createJob(t)

	err := f.svc.HandleWebhook(context.Background(), "armada",
		statusWebhook(t, "job-order-1", models.DeliveryDriverAssigned, "dispatched"), webhookHeaders())
	require.NoError(t, err)

	order, _ := f.orders.GetOrderAnyTenant("order-1")
	assert.Equal(t, models.StatusReady, order.Status)
	assert.Equal(t, models.DeliveryDriverAssigned, *order.DeliveryStatus)
}

func TestWebhookUnknownRawStatusPassesThrough(t *testing.T) {
	f := newDeliveryFixture()
	seedOrder(f.orders, models.StatusReady)
	f.enableProvider()
	f.createJob(t)

	err := f.svc.HandleWebhook(context.Background(), "armada",
		statusWebhook(t, "job-order-1", "weird_state", "weird_state"), webhookHeaders())
	require.NoError(t, err)

	order, _ := f.orders.GetOrderAnyTenant("order-1")
	// Stored for visibility, but the pipeline did not move.
	assert.Equal(t, models.StatusReady, order.Status)
	assert.Equal(t, "weird_state", *order.DeliveryStatus)
}

func TestWebhookCourierCancelDoesNotCancelOrder(t *testing.T) {
	f := newDeliveryFixture()
	seedOrder(f.orders, models.StatusPreparing)
	f.enableProvider()
	f.createJob(t)

	err := f.svc.HandleWebhook(context.Background(), "armada",
		statusWebhook(t, "job-order-1", models.DeliveryFailed, "failed"), webhookHeaders())
	require.NoError(t, err)

	// The kitchen keeps cooking; staff decide whether to redispatch or
	// cancel the order itself.
	order, _ := f.orders.GetOrderAnyTenant("order-1")
	assert.Equal(t, models.StatusPreparing, order.Status)
	assert.Equal(t, models.DeliveryFailed, *order.DeliveryStatus)
}

func TestCancelDeliveryUpdatesOrder(t *testing.T) {
	f := newDeliveryFixture()
	seedOrder(f.orders, models.StatusReady)
	f.enableProvider()
	f.createJob(t)

	err := f.svc.Cancel(context.Background(), "tenant-1", "armada", "job-order-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"job-order-1"}, f.adapter.cancelled)

	order, _ := f.orders.GetOrderAnyTenant("order-1")
	assert.Equal(t, models.DeliveryCancelled, *order.DeliveryStatus)
}

func TestCreateDeliveryProviderRejection(t *testing.T) {
	f := newDeliveryFixture()
	seedOrder(f.orders, models.StatusReady)
	f.enableProvider()
	f.adapter.createErr = delivery.ErrRejected

	_, err := f.svc.Create(context.Background(), "tenant-1", "order-1", CreateDeliveryRequest{
		ProviderID: "armada",
		Dropoff:    delivery.Dropoff{Latitude: 29.37, Longitude: 47.98},
	})
	assert.ErrorIs(t, err, ErrProviderRejected)
}

func TestWebhookSubstateUpdateToleratesLostRace(t *testing.T) {
	f := newDeliveryFixture()
	seedOrder(f.orders, models.StatusPreparing)
	f.enableProvider()
	f.createJob(t)

	// A staff transition lands between the webhook's read and its write.
	// The substate update misses, but the webhook must still succeed: the
	// next courier event carries the same state against a fresh read.
	f.orders.hookBeforeUpdate = func() {
		if order, ok := f.orders.orders["order-1"]; ok && order.Status == models.StatusPreparing {
			order.Status = models.StatusReady
		}
	}

	err := f.svc.HandleWebhook(context.Background(), "armada",
		statusWebhook(t, "job-order-1", models.DeliveryDriverAssigned, "dispatched"), webhookHeaders())
	require.NoError(t, err)

	order, _ := f.orders.GetOrderAnyTenant("order-1")
	assert.Equal(t, models.StatusReady, order.Status)
	require.NotNil(t, order.DeliveryStatus)
	assert.Equal(t, models.DeliveryPending, *order.DeliveryStatus)
}
