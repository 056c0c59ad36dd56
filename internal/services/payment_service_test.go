package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/riwaai/riwa-pos-backend/internal/delivery"
	"github.com/riwaai/riwa-pos-backend/internal/models"
	"github.com/riwaai/riwa-pos-backend/internal/payments"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePaymentAdapter is a canned payments.Adapter.
type fakePaymentAdapter struct {
	id            string
	initiateErr   error
	testErr       error
	verifyOutcome *models.PaymentOutcome
}

func (a *fakePaymentAdapter) ProviderID() string { return a.id }

func (a *fakePaymentAdapter) Initiate(_ context.Context, _ *models.IntegrationConfig, req payments.InitiateRequest) (*payments.InitiateResult, error) {
	if a.initiateErr != nil {
		return nil, a.initiateErr
	}
	return &payments.InitiateResult{
		PaymentURL:        "https://pay.example.com/" + req.Order.ID,
		ProviderReference: "inv-" + req.Order.ID,
	}, nil
}

func (a *fakePaymentAdapter) NormalizeCallback(payload []byte) (*models.PaymentOutcome, error) {
	var outcome models.PaymentOutcome
	if err := json.Unmarshal(payload, &outcome); err != nil {
		return nil, payments.ErrBadPayload
	}
	return &outcome, nil
}

func (a *fakePaymentAdapter) Verify(_ context.Context, _ *models.IntegrationConfig, _ string) (*models.PaymentOutcome, error) {
	return a.verifyOutcome, nil
}

func (a *fakePaymentAdapter) TestConnection(_ context.Context, _ *models.IntegrationConfig) error {
	return a.testErr
}

type paymentFixture struct {
	svc     PaymentService
	orders  *fakeOrderRepo
	refs    *fakeReferenceRepo
	configs *fakeIntegrationRepo
	adapter *fakePaymentAdapter
	pub     *recordingPublisher
}

func newPaymentFixture() *paymentFixture {
	orders := newFakeOrderRepo()
	refs := newFakeReferenceRepo()
	configs := newFakeIntegrationRepo()
	adapter := &fakePaymentAdapter{id: "myfatoorah"}
	pub := &recordingPublisher{}

	registry := payments.NewRegistry(adapter)
	integration := NewIntegrationService(configs, registry, delivery.NewRegistry(), nil)
	svc := NewPaymentService(orders, refs, integration, registry, pub, nil)

	return &paymentFixture{svc: svc, orders: orders, refs: refs, configs: configs, adapter: adapter, pub: pub}
}

func (f *paymentFixture) enableProvider(config map[string]string) {
	f.configs.UpsertIntegration(nil, &models.IntegrationConfig{
		TenantID:   "tenant-1",
		ProviderID: "myfatoorah",
		Category:   "payments",
		Enabled:    true,
		Config:     config,
	})
}

func paidWebhook(t *testing.T, orderID string) []byte {
	t.Helper()
	payload, err := json.Marshal(models.PaymentOutcome{
		OrderID:           orderID,
		Status:            models.OutcomePaid,
		ProviderReference: "inv-" + orderID,
		RawStatus:         "Paid",
	})
	require.NoError(t, err)
	return payload
}

func TestInitiateStoresReference(t *testing.T) {
	f := newPaymentFixture()
	seedOrder(f.orders, models.StatusPlaced)
	f.enableProvider(map[string]string{"api_key": "k"})

	result, err := f.svc.Initiate(context.Background(), "tenant-1", "order-1", InitiatePaymentRequest{ProviderID: "myfatoorah"})
	require.NoError(t, err)
	assert.Equal(t, "inv-order-1", result.ProviderReference)

	ref, err := f.refs.ResolveReference(models.ReferenceKindPayment, "myfatoorah", "inv-order-1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", ref.OrderID)
	assert.Equal(t, "tenant-1", ref.TenantID)
}

func TestInitiateDisabledIntegrationShortCircuits(t *testing.T) {
	f := newPaymentFixture()
	seedOrder(f.orders, models.StatusPlaced)
	f.configs.UpsertIntegration(nil, &models.IntegrationConfig{
		TenantID: "tenant-1", ProviderID: "myfatoorah", Category: "payments",
		Enabled: false, Config: map[string]string{"api_key": "k"},
	})

	_, err := f.svc.Initiate(context.Background(), "tenant-1", "order-1", InitiatePaymentRequest{ProviderID: "myfatoorah"})
	assert.ErrorIs(t, err, ErrIntegrationDisabled)
}

func TestInitiateUnconfiguredIntegration(t *testing.T) {
	f := newPaymentFixture()
	seedOrder(f.orders, models.StatusPlaced)

	_, err := f.svc.Initiate(context.Background(), "tenant-1", "order-1", InitiatePaymentRequest{ProviderID: "myfatoorah"})
	assert.ErrorIs(t, err, ErrIntegrationNotConfigured)
}

func TestWebhookMarksOrderPaid(t *testing.T) {
	f := newPaymentFixture()
	seedOrder(f.orders, models.StatusPlaced)
	f.enableProvider(map[string]string{"api_key": "k"})

	err := f.svc.HandleWebhook(context.Background(), "myfatoorah", paidWebhook(t, "order-1"), "")
	require.NoError(t, err)

	order, err := f.orders.GetOrderAnyTenant("order-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)
	require.NotNil(t, order.PaidAt)
	require.NotNil(t, order.PaymentReference)
	assert.Equal(t, "inv-order-1", *order.PaymentReference)
	assert.Equal(t, 1, f.pub.count())
}

func TestWebhookDuplicateSuccessIsIdempotent(t *testing.T) {
	f := newPaymentFixture()
	seedOrder(f.orders, models.StatusPlaced)
	f.enableProvider(map[string]string{"api_key": "k"})

	payload := paidWebhook(t, "order-1")
	require.NoError(t, f.svc.HandleWebhook(context.Background(), "myfatoorah", payload, ""))
	first, _ := f.orders.GetOrderAnyTenant("order-1")

	// Providers retry; the second identical webhook must change nothing.
	require.NoError(t, f.svc.HandleWebhook(context.Background(), "myfatoorah", payload, ""))
	second, _ := f.orders.GetOrderAnyTenant("order-1")

	assert.Equal(t, first.PaymentStatus, second.PaymentStatus)
	assert.Equal(t, first.PaidAt, second.PaidAt)
	assert.Equal(t, 1, f.pub.count())
}

func TestWebhookPaidAfterRefundIsIgnored(t *testing.T) {
	f := newPaymentFixture()
	order := seedOrder(f.orders, models.StatusCompleted)
	order.PaymentStatus = models.PaymentRefunded
	f.orders.put(order)
	f.enableProvider(map[string]string{"api_key": "k"})

	require.NoError(t, f.svc.HandleWebhook(context.Background(), "myfatoorah", paidWebhook(t, "order-1"), ""))

	current, _ := f.orders.GetOrderAnyTenant("order-1")
	assert.Equal(t, models.PaymentRefunded, current.PaymentStatus)
	assert.Equal(t, 0, f.pub.count())
}

func TestWebhookSignatureVerification(t *testing.T) {
	f := newPaymentFixture()
	seedOrder(f.orders, models.StatusPlaced)
	f.enableProvider(map[string]string{"api_key": "k", "webhook_secret": "s3cret"})

	payload := paidWebhook(t, "order-1")

	err := f.svc.HandleWebhook(context.Background(), "myfatoorah", payload, "deadbeef")
	assert.ErrorIs(t, err, ErrWebhookUnverified)
	order, _ := f.orders.GetOrderAnyTenant("order-1")
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(payload)
	signature := hex.EncodeToString(mac.Sum(nil))

	require.NoError(t, f.svc.HandleWebhook(context.Background(), "myfatoorah", payload, signature))
	order, _ = f.orders.GetOrderAnyTenant("order-1")
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)
}

func TestWebhookFailedOutcome(t *testing.T) {
	f := newPaymentFixture()
	seedOrder(f.orders, models.StatusPlaced)
	f.enableProvider(map[string]string{"api_key": "k"})

	payload, err := json.Marshal(models.PaymentOutcome{
		OrderID: "order-1", Status: models.OutcomeFailed, RawStatus: "Declined",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleWebhook(context.Background(), "myfatoorah", payload, ""))
	order, _ := f.orders.GetOrderAnyTenant("order-1")
	assert.Equal(t, models.PaymentFailed, order.PaymentStatus)
	assert.Nil(t, order.PaidAt)
}

func (f *paymentFixture) indexReference(orderID, reference string) {
	f.refs.CreateReference(nil, &models.ProviderReference{
		TenantID:   "tenant-1",
		OrderID:    orderID,
		Kind:       models.ReferenceKindPayment,
		ProviderID: "myfatoorah",
		Reference:  reference,
	})
}

func TestCallbackVerifiesWithProvider(t *testing.T) {
	f := newPaymentFixture()
	seedOrder(f.orders, models.StatusPlaced)
	f.enableProvider(map[string]string{"api_key": "k"})
	f.indexReference("order-1", "inv-order-1")

	// The provider says paid even though the browser query alone is not
	// trusted.
	paidAt := time.Now().Add(-time.Minute)
	f.adapter.verifyOutcome = &models.PaymentOutcome{
		Status: models.OutcomePaid, RawStatus: "Paid", PaidAt: paidAt,
	}

	order, err := f.svc.HandleCallback(context.Background(), "myfatoorah", "order-1", "inv-order-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)
	require.NotNil(t, order.PaidAt)
	assert.WithinDuration(t, paidAt, *order.PaidAt, time.Second)
}

func TestCallbackRejectsReferenceForAnotherOrder(t *testing.T) {
	f := newPaymentFixture()
	cheap := seedOrder(f.orders, models.StatusPlaced)
	cheap.ID = "order-cheap"
	cheap.TotalAmount = 0.100
	f.orders.put(cheap)
	expensive := seedOrder(f.orders, models.StatusPlaced)
	expensive.ID = "order-expensive"
	expensive.TotalAmount = 100.000
	f.orders.put(expensive)
	f.enableProvider(map[string]string{"api_key": "k"})
	f.indexReference("order-cheap", "inv-order-cheap")

	// The provider confirms the cheap order's invoice as paid; replaying
	// that reference against a different order id must not stick.
	f.adapter.verifyOutcome = &models.PaymentOutcome{
		OrderID: "order-cheap", Status: models.OutcomePaid, RawStatus: "Paid",
	}

	_, err := f.svc.HandleCallback(context.Background(), "myfatoorah", "order-expensive", "inv-order-cheap")
	assert.ErrorIs(t, err, ErrWebhookUnverified)

	current, _ := f.orders.GetOrderAnyTenant("order-expensive")
	assert.Equal(t, models.PaymentPending, current.PaymentStatus)
	assert.Nil(t, current.PaidAt)
	assert.Equal(t, 0, f.pub.count())
}

func TestCallbackRejectsUnindexedReference(t *testing.T) {
	f := newPaymentFixture()
	seedOrder(f.orders, models.StatusPlaced)
	f.enableProvider(map[string]string{"api_key": "k"})

	// Outcome without an embedded order id and no reference row: nothing
	// ties the invoice to the requested order.
	f.adapter.verifyOutcome = &models.PaymentOutcome{
		Status: models.OutcomePaid, RawStatus: "Paid",
	}

	_, err := f.svc.HandleCallback(context.Background(), "myfatoorah", "order-1", "inv-unknown")
	assert.ErrorIs(t, err, ErrWebhookUnverified)

	current, _ := f.orders.GetOrderAnyTenant("order-1")
	assert.Equal(t, models.PaymentPending, current.PaymentStatus)
}

func TestCallbackRejectsIndexMismatch(t *testing.T) {
	f := newPaymentFixture()
	seedOrder(f.orders, models.StatusPlaced)
	other := seedOrder(f.orders, models.StatusPlaced)
	other.ID = "order-2"
	f.orders.put(other)
	f.enableProvider(map[string]string{"api_key": "k"})
	f.indexReference("order-2", "inv-order-2")

	f.adapter.verifyOutcome = &models.PaymentOutcome{
		Status: models.OutcomePaid, RawStatus: "Paid",
	}

	_, err := f.svc.HandleCallback(context.Background(), "myfatoorah", "order-1", "inv-order-2")
	assert.ErrorIs(t, err, ErrWebhookUnverified)

	current, _ := f.orders.GetOrderAnyTenant("order-1")
	assert.Equal(t, models.PaymentPending, current.PaymentStatus)
}
