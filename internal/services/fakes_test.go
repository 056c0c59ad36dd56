package services

import (
	"fmt"
	"sync"

	"github.com/riwaai/riwa-pos-backend/internal/fanout"
	"github.com/riwaai/riwa-pos-backend/internal/models"
	"github.com/riwaai/riwa-pos-backend/internal/repositories"
)

// fakeOrderRepo is an in-memory OrderRepository with the same precondition
// semantics as the SQL implementation.
type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	items  map[string][]models.OrderItem

	// hookBeforeUpdate runs inside the lock before a status update checks its
	// precondition, to simulate a concurrent writer winning the race.
	hookBeforeUpdate func()
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders: make(map[string]*models.Order),
		items:  make(map[string][]models.OrderItem),
	}
}

func (r *fakeOrderRepo) put(order *models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *order
	r.orders[order.ID] = &cp
}

func (r *fakeOrderRepo) CreateOrder(_ repositories.SQLExecutor, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return repositories.ErrDuplicateKey
	}
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) CreateOrderItem(_ repositories.SQLExecutor, item *models.OrderItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.OrderID] = append(r.items[item.OrderID], *item)
	return nil
}

func (r *fakeOrderRepo) CreateOrderWithItems(order *models.Order, items []models.OrderItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return repositories.ErrDuplicateKey
	}
	cp := *order
	r.orders[order.ID] = &cp
	r.items[order.ID] = append([]models.OrderItem(nil), items...)
	return nil
}

func (r *fakeOrderRepo) GetOrderByID(orderID, tenantID string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok || order.TenantID != tenantID {
		return nil, repositories.ErrNotFound
	}
	cp := *order
	return &cp, nil
}

func (r *fakeOrderRepo) GetOrderAnyTenant(orderID string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *order
	return &cp, nil
}

func (r *fakeOrderRepo) GetOrderItemsByOrderID(orderID string) ([]models.OrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.OrderItem(nil), r.items[orderID]...), nil
}

func (r *fakeOrderRepo) GetOrders(filters models.OrderFilters) ([]models.Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, order := range r.orders {
		if order.TenantID != filters.TenantID {
			continue
		}
		if filters.Status != nil && order.Status != *filters.Status {
			continue
		}
		out = append(out, *order)
	}
	return out, len(out), nil
}

func (r *fakeOrderRepo) ListActive(tenantID string) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, order := range r.orders {
		if order.TenantID == tenantID && !order.IsTerminal() {
			out = append(out, *order)
		}
	}
	return out, nil
}

func applyUpdate(order *models.Order, fields models.OrderStatusUpdate) {
	if fields.Status != nil {
		order.Status = *fields.Status
	}
	if fields.PaymentStatus != nil {
		order.PaymentStatus = *fields.PaymentStatus
	}
	if fields.PaymentMethod != nil {
		order.PaymentMethod = fields.PaymentMethod
	}
	if fields.PaymentReference != nil {
		order.PaymentReference = fields.PaymentReference
	}
	if fields.DeliveryStatus != nil {
		order.DeliveryStatus = fields.DeliveryStatus
	}
	if fields.DeliveryTracking != nil {
		order.DeliveryTracking = fields.DeliveryTracking
	}
	if fields.AcceptedAt != nil {
		order.AcceptedAt = fields.AcceptedAt
	}
	if fields.ReadyAt != nil {
		order.ReadyAt = fields.ReadyAt
	}
	if fields.DispatchedAt != nil {
		order.DispatchedAt = fields.DispatchedAt
	}
	if fields.CompletedAt != nil {
		order.CompletedAt = fields.CompletedAt
	}
	if fields.CancelledAt != nil {
		order.CancelledAt = fields.CancelledAt
	}
	if fields.PaidAt != nil {
		order.PaidAt = fields.PaidAt
	}
	order.UpdatedAt = fields.UpdatedAt
}

func (r *fakeOrderRepo) UpdateOrderStatus(_ repositories.SQLExecutor, orderID, tenantID, expectedStatus string, fields models.OrderStatusUpdate) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hookBeforeUpdate != nil {
		r.hookBeforeUpdate()
	}
	order, ok := r.orders[orderID]
	if !ok || order.TenantID != tenantID || order.Status != expectedStatus {
		return 0, nil
	}
	applyUpdate(order, fields)
	return 1, nil
}

func (r *fakeOrderRepo) UpdatePayment(_ repositories.SQLExecutor, orderID, tenantID, expectedPaymentStatus string, fields models.OrderStatusUpdate) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok || order.TenantID != tenantID || order.PaymentStatus != expectedPaymentStatus {
		return 0, nil
	}
	applyUpdate(order, fields)
	return 1, nil
}

// fakeReferenceRepo is an in-memory ReferenceRepository.
type fakeReferenceRepo struct {
	mu   sync.Mutex
	refs map[string]*models.ProviderReference
}

func newFakeReferenceRepo() *fakeReferenceRepo {
	return &fakeReferenceRepo{refs: make(map[string]*models.ProviderReference)}
}

func refKey(kind, providerID, reference string) string {
	return fmt.Sprintf("%s/%s/%s", kind, providerID, reference)
}

func (r *fakeReferenceRepo) CreateReference(_ repositories.SQLExecutor, ref *models.ProviderReference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := refKey(ref.Kind, ref.ProviderID, ref.Reference)
	if _, exists := r.refs[key]; exists {
		return repositories.ErrDuplicateKey
	}
	cp := *ref
	r.refs[key] = &cp
	return nil
}

func (r *fakeReferenceRepo) ResolveReference(kind, providerID, reference string) (*models.ProviderReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.refs[refKey(kind, providerID, reference)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *ref
	return &cp, nil
}

// fakeIntegrationRepo is an in-memory IntegrationRepository.
type fakeIntegrationRepo struct {
	mu      sync.Mutex
	configs map[string]*models.IntegrationConfig
}

func newFakeIntegrationRepo() *fakeIntegrationRepo {
	return &fakeIntegrationRepo{configs: make(map[string]*models.IntegrationConfig)}
}

func (r *fakeIntegrationRepo) key(tenantID, providerID string) string {
	return tenantID + "/" + providerID
}

func (r *fakeIntegrationRepo) GetIntegration(tenantID, providerID string) (*models.IntegrationConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[r.key(tenantID, providerID)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (r *fakeIntegrationRepo) ListIntegrations(tenantID string) ([]models.IntegrationConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.IntegrationConfig
	for _, cfg := range r.configs {
		if cfg.TenantID == tenantID {
			out = append(out, *cfg)
		}
	}
	return out, nil
}

func (r *fakeIntegrationRepo) UpsertIntegration(_ repositories.SQLExecutor, cfg *models.IntegrationConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cfg
	r.configs[r.key(cfg.TenantID, cfg.ProviderID)] = &cp
	return nil
}

// recordingPublisher captures fanout events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []fanout.Event
}

func (p *recordingPublisher) Publish(event fanout.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
