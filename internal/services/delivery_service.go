package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/riwaai/riwa-pos-backend/internal/delivery"
	"github.com/riwaai/riwa-pos-backend/internal/fanout"
	"github.com/riwaai/riwa-pos-backend/internal/models"
	"github.com/riwaai/riwa-pos-backend/internal/repositories"
	"github.com/riwaai/riwa-pos-backend/pkg/utils"
)

// CreateDeliveryRequest dispatches an order to a courier.
type CreateDeliveryRequest struct {
	ProviderID  string           `json:"provider_id" binding:"required"`
	Dropoff     delivery.Dropoff `json:"dropoff" binding:"required"`
	PaymentType string           `json:"payment_type"`
}

// DeliveryService manages courier jobs for orders and folds courier updates
// back into the order pipeline.
type DeliveryService interface {
	Create(ctx context.Context, tenantID, orderID string, req CreateDeliveryRequest) (*delivery.CreateResult, error)
	Cancel(ctx context.Context, tenantID, providerID, deliveryCode string) error
	GetStatus(ctx context.Context, tenantID, providerID, deliveryCode string) (*models.DeliveryStatusEvent, error)
	// HandleWebhook processes a courier's native webhook. headers carries the
	// relevant authentication headers lower-cased.
	HandleWebhook(ctx context.Context, providerID string, payload []byte, headers map[string]string) error
}

type deliveryService struct {
	orderRepo   repositories.OrderRepository
	refRepo     repositories.ReferenceRepository
	integration IntegrationService
	registry    *delivery.Registry
	publisher   fanout.Publisher
	db          *sql.DB
}

// NewDeliveryService creates a new instance of DeliveryService.
func NewDeliveryService(
	orderRepo repositories.OrderRepository,
	refRepo repositories.ReferenceRepository,
	integration IntegrationService,
	registry *delivery.Registry,
	publisher fanout.Publisher,
	db *sql.DB,
) DeliveryService {
	return &deliveryService{
		orderRepo:   orderRepo,
		refRepo:     refRepo,
		integration: integration,
		registry:    registry,
		publisher:   publisher,
		db:          db,
	}
}

func (s *deliveryService) Create(ctx context.Context, tenantID, orderID string, req CreateDeliveryRequest) (*delivery.CreateResult, error) {
	adapter, ok := s.registry.Get(req.ProviderID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, req.ProviderID)
	}
	if err := req.Dropoff.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	order, err := s.orderRepo.GetOrderByID(orderID, tenantID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to fetch order for delivery: %w", err)
	}
	if order.IsTerminal() {
		return nil, fmt.Errorf("%w: order %s is %s", ErrValidation, orderID, order.Status)
	}

	cfg, err := s.integration.ResolveEnabled(tenantID, req.ProviderID)
	if err != nil {
		return nil, err
	}

	customer := models.DriverInfo{}
	if order.CustomerName != nil {
		customer.Name = *order.CustomerName
	}
	if order.CustomerPhone != nil {
		customer.Phone = *order.CustomerPhone
	}

	result, err := adapter.CreateDelivery(ctx, cfg, delivery.CreateRequest{
		Order:       order,
		Customer:    customer,
		Dropoff:     req.Dropoff,
		Amount:      order.TotalAmount,
		PaymentType: req.PaymentType,
	})
	if err != nil {
		return nil, mapProviderError(err)
	}

	// The webhook only carries the delivery code, so the code-to-order index
	// must be durable before any courier callback can fire.
	err = s.refRepo.CreateReference(s.db, &models.ProviderReference{
		TenantID:   tenantID,
		OrderID:    orderID,
		Kind:       models.ReferenceKindDelivery,
		ProviderID: req.ProviderID,
		Reference:  result.DeliveryCode,
	})
	if err != nil && !errors.Is(err, repositories.ErrDuplicateKey) {
		return nil, fmt.Errorf("failed to record delivery reference: %w", err)
	}

	status := result.Status
	if status == "" {
		status = models.DeliveryPending
	}
	update := models.OrderStatusUpdate{
		DeliveryStatus: &status,
		UpdatedAt:      time.Now(),
	}
	if result.TrackingLink != "" {
		update.DeliveryTracking = &result.TrackingLink
	}
	if err := s.recordDeliveryState(order, update); err != nil {
		return nil, err
	}
	s.publisher.Publish(fanout.Event{TenantID: tenantID, OrderID: orderID, Status: order.Status})
	return result, nil
}

func (s *deliveryService) Cancel(ctx context.Context, tenantID, providerID, deliveryCode string) error {
	adapter, ok := s.registry.Get(providerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	cfg, err := s.integration.ResolveEnabled(tenantID, providerID)
	if err != nil {
		return err
	}
	if err := adapter.CancelDelivery(ctx, cfg, deliveryCode); err != nil {
		return mapProviderError(err)
	}

	ref, err := s.refRepo.ResolveReference(models.ReferenceKindDelivery, providerID, deliveryCode)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// Cancelled at the courier but never indexed. Nothing to update.
			utils.LogInfo("cancelled delivery has no order reference", map[string]interface{}{
				"provider":      providerID,
				"delivery_code": deliveryCode,
			})
			return nil
		}
		return fmt.Errorf("failed to resolve delivery reference: %w", err)
	}
	if ref.TenantID != tenantID {
		return ErrOrderNotFound
	}

	order, err := s.orderRepo.GetOrderByID(ref.OrderID, tenantID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("failed to fetch order for delivery cancel: %w", err)
	}
	cancelled := models.DeliveryCancelled
	update := models.OrderStatusUpdate{DeliveryStatus: &cancelled, UpdatedAt: time.Now()}
	if err := s.recordDeliveryState(order, update); err != nil {
		return err
	}
	s.publisher.Publish(fanout.Event{TenantID: tenantID, OrderID: order.ID, Status: order.Status})
	return nil
}

func (s *deliveryService) GetStatus(ctx context.Context, tenantID, providerID, deliveryCode string) (*models.DeliveryStatusEvent, error) {
	adapter, ok := s.registry.Get(providerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	cfg, err := s.integration.ResolveEnabled(tenantID, providerID)
	if err != nil {
		return nil, err
	}
	event, err := adapter.GetStatus(ctx, cfg, deliveryCode)
	if err != nil {
		return nil, mapProviderError(err)
	}
	return event, nil
}

func (s *deliveryService) HandleWebhook(ctx context.Context, providerID string, payload []byte, headers map[string]string) error {
	adapter, ok := s.registry.Get(providerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}

	event, err := adapter.NormalizeWebhook(payload)
	if err != nil {
		return mapProviderError(err)
	}

	// Unknown delivery codes must not mutate anything; the handler turns this
	// into a 404 so the courier retries once the reference lands.
	ref, err := s.refRepo.ResolveReference(models.ReferenceKindDelivery, providerID, event.DeliveryCode)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: delivery code %s", ErrOrderNotFound, event.DeliveryCode)
		}
		return fmt.Errorf("failed to resolve delivery reference: %w", err)
	}

	cfg, err := s.integration.ResolveEnabled(ref.TenantID, providerID)
	if err != nil {
		return err
	}
	if err := adapter.VerifyWebhook(cfg, headers); err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookUnverified, err)
	}

	order, err := s.orderRepo.GetOrderByID(ref.OrderID, ref.TenantID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("failed to fetch order for delivery webhook: %w", err)
	}
	return s.applyEvent(order, event)
}

// recordDeliveryState writes a delivery-substate-only update. Losing the
// optimistic race is tolerated but logged: the next courier event or status
// poll carries the same information against fresh state.
func (s *deliveryService) recordDeliveryState(order *models.Order, update models.OrderStatusUpdate) error {
	rows, err := s.orderRepo.UpdateOrderStatus(s.db, order.ID, order.TenantID, order.Status, update)
	if err != nil {
		return fmt.Errorf("failed to record delivery state: %w", err)
	}
	if rows == 0 {
		fields := map[string]interface{}{
			"order_id":     order.ID,
			"order_status": order.Status,
		}
		if update.DeliveryStatus != nil {
			fields["delivery_status"] = *update.DeliveryStatus
		}
		utils.LogInfo("delivery state update lost a race", fields)
	}
	return nil
}

// pipelineTarget maps a canonical delivery state to the order status it may
// advance the pipeline to. Only courier states that imply order progress map;
// everything else touches delivery_status alone.
func pipelineTarget(deliveryStatus string) (string, bool) {
	switch deliveryStatus {
	case models.DeliveryOutForDelivery:
		return models.StatusOutForDelivery, true
	case models.DeliveryDelivered:
		return models.StatusCompleted, true
	}
	return "", false
}

func (s *deliveryService) applyEvent(order *models.Order, event *models.DeliveryStatusEvent) error {
	now := time.Now()

	if !models.IsKnownDeliveryState(event.Status) {
		// Raw courier vocabulary is stored for visibility but never drives
		// the pipeline.
		utils.LogInfo("unmapped courier status", map[string]interface{}{
			"order_id":      order.ID,
			"delivery_code": event.DeliveryCode,
			"raw_status":    event.RawStatus,
		})
		update := models.OrderStatusUpdate{DeliveryStatus: &event.Status, UpdatedAt: now}
		if err := s.recordDeliveryState(order, update); err != nil {
			return err
		}
		s.publisher.Publish(fanout.Event{TenantID: order.TenantID, OrderID: order.ID, Status: order.Status})
		return nil
	}

	if event.Status == models.DeliveryCancelled || event.Status == models.DeliveryFailed {
		if !order.IsTerminal() {
			utils.LogInfo("delivery anomaly: courier terminal while order active", map[string]interface{}{
				"order_id":        order.ID,
				"order_status":    order.Status,
				"delivery_status": event.Status,
				"raw_status":      event.RawStatus,
			})
		}
		update := models.OrderStatusUpdate{DeliveryStatus: &event.Status, UpdatedAt: now}
		if err := s.recordDeliveryState(order, update); err != nil {
			return err
		}
		s.publisher.Publish(fanout.Event{TenantID: order.TenantID, OrderID: order.ID, Status: order.Status})
		return nil
	}

	target, advances := pipelineTarget(event.Status)
	if advances && !order.IsTerminal() && IsForward(order.Status, target) {
		update, err := PlanTransition(order, target, now)
		if err != nil {
			return err
		}
		update.DeliveryStatus = &event.Status
		if event.TrackingLink != "" {
			update.DeliveryTracking = &event.TrackingLink
		}
		rows, err := s.orderRepo.UpdateOrderStatus(s.db, order.ID, order.TenantID, order.Status, *update)
		if err != nil {
			return fmt.Errorf("failed to advance order from courier status: %w", err)
		}
		if rows == 0 {
			// Someone moved the order concurrently; the webhook retry will
			// see the fresh state.
			return fmt.Errorf("%w: order %s changed during delivery update", ErrConflict, order.ID)
		}
		s.publisher.Publish(fanout.Event{TenantID: order.TenantID, OrderID: order.ID, Status: target})
		return nil
	}

	update := models.OrderStatusUpdate{DeliveryStatus: &event.Status, UpdatedAt: now}
	if event.TrackingLink != "" {
		update.DeliveryTracking = &event.TrackingLink
	}
	if err := s.recordDeliveryState(order, update); err != nil {
		return err
	}
	s.publisher.Publish(fanout.Event{TenantID: order.TenantID, OrderID: order.ID, Status: order.Status})
	return nil
}
