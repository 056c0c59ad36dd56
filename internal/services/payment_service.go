package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/riwaai/riwa-pos-backend/internal/fanout"
	"github.com/riwaai/riwa-pos-backend/internal/models"
	"github.com/riwaai/riwa-pos-backend/internal/payments"
	"github.com/riwaai/riwa-pos-backend/internal/repositories"
	"github.com/riwaai/riwa-pos-backend/pkg/utils"
)

// InitiatePaymentRequest starts a hosted payment for an order.
type InitiatePaymentRequest struct {
	ProviderID string `json:"provider_id" binding:"required"`
	MethodID   int    `json:"payment_method_id"`
	Gateway    string `json:"payment_gateway"`
}

// PaymentService sits beside the pipeline: it initiates external payment work
// and translates asynchronous confirmations back into order state.
type PaymentService interface {
	Initiate(ctx context.Context, tenantID, orderID string, req InitiatePaymentRequest) (*payments.InitiateResult, error)
	// HandleWebhook processes a provider's native webhook payload. signature
	// is the raw value of the signature header, empty when absent.
	HandleWebhook(ctx context.Context, providerID string, payload []byte, signature string) error
	// HandleCallback processes the browser return leg. The callback alone is
	// not trusted: the adapter re-verifies against the provider first.
	HandleCallback(ctx context.Context, providerID, orderID, providerReference string) (*models.Order, error)
}

type paymentService struct {
	orderRepo   repositories.OrderRepository
	refRepo     repositories.ReferenceRepository
	integration IntegrationService
	registry    *payments.Registry
	publisher   fanout.Publisher
	db          *sql.DB
}

// NewPaymentService creates a new instance of PaymentService.
func NewPaymentService(
	orderRepo repositories.OrderRepository,
	refRepo repositories.ReferenceRepository,
	integration IntegrationService,
	registry *payments.Registry,
	publisher fanout.Publisher,
	db *sql.DB,
) PaymentService {
	return &paymentService{
		orderRepo:   orderRepo,
		refRepo:     refRepo,
		integration: integration,
		registry:    registry,
		publisher:   publisher,
		db:          db,
	}
}

func (s *paymentService) Initiate(ctx context.Context, tenantID, orderID string, req InitiatePaymentRequest) (*payments.InitiateResult, error) {
	adapter, ok := s.registry.Get(req.ProviderID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, req.ProviderID)
	}

	order, err := s.orderRepo.GetOrderByID(orderID, tenantID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to fetch order for payment: %w", err)
	}
	if order.PaymentStatus == models.PaymentPaid {
		return nil, fmt.Errorf("%w: order %s is already paid", ErrValidation, orderID)
	}
	items, err := s.orderRepo.GetOrderItemsByOrderID(orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order items for payment: %w", err)
	}

	cfg, err := s.integration.ResolveEnabled(tenantID, req.ProviderID)
	if err != nil {
		return nil, err
	}

	customer := payments.Customer{}
	if order.CustomerName != nil {
		customer.Name = *order.CustomerName
	}
	if order.CustomerEmail != nil {
		customer.Email = *order.CustomerEmail
	}
	if order.CustomerPhone != nil {
		customer.Phone = *order.CustomerPhone
	}

	result, err := adapter.Initiate(ctx, cfg, payments.InitiateRequest{
		Order:    order,
		Items:    items,
		Customer: customer,
		MethodID: req.MethodID,
		Gateway:  req.Gateway,
	})
	if err != nil {
		return nil, mapProviderError(err)
	}

	// Persist the correlation before returning: a webhook can arrive for
	// this reference before the staff browser does, or after a restart.
	err = s.refRepo.CreateReference(s.db, &models.ProviderReference{
		TenantID:   tenantID,
		OrderID:    orderID,
		Kind:       models.ReferenceKindPayment,
		ProviderID: req.ProviderID,
		Reference:  result.ProviderReference,
	})
	if err != nil && !errors.Is(err, repositories.ErrDuplicateKey) {
		return nil, fmt.Errorf("failed to record payment reference: %w", err)
	}
	return result, nil
}

// resolveOrder finds the order a payment outcome belongs to: by the embedded
// correlation token when present, else through the persisted reference index.
func (s *paymentService) resolveOrder(providerID string, outcome *models.PaymentOutcome) (*models.Order, error) {
	if outcome.OrderID != "" {
		order, err := s.orderRepo.GetOrderAnyTenant(outcome.OrderID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("failed to fetch order %s: %w", outcome.OrderID, err)
		}
	}
	if outcome.ProviderReference != "" {
		ref, err := s.refRepo.ResolveReference(models.ReferenceKindPayment, providerID, outcome.ProviderReference)
		if err == nil {
			order, err := s.orderRepo.GetOrderByID(ref.OrderID, ref.TenantID)
			if err != nil {
				if errors.Is(err, repositories.ErrNotFound) {
					return nil, ErrOrderNotFound
				}
				return nil, fmt.Errorf("failed to fetch order %s: %w", ref.OrderID, err)
			}
			return order, nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("failed to resolve payment reference: %w", err)
		}
	}
	return nil, ErrOrderNotFound
}

func (s *paymentService) HandleWebhook(ctx context.Context, providerID string, payload []byte, signature string) error {
	adapter, ok := s.registry.Get(providerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}

	outcome, err := adapter.NormalizeCallback(payload)
	if err != nil {
		return mapProviderError(err)
	}

	order, err := s.resolveOrder(providerID, outcome)
	if err != nil {
		return err
	}

	cfg, err := s.integration.ResolveEnabled(order.TenantID, providerID)
	if err != nil {
		return err
	}
	if secret := cfg.ConfigValue("webhook_secret"); secret != "" {
		if !verifySignature(payload, signature, secret) {
			return fmt.Errorf("%w: provider %s order %s", ErrWebhookUnverified, providerID, order.ID)
		}
	}

	_, err = s.applyOutcome(order, providerID, outcome)
	return err
}

func (s *paymentService) HandleCallback(ctx context.Context, providerID, orderID, providerReference string) (*models.Order, error) {
	adapter, ok := s.registry.Get(providerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}

	order, err := s.orderRepo.GetOrderAnyTenant(orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to fetch order for callback: %w", err)
	}

	cfg, err := s.integration.ResolveEnabled(order.TenantID, providerID)
	if err != nil {
		return nil, err
	}

	outcome, err := adapter.Verify(ctx, cfg, providerReference)
	if err != nil {
		return nil, mapProviderError(err)
	}
	// The callback query params are attacker-controlled: the outcome must
	// correlate with the requested order, either through the token the
	// adapter embedded at initiation or through the reference index.
	if outcome.OrderID != "" && outcome.OrderID != order.ID {
		return nil, fmt.Errorf("%w: reference %s belongs to another order", ErrWebhookUnverified, providerReference)
	}
	if outcome.OrderID == "" {
		ref, err := s.refRepo.ResolveReference(models.ReferenceKindPayment, providerID, providerReference)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, fmt.Errorf("%w: reference %s is not indexed", ErrWebhookUnverified, providerReference)
			}
			return nil, fmt.Errorf("failed to resolve callback reference: %w", err)
		}
		if ref.OrderID != order.ID {
			return nil, fmt.Errorf("%w: reference %s belongs to another order", ErrWebhookUnverified, providerReference)
		}
		outcome.OrderID = order.ID
	}
	outcome.ProviderReference = providerReference
	return s.applyOutcome(order, providerID, outcome)
}

// applyOutcome folds a canonical payment outcome into the order. Idempotent:
// re-applying paid to an already-paid order is a no-op, and paid arriving
// after a refund or a cancelled order is dropped with a logged anomaly
// rather than overwriting a terminal financial state.
func (s *paymentService) applyOutcome(order *models.Order, providerID string, outcome *models.PaymentOutcome) (*models.Order, error) {
	now := time.Now()

	switch outcome.Status {
	case models.OutcomePaid:
		if order.PaymentStatus == models.PaymentPaid {
			return order, nil
		}
		if order.PaymentStatus == models.PaymentRefunded || order.Status == models.StatusCancelled {
			utils.LogInfo("payment anomaly: paid outcome ignored", map[string]interface{}{
				"order_id":       order.ID,
				"provider":       providerID,
				"payment_status": order.PaymentStatus,
				"order_status":   order.Status,
				"raw_status":     outcome.RawStatus,
			})
			return order, nil
		}

		paidAt := outcome.PaidAt
		if paidAt.IsZero() {
			paidAt = now
		}
		paid := models.PaymentPaid
		update := models.OrderStatusUpdate{
			PaymentStatus:    &paid,
			PaymentMethod:    &providerID,
			PaymentReference: &outcome.ProviderReference,
			PaidAt:           &paidAt,
			UpdatedAt:        now,
		}
		rows, err := s.orderRepo.UpdatePayment(s.db, order.ID, order.TenantID, order.PaymentStatus, update)
		if err != nil {
			return nil, fmt.Errorf("failed to mark order paid: %w", err)
		}
		if rows == 0 {
			// Lost a race. If the winner already marked it paid this is the
			// duplicate-webhook case and we are done; anything else conflicts.
			current, err := s.orderRepo.GetOrderByID(order.ID, order.TenantID)
			if err != nil {
				return nil, fmt.Errorf("failed to re-read order after payment race: %w", err)
			}
			if current.PaymentStatus == models.PaymentPaid {
				return current, nil
			}
			return nil, fmt.Errorf("%w: payment update for order %s", ErrConflict, order.ID)
		}
		s.publisher.Publish(fanout.Event{TenantID: order.TenantID, OrderID: order.ID, Status: order.Status})

	case models.OutcomeFailed, models.OutcomeCancelled:
		// The payment_status vocabulary has no cancelled; both store failed,
		// with the provider's raw status kept in the log.
		if order.PaymentStatus != models.PaymentPending {
			return order, nil
		}
		failed := models.PaymentFailed
		update := models.OrderStatusUpdate{PaymentStatus: &failed, UpdatedAt: now}
		if _, err := s.orderRepo.UpdatePayment(s.db, order.ID, order.TenantID, models.PaymentPending, update); err != nil {
			return nil, fmt.Errorf("failed to mark payment failed: %w", err)
		}
		utils.LogInfo("payment not captured", map[string]interface{}{
			"order_id":   order.ID,
			"provider":   providerID,
			"outcome":    outcome.Status,
			"raw_status": outcome.RawStatus,
		})

	default:
		return nil, fmt.Errorf("%w: unknown payment outcome %q", ErrValidation, outcome.Status)
	}

	return s.orderRepo.GetOrderByID(order.ID, order.TenantID)
}

// verifySignature checks an HMAC-SHA256 hex signature over the raw body.
func verifySignature(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
