package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/riwaai/riwa-pos-backend/internal/fanout"
	"github.com/riwaai/riwa-pos-backend/internal/models"
	"github.com/riwaai/riwa-pos-backend/internal/repositories"
	"github.com/riwaai/riwa-pos-backend/pkg/utils"
)

// KWD carries three decimals; the monetary invariant is checked to within one
// minor currency unit.
const minorUnit = 0.001

// CreateOrderItemRequest is one line of an order draft.
type CreateOrderItemRequest struct {
	ItemID     *string         `json:"item_id"`
	ItemNameEN string          `json:"item_name_en" binding:"required"`
	ItemNameAR *string         `json:"item_name_ar"`
	Quantity   int             `json:"quantity" binding:"required,gt=0"`
	UnitPrice  float64         `json:"unit_price" binding:"gte=0"`
	TotalPrice float64         `json:"total_price"`
	Modifiers  json.RawMessage `json:"modifiers"`
	Notes      string          `json:"notes"`
}

// CreateOrderRequest is used for creating a new order.
type CreateOrderRequest struct {
	BranchID       string                   `json:"branch_id"`
	Channel        string                   `json:"channel"`
	OrderType      string                   `json:"order_type"`
	CustomerName   string                   `json:"customer_name"`
	CustomerPhone  string                   `json:"customer_phone"`
	CustomerEmail  string                   `json:"customer_email"`
	Notes          string                   `json:"notes"`
	PaymentMethod  string                   `json:"payment_method"`
	Subtotal       float64                  `json:"subtotal" binding:"gte=0"`
	TaxAmount      float64                  `json:"tax_amount" binding:"gte=0"`
	ServiceCharge  float64                  `json:"service_charge" binding:"gte=0"`
	DiscountAmount float64                  `json:"discount_amount" binding:"gte=0"`
	DeliveryFee    float64                  `json:"delivery_fee" binding:"gte=0"`
	TotalAmount    float64                  `json:"total_amount" binding:"gte=0"`
	Items          []CreateOrderItemRequest `json:"items" binding:"required,dive"`
}

// TransitionRequest is used for advancing an order through the pipeline.
type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
}

// OrderService owns order intake and the status pipeline.
type OrderService interface {
	CreateOrder(tenantID string, req CreateOrderRequest) (*models.Order, error)
	GetOrders(filters models.OrderFilters) ([]models.Order, int, error)
	GetOrderByID(tenantID, orderID string) (*models.Order, error)
	Transition(tenantID, orderID, targetStatus string) (*models.Order, error)
	ListActive(tenantID string) ([]models.Order, error)
}

type orderService struct {
	orderRepo repositories.OrderRepository
	publisher fanout.Publisher
	db        *sql.DB
}

// NewOrderService creates a new instance of OrderService.
func NewOrderService(orderRepo repositories.OrderRepository, publisher fanout.Publisher, db *sql.DB) OrderService {
	return &orderService{orderRepo: orderRepo, publisher: publisher, db: db}
}

// newOrderNumber builds the human-facing order number: unique within a
// practical time window, short enough for a receipt. The random suffix
// covers two orders landing in the same millisecond and keeps the number
// from repeating when the millisecond window wraps.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%06d-%04X", now.UnixMilli()%1_000_000, rand.Intn(0x10000))
}

func validateMoney(req CreateOrderRequest) error {
	expected := req.Subtotal + req.TaxAmount + req.ServiceCharge + req.DeliveryFee - req.DiscountAmount
	if math.Abs(expected-req.TotalAmount) > minorUnit+1e-9 {
		return fmt.Errorf("%w: total_amount %.3f does not match components (expected %.3f)", ErrValidation, req.TotalAmount, expected)
	}

	var itemSum float64
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrValidation, i)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d unit price must be non-negative", ErrValidation, i)
		}
		itemSum += item.TotalPrice
	}
	if math.Abs(itemSum-req.Subtotal) > minorUnit+1e-9 {
		return fmt.Errorf("%w: subtotal %.3f does not match item totals %.3f", ErrValidation, req.Subtotal, itemSum)
	}
	return nil
}

func (s *orderService) CreateOrder(tenantID string, req CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order must have at least one item", ErrValidation)
	}
	if err := validateMoney(req); err != nil {
		return nil, err
	}

	now := time.Now()
	channel := req.Channel
	if channel == "" {
		channel = models.ChannelPOS
	}
	orderType := req.OrderType
	if orderType == "" {
		orderType = models.OrderTypeDineIn
	}
	customerName := req.CustomerName
	if customerName == "" {
		customerName = "Walk-in"
	}
	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "cash"
	}

	order := &models.Order{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		BranchID:       req.BranchID,
		OrderNumber:    newOrderNumber(now),
		Channel:        channel,
		OrderType:      orderType,
		Status:         models.StatusPlaced,
		PaymentStatus:  models.PaymentPending,
		PaymentMethod:  &paymentMethod,
		Subtotal:       req.Subtotal,
		TaxAmount:      req.TaxAmount,
		ServiceCharge:  req.ServiceCharge,
		DiscountAmount: req.DiscountAmount,
		DeliveryFee:    req.DeliveryFee,
		TotalAmount:    req.TotalAmount,
		CustomerName:   &customerName,
		CustomerPhone:  utils.NewNullString(req.CustomerPhone),
		CustomerEmail:  utils.NewNullString(req.CustomerEmail),
		Notes:          utils.NewNullString(req.Notes),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, itemReq := range req.Items {
		items = append(items, models.OrderItem{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			ItemID:     itemReq.ItemID,
			ItemNameEN: itemReq.ItemNameEN,
			ItemNameAR: itemReq.ItemNameAR,
			Quantity:   itemReq.Quantity,
			UnitPrice:  itemReq.UnitPrice,
			TotalPrice: itemReq.TotalPrice,
			Modifiers:  itemReq.Modifiers,
			Notes:      utils.NewNullString(itemReq.Notes),
			CreatedAt:  now,
		})
	}
	if err := s.orderRepo.CreateOrderWithItems(order, items); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.publisher.Publish(fanout.Event{TenantID: tenantID, OrderID: order.ID, Status: order.Status})

	return s.GetOrderByID(tenantID, order.ID)
}

func (s *orderService) GetOrders(filters models.OrderFilters) ([]models.Order, int, error) {
	orders, totalCount, err := s.orderRepo.GetOrders(filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get orders: %w", err)
	}
	return orders, totalCount, nil
}

func (s *orderService) GetOrderByID(tenantID, orderID string) (*models.Order, error) {
	order, err := s.orderRepo.GetOrderByID(orderID, tenantID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	items, err := s.orderRepo.GetOrderItemsByOrderID(orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	order.OrderItems = items
	return order, nil
}

// Transition advances an order through the status pipeline. Concurrent
// transitions on the same order are serialized by an optimistic precondition
// on the previously read status; the loser gets ErrConflict and should
// re-fetch and retry against current state.
func (s *orderService) Transition(tenantID, orderID, targetStatus string) (*models.Order, error) {
	order, err := s.orderRepo.GetOrderByID(orderID, tenantID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to fetch order for transition: %w", err)
	}

	update, err := PlanTransition(order, targetStatus, time.Now())
	if err != nil {
		return nil, err
	}

	rows, err := s.orderRepo.UpdateOrderStatus(s.db, orderID, tenantID, order.Status, *update)
	if err != nil {
		return nil, fmt.Errorf("failed to persist transition: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: order %s changed while transitioning to %s", ErrConflict, orderID, targetStatus)
	}

	s.publisher.Publish(fanout.Event{TenantID: tenantID, OrderID: orderID, Status: *update.Status})

	return s.GetOrderByID(tenantID, orderID)
}

// ListActive is the kitchen display feed, items included.
func (s *orderService) ListActive(tenantID string) ([]models.Order, error) {
	orders, err := s.orderRepo.ListActive(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active orders: %w", err)
	}
	for i := range orders {
		items, err := s.orderRepo.GetOrderItemsByOrderID(orders[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get items for order %s: %w", orders[i].ID, err)
		}
		orders[i].OrderItems = items
	}
	return orders, nil
}
