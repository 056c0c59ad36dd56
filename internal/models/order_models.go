package models

import (
	"encoding/json"
	"time"
)

// Order statuses. The pipeline only ever moves forward through the linear
// sequence, or sideways into cancelled from any non-terminal state.
const (
	StatusPlaced         = "placed"
	StatusAccepted       = "accepted"
	StatusPreparing      = "preparing"
	StatusReady          = "ready"
	StatusOutForDelivery = "out_for_delivery"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"
)

// Payment statuses.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// Order channels and types observed at intake.
const (
	ChannelPOS     = "pos"
	ChannelWebsite = "website"

	OrderTypeDineIn   = "dine_in"
	OrderTypeTakeaway = "takeaway"
	OrderTypeDelivery = "delivery"
)

// Order represents one purchase transaction, scoped to a tenant and branch.
type Order struct {
	ID               string     `json:"id" db:"id"`
	TenantID         string     `json:"tenant_id" db:"tenant_id"`
	BranchID         string     `json:"branch_id" db:"branch_id"`
	OrderNumber      string     `json:"order_number" db:"order_number"`
	Channel          string     `json:"channel" db:"channel"`
	OrderType        string     `json:"order_type" db:"order_type"`
	Status           string     `json:"status" db:"status"`
	PaymentStatus    string     `json:"payment_status" db:"payment_status"`
	PaymentMethod    *string    `json:"payment_method,omitempty" db:"payment_method"`
	PaymentReference *string    `json:"payment_reference,omitempty" db:"payment_reference"`
	Subtotal         float64    `json:"subtotal" db:"subtotal"`
	TaxAmount        float64    `json:"tax_amount" db:"tax_amount"`
	ServiceCharge    float64    `json:"service_charge" db:"service_charge"`
	DiscountAmount   float64    `json:"discount_amount" db:"discount_amount"`
	DeliveryFee      float64    `json:"delivery_fee" db:"delivery_fee"`
	TotalAmount      float64    `json:"total_amount" db:"total_amount"`
	CustomerName     *string    `json:"customer_name,omitempty" db:"customer_name"`
	CustomerPhone    *string    `json:"customer_phone,omitempty" db:"customer_phone"`
	CustomerEmail    *string    `json:"customer_email,omitempty" db:"customer_email"`
	Notes            *string    `json:"notes,omitempty" db:"notes"`
	DeliveryStatus   *string    `json:"delivery_status,omitempty" db:"delivery_status"`
	DeliveryTracking *string    `json:"delivery_tracking_link,omitempty" db:"delivery_tracking_link"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	ReadyAt          *time.Time `json:"ready_at,omitempty" db:"ready_at"`
	DispatchedAt     *time.Time `json:"dispatched_at,omitempty" db:"dispatched_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	PaidAt           *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`

	OrderItems []OrderItem `json:"order_items,omitempty"`
}

// IsTerminal reports whether the order can accept no further transitions.
func (o *Order) IsTerminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusCancelled
}

// OrderItem is owned exclusively by one order. Item names are snapshots taken
// at order time; later menu edits must not alter historical orders.
type OrderItem struct {
	ID         string          `json:"id" db:"id"`
	OrderID    string          `json:"order_id" db:"order_id"`
	ItemID     *string         `json:"item_id,omitempty" db:"item_id"`
	ItemNameEN string          `json:"item_name_en" db:"item_name_en"`
	ItemNameAR *string         `json:"item_name_ar,omitempty" db:"item_name_ar"`
	Quantity   int             `json:"quantity" db:"quantity"`
	UnitPrice  float64         `json:"unit_price" db:"unit_price"`
	TotalPrice float64         `json:"total_price" db:"total_price"`
	Modifiers  json.RawMessage `json:"modifiers,omitempty" db:"modifiers"`
	Notes      *string         `json:"notes,omitempty" db:"notes"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// OrderFilters defines the available filters for querying orders.
type OrderFilters struct {
	TenantID string
	Status   *string `form:"status"`
	Channel  *string `form:"channel"`
	From     *string `form:"from"` // RFC 3339 or YYYY-MM-DD
	To       *string `form:"to"`
	Page     int     `form:"page"`
	PageSize int     `form:"page_size"`
}

// OrderStatusUpdate is the whitelisted mutation surface for the status/payment
// path. Only non-nil fields are written; created_at, tenant_id and items are
// not reachable through it.
type OrderStatusUpdate struct {
	Status           *string
	PaymentStatus    *string
	PaymentMethod    *string
	PaymentReference *string
	DeliveryStatus   *string
	DeliveryTracking *string
	AcceptedAt       *time.Time
	ReadyAt          *time.Time
	DispatchedAt     *time.Time
	CompletedAt      *time.Time
	CancelledAt      *time.Time
	PaidAt           *time.Time
	UpdatedAt        time.Time
}
