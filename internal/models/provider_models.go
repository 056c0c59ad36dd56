package models

import "time"

// Canonical payment outcomes.
const (
	OutcomePaid      = "paid"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// PaymentOutcome is the canonical result of a payment attempt, produced by a
// payment adapter from a provider-specific webhook/callback shape. Transient;
// applied to an order, never persisted as its own entity.
type PaymentOutcome struct {
	OrderID           string
	Status            string // paid | failed | cancelled
	ProviderReference string
	RawStatus         string // provider's own vocabulary, kept for diagnostics
	PaidAt            time.Time
}

// Canonical delivery states.
const (
	DeliveryPending        = "pending"
	DeliveryDriverAssigned = "driver_assigned"
	DeliveryDriverArrived  = "driver_arrived"
	DeliveryOutForDelivery = "out_for_delivery"
	DeliveryDelivered      = "delivered"
	DeliveryCancelled      = "cancelled"
	DeliveryFailed         = "failed"
)

// knownDeliveryStates is consulted before the pipeline acts on an event:
// unmapped courier statuses pass through raw but must never be treated as a
// known (let alone terminal) state.
var knownDeliveryStates = map[string]bool{
	DeliveryPending:        true,
	DeliveryDriverAssigned: true,
	DeliveryDriverArrived:  true,
	DeliveryOutForDelivery: true,
	DeliveryDelivered:      true,
	DeliveryCancelled:      true,
	DeliveryFailed:         true,
}

// IsKnownDeliveryState reports whether s is one of the canonical states.
func IsKnownDeliveryState(s string) bool {
	return knownDeliveryStates[s]
}

// DriverInfo is courier driver contact data passed along to the display.
type DriverInfo struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// DeliveryStatusEvent is the canonical delivery state, produced by a delivery
// adapter from a courier webhook or status poll. Transient.
type DeliveryStatusEvent struct {
	DeliveryCode string
	OrderID      string // empty on webhooks; resolved via ProviderReference
	Status       string
	RawStatus    string
	TrackingLink string
	Driver       *DriverInfo
}
