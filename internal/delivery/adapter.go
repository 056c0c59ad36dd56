package delivery

import (
	"context"
	"errors"

	"github.com/riwaai/riwa-pos-backend/internal/models"
)

var (
	// ErrRejected means the courier returned a business error.
	ErrRejected = errors.New("delivery provider rejected request")

	// ErrUnreachable covers network failures and timeouts; callers re-query
	// via GetStatus instead of assuming the remote call happened.
	ErrUnreachable = errors.New("delivery provider unreachable")

	// ErrBadPayload means a webhook body could not be decoded.
	ErrBadPayload = errors.New("unparseable delivery payload")
)

// Dropoff is the delivery destination: either geocoordinates or a structured
// address, never both. Validate with Validate before handing to an adapter.
type Dropoff struct {
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`

	Area      string `json:"area,omitempty"`
	Block     string `json:"block,omitempty"`
	Street    string `json:"street,omitempty"`
	Building  string `json:"building,omitempty"`
	Floor     string `json:"floor,omitempty"`
	Apartment string `json:"apartment,omitempty"`

	Instructions string `json:"instructions,omitempty"`
}

// HasCoordinates reports whether the geo form is populated.
func (d *Dropoff) HasCoordinates() bool {
	return d.Latitude != 0 && d.Longitude != 0
}

// HasAddress reports whether the structured-address form is populated.
func (d *Dropoff) HasAddress() bool {
	return d.Area != "" || d.Block != "" || d.Street != "" || d.Building != ""
}

// Validate enforces that exactly one dropoff form is present.
func (d *Dropoff) Validate() error {
	if d.HasCoordinates() && d.HasAddress() {
		return errors.New("dropoff must use coordinates or an address, not both")
	}
	if !d.HasCoordinates() && !d.HasAddress() {
		return errors.New("dropoff requires coordinates or an address")
	}
	return nil
}

// CreateRequest carries everything an adapter needs to create a courier job.
type CreateRequest struct {
	Order       *models.Order
	Customer    models.DriverInfo // name + phone of the recipient
	Dropoff     Dropoff
	Amount      float64
	PaymentType string // paid | cod equivalents; provider vocabulary
}

// CreateResult is the outcome of creating a delivery job.
type CreateResult struct {
	DeliveryCode      string             `json:"delivery_code"`
	Fee               float64            `json:"delivery_fee"`
	Status            string             `json:"status"`
	TrackingLink      string             `json:"tracking_link"`
	EstimatedDistance float64            `json:"estimated_distance,omitempty"`
	EstimatedDuration float64            `json:"estimated_duration,omitempty"`
	Driver            *models.DriverInfo `json:"driver,omitempty"`
}

// Adapter is implemented once per courier.
type Adapter interface {
	ProviderID() string
	CreateDelivery(ctx context.Context, cfg *models.IntegrationConfig, req CreateRequest) (*CreateResult, error)
	CancelDelivery(ctx context.Context, cfg *models.IntegrationConfig, deliveryCode string) error
	GetStatus(ctx context.Context, cfg *models.IntegrationConfig, deliveryCode string) (*models.DeliveryStatusEvent, error)
	// NormalizeWebhook maps the courier's native webhook JSON to the
	// canonical event. Unmapped statuses pass through as their raw string so
	// no information is lost; the pipeline must not treat them as terminal.
	NormalizeWebhook(payload []byte) (*models.DeliveryStatusEvent, error)
	// VerifyWebhook checks courier-specific webhook authentication headers
	// against the integration config.
	VerifyWebhook(cfg *models.IntegrationConfig, headers map[string]string) error
	TestConnection(ctx context.Context, cfg *models.IntegrationConfig) error
}

// Registry resolves a provider id to its adapter.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.ProviderID()] = a
	}
	return r
}

// Get returns the adapter for providerID, or false when none is registered.
func (r *Registry) Get(providerID string) (Adapter, bool) {
	a, ok := r.adapters[providerID]
	return a, ok
}
