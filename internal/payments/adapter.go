package payments

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/riwaai/riwa-pos-backend/internal/models"
)

var (
	// ErrRejected means the gateway returned a business error; its message is
	// surfaced to the caller.
	ErrRejected = errors.New("payment provider rejected request")

	// ErrUnreachable covers network failures and timeouts. The caller must
	// re-query via Verify rather than assume the remote call succeeded.
	ErrUnreachable = errors.New("payment provider unreachable")

	// ErrBadPayload means a callback/webhook body could not be decoded.
	ErrBadPayload = errors.New("unparseable payment payload")
)

// Customer is the payer identity forwarded to the hosted payment page.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// InitiateRequest carries everything an adapter needs to build a
// provider-specific hosted-payment request.
type InitiateRequest struct {
	Order    *models.Order
	Items    []models.OrderItem
	Customer Customer
	// MethodID selects a gateway payment method where the provider supports
	// one (MyFatoorah's PaymentMethodId); zero means the provider default.
	MethodID int
	// Gateway selects a sub-gateway by name where the provider supports one
	// (UPayments: knet, creditcard, ...); empty means the provider default.
	Gateway string
}

// InitiateResult is the outcome of creating a hosted payment request.
type InitiateResult struct {
	PaymentURL        string `json:"payment_url"`
	ProviderReference string `json:"provider_reference"`
}

// Adapter is implemented once per payment gateway. The internal order id is
// embedded as the provider's correlation token at Initiate time, so
// asynchronous callbacks can be matched back without a side channel.
type Adapter interface {
	ProviderID() string
	Initiate(ctx context.Context, cfg *models.IntegrationConfig, req InitiateRequest) (*InitiateResult, error)
	// NormalizeCallback maps the provider's native webhook/callback JSON to
	// the canonical outcome. Unrecognized provider statuses map to failed
	// with the raw value preserved, never silently dropped.
	NormalizeCallback(payload []byte) (*models.PaymentOutcome, error)
	// Verify is an active status poll against the provider, used when a
	// callback cannot be trusted standalone.
	Verify(ctx context.Context, cfg *models.IntegrationConfig, providerReference string) (*models.PaymentOutcome, error)
	// TestConnection makes a lightweight authenticated call to validate
	// credentials from the admin integrations screen.
	TestConnection(ctx context.Context, cfg *models.IntegrationConfig) error
}

// Registry resolves a provider id to its adapter, so adding a gateway never
// touches pipeline code.
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

const defaultTimeout = 15 * time.Second

// NewHTTPClient returns the bounded-timeout client all adapters share.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
