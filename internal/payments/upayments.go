package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/riwaai/riwa-pos-backend/internal/models"
)

// ProviderUPayments is the registry id of the UPayments merchant gateway.
const ProviderUPayments = "upayments"

const (
	upaymentsProductionURL = "https://api.upayments.com"
	upaymentsSandboxURL    = "https://sandboxapi.upayments.com"

	upaymentsDefaultGateway = "knet"
)

// UPaymentsAdapter drives the UPayments charge flow. The internal order id is
// embedded as reference.id so the notification webhook can be correlated.
type UPaymentsAdapter struct {
	client        *http.Client
	baseURL       string // tests only
	publicBaseURL string
}

// NewUPaymentsAdapter creates a UPayments adapter.
func NewUPaymentsAdapter(client *http.Client, publicBaseURL string) *UPaymentsAdapter {
	return &UPaymentsAdapter{client: client, publicBaseURL: publicBaseURL}
}

func (a *UPaymentsAdapter) ProviderID() string { return ProviderUPayments }

func (a *UPaymentsAdapter) apiBase(cfg *models.IntegrationConfig) string {
	if a.baseURL != "" {
		return a.baseURL
	}
	if cfg.ConfigValue("environment") == "production" {
		return upaymentsProductionURL
	}
	return upaymentsSandboxURL
}

type upaymentsChargeRequest struct {
	MerchantID string `json:"merchant_id"`
	Order      struct {
		ID          string  `json:"id"`
		Amount      float64 `json:"amount"`
		Currency    string  `json:"currency"`
		Description string  `json:"description"`
	} `json:"order"`
	Customer struct {
		UniqueID string `json:"unique_id"`
		Name     string `json:"name"`
		Email    string `json:"email,omitempty"`
		Phone    string `json:"phone,omitempty"`
	} `json:"customer"`
	PaymentGateway string `json:"payment_gateway"`
	Language       string `json:"language"`
	Reference      struct {
		ID string `json:"id"`
	} `json:"reference"`
	ReturnURL       string `json:"return_url"`
	CancelURL       string `json:"cancel_url"`
	NotificationURL string `json:"notification_url"`
}

type upaymentsResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Link          string  `json:"link"`
		TrackID       string  `json:"track_id"`
		PaymentStatus string  `json:"payment_status"`
		Result        string  `json:"result"`
		Amount        float64 `json:"amount"`
		Currency      string  `json:"currency"`
		ReferenceID   string  `json:"reference_id"`
	} `json:"data"`
}

func (a *UPaymentsAdapter) do(req *http.Request) (*upaymentsResponse, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	var out upaymentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding upayments response: %v", ErrRejected, err)
	}
	if !out.Status {
		if out.Message == "" {
			out.Message = "request failed"
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, out.Message)
	}
	return &out, nil
}

func (a *UPaymentsAdapter) Initiate(ctx context.Context, cfg *models.IntegrationConfig, req InitiateRequest) (*InitiateResult, error) {
	gateway := req.Gateway
	if gateway == "" {
		gateway = upaymentsDefaultGateway
	}

	body := upaymentsChargeRequest{
		MerchantID:     cfg.ConfigValue("merchant_id"),
		PaymentGateway: gateway,
		Language:       "en",
	}
	body.Order.ID = req.Order.ID
	body.Order.Amount = req.Order.TotalAmount
	body.Order.Currency = "KWD"
	body.Order.Description = "Order " + req.Order.OrderNumber
	uniqueID := req.Customer.Email
	if uniqueID == "" {
		uniqueID = req.Customer.Phone
	}
	body.Customer.UniqueID = uniqueID
	body.Customer.Name = req.Customer.Name
	body.Customer.Email = req.Customer.Email
	body.Customer.Phone = req.Customer.Phone
	body.Reference.ID = req.Order.ID
	body.ReturnURL = fmt.Sprintf("%s/api/v1/webhooks/payments/upayments/callback?order_id=%s", a.publicBaseURL, req.Order.ID)
	body.CancelURL = fmt.Sprintf("%s/api/v1/webhooks/payments/upayments/callback?order_id=%s&status=cancelled", a.publicBaseURL, req.Order.ID)
	body.NotificationURL = a.publicBaseURL + "/api/v1/webhooks/payments/upayments"

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding upayments request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBase(cfg)+"/api/v1/charge", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building upayments request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.ConfigValue("api_key"))
	httpReq.Header.Set("Content-Type", "application/json")

	out, err := a.do(httpReq)
	if err != nil {
		return nil, err
	}
	if out.Data.Link == "" {
		return nil, fmt.Errorf("%w: charge response missing payment link", ErrRejected)
	}
	return &InitiateResult{
		PaymentURL:        out.Data.Link,
		ProviderReference: out.Data.TrackID,
	}, nil
}

type upaymentsWebhook struct {
	TrackID       string `json:"track_id"`
	PaymentStatus string `json:"payment_status"`
	OrderID       string `json:"order_id"`
	ReferenceID   string `json:"reference_id"`
	Result        string `json:"result"`
}

// mapUPaymentsStatus folds the gateway's two status vocabularies
// (payment_status and the KNET-style result code) into the canonical outcome.
func mapUPaymentsStatus(paymentStatus, result string) string {
	if paymentStatus == "success" || result == "CAPTURED" {
		return models.OutcomePaid
	}
	if paymentStatus == "cancelled" || result == "CANCELED" {
		return models.OutcomeCancelled
	}
	return models.OutcomeFailed
}

func (a *UPaymentsAdapter) NormalizeCallback(payload []byte) (*models.PaymentOutcome, error) {
	var hook upaymentsWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	orderID := hook.ReferenceID
	if orderID == "" {
		orderID = hook.OrderID
	}
	raw := hook.PaymentStatus
	if raw == "" {
		raw = hook.Result
	}
	return &models.PaymentOutcome{
		OrderID:           orderID,
		Status:            mapUPaymentsStatus(hook.PaymentStatus, hook.Result),
		ProviderReference: hook.TrackID,
		RawStatus:         raw,
		PaidAt:            time.Now(),
	}, nil
}

func (a *UPaymentsAdapter) Verify(ctx context.Context, cfg *models.IntegrationConfig, providerReference string) (*models.PaymentOutcome, error) {
	endpoint := a.apiBase(cfg) + "/api/v1/get-payment-status?track_id=" + url.QueryEscape(providerReference)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building upayments status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.ConfigValue("api_key"))

	out, err := a.do(httpReq)
	if err != nil {
		return nil, err
	}
	return &models.PaymentOutcome{
		OrderID:           out.Data.ReferenceID,
		Status:            mapUPaymentsStatus(out.Data.PaymentStatus, out.Data.Result),
		ProviderReference: out.Data.TrackID,
		RawStatus:         out.Data.PaymentStatus,
		PaidAt:            time.Now(),
	}, nil
}

func (a *UPaymentsAdapter) TestConnection(ctx context.Context, cfg *models.IntegrationConfig) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiBase(cfg)+"/api/v1/get-payment-methods", nil)
	if err != nil {
		return fmt.Errorf("building upayments test request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.ConfigValue("api_key"))
	_, err = a.do(httpReq)
	return err
}
