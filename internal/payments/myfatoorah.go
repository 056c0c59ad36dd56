package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/riwaai/riwa-pos-backend/internal/models"
)

// ProviderMyFatoorah is the registry id of the MyFatoorah token gateway.
const ProviderMyFatoorah = "myfatoorah"

const (
	myfatoorahLiveURL = "https://api.myfatoorah.com"
	myfatoorahTestURL = "https://apitest.myfatoorah.com"

	// Default PaymentMethodId when the caller picks none (VISA/MC).
	myfatoorahDefaultMethod = 2
)

// MyFatoorahAdapter drives the MyFatoorah hosted invoice flow: ExecutePayment
// creates the invoice, the gateway calls back with a PaymentId, and
// GetPaymentStatus settles what actually happened.
type MyFatoorahAdapter struct {
	client  *http.Client
	baseURL string // overrides environment selection; tests only
	// publicBaseURL is this service's externally reachable root, used to
	// build the CallBackUrl/ErrorUrl return legs.
	publicBaseURL string
}

// NewMyFatoorahAdapter creates a MyFatoorah adapter.
func NewMyFatoorahAdapter(client *http.Client, publicBaseURL string) *MyFatoorahAdapter {
	return &MyFatoorahAdapter{client: client, publicBaseURL: publicBaseURL}
}

func (a *MyFatoorahAdapter) ProviderID() string { return ProviderMyFatoorah }

func (a *MyFatoorahAdapter) apiBase(cfg *models.IntegrationConfig) string {
	if a.baseURL != "" {
		return a.baseURL
	}
	if cfg.ConfigValue("environment") == "live" {
		return myfatoorahLiveURL
	}
	return myfatoorahTestURL
}

type myfatoorahInvoiceItem struct {
	ItemName  string  `json:"ItemName"`
	Quantity  int     `json:"Quantity"`
	UnitPrice float64 `json:"UnitPrice"`
}

type myfatoorahExecuteRequest struct {
	PaymentMethodId    int                     `json:"PaymentMethodId"`
	InvoiceValue       float64                 `json:"InvoiceValue"`
	CustomerName       string                  `json:"CustomerName,omitempty"`
	CustomerEmail      string                  `json:"CustomerEmail,omitempty"`
	CustomerMobile     string                  `json:"CustomerMobile,omitempty"`
	DisplayCurrencyIso string                  `json:"DisplayCurrencyIso"`
	MobileCountryCode  string                  `json:"MobileCountryCode"`
	Language           string                  `json:"Language"`
	CustomerReference  string                  `json:"CustomerReference"`
	CallBackUrl        string                  `json:"CallBackUrl"`
	ErrorUrl           string                  `json:"ErrorUrl"`
	InvoiceItems       []myfatoorahInvoiceItem `json:"InvoiceItems,omitempty"`
}

type myfatoorahEnvelope struct {
	IsSuccess bool            `json:"IsSuccess"`
	Message   string          `json:"Message"`
	Data      json.RawMessage `json:"Data"`
}

type myfatoorahExecuteData struct {
	InvoiceId  int64  `json:"InvoiceId"`
	PaymentURL string `json:"PaymentURL"`
}

func (a *MyFatoorahAdapter) post(ctx context.Context, cfg *models.IntegrationConfig, path string, body interface{}) (*myfatoorahEnvelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding myfatoorah request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBase(cfg)+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building myfatoorah request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.ConfigValue("api_key"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	var envelope myfatoorahEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: decoding myfatoorah response: %v", ErrRejected, err)
	}
	if !envelope.IsSuccess {
		if envelope.Message == "" {
			envelope.Message = "request failed"
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, envelope.Message)
	}
	return &envelope, nil
}

func (a *MyFatoorahAdapter) Initiate(ctx context.Context, cfg *models.IntegrationConfig, req InitiateRequest) (*InitiateResult, error) {
	methodID := req.MethodID
	if methodID == 0 {
		methodID = myfatoorahDefaultMethod
	}

	body := myfatoorahExecuteRequest{
		PaymentMethodId:    methodID,
		InvoiceValue:       req.Order.TotalAmount,
		CustomerName:       req.Customer.Name,
		CustomerEmail:      req.Customer.Email,
		CustomerMobile:     req.Customer.Phone,
		DisplayCurrencyIso: "KWD",
		MobileCountryCode:  "965",
		Language:           "EN",
		CustomerReference:  req.Order.ID,
		CallBackUrl:        fmt.Sprintf("%s/api/v1/webhooks/payments/myfatoorah/callback?order_id=%s", a.publicBaseURL, req.Order.ID),
		ErrorUrl:           fmt.Sprintf("%s/api/v1/webhooks/payments/myfatoorah/callback?order_id=%s&status=error", a.publicBaseURL, req.Order.ID),
	}
	for _, item := range req.Items {
		body.InvoiceItems = append(body.InvoiceItems, myfatoorahInvoiceItem{
			ItemName:  item.ItemNameEN,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	envelope, err := a.post(ctx, cfg, "/v2/ExecutePayment", body)
	if err != nil {
		return nil, err
	}
	var data myfatoorahExecuteData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: decoding ExecutePayment data: %v", ErrRejected, err)
	}
	return &InitiateResult{
		PaymentURL:        data.PaymentURL,
		ProviderReference: fmt.Sprintf("%d", data.InvoiceId),
	}, nil
}

type myfatoorahWebhook struct {
	InvoiceId         int64  `json:"InvoiceId"`
	PaymentId         string `json:"PaymentId"`
	InvoiceStatus     string `json:"InvoiceStatus"`
	CustomerReference string `json:"CustomerReference"`
}

// mapMyFatoorahStatus maps the gateway's invoice-status vocabulary onto the
// canonical three-state outcome.
func mapMyFatoorahStatus(status string) string {
	switch status {
	case "Paid":
		return models.OutcomePaid
	case "Canceled":
		return models.OutcomeCancelled
	default:
		// Failed, Expired, Pending and anything unrecognized.
		return models.OutcomeFailed
	}
}

func (a *MyFatoorahAdapter) NormalizeCallback(payload []byte) (*models.PaymentOutcome, error) {
	var hook myfatoorahWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	reference := hook.PaymentId
	if reference == "" && hook.InvoiceId != 0 {
		reference = fmt.Sprintf("%d", hook.InvoiceId)
	}
	return &models.PaymentOutcome{
		OrderID:           hook.CustomerReference,
		Status:            mapMyFatoorahStatus(hook.InvoiceStatus),
		ProviderReference: reference,
		RawStatus:         hook.InvoiceStatus,
		PaidAt:            time.Now(),
	}, nil
}

type myfatoorahStatusData struct {
	InvoiceId         int64  `json:"InvoiceId"`
	InvoiceStatus     string `json:"InvoiceStatus"`
	CustomerReference string `json:"CustomerReference"`
}

func (a *MyFatoorahAdapter) Verify(ctx context.Context, cfg *models.IntegrationConfig, providerReference string) (*models.PaymentOutcome, error) {
	envelope, err := a.post(ctx, cfg, "/v2/GetPaymentStatus", map[string]string{
		"Key":     providerReference,
		"KeyType": "PaymentId",
	})
	if err != nil {
		return nil, err
	}
	var data myfatoorahStatusData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: decoding GetPaymentStatus data: %v", ErrRejected, err)
	}
	return &models.PaymentOutcome{
		OrderID:           data.CustomerReference,
		Status:            mapMyFatoorahStatus(data.InvoiceStatus),
		ProviderReference: providerReference,
		RawStatus:         data.InvoiceStatus,
		PaidAt:            time.Now(),
	}, nil
}

func (a *MyFatoorahAdapter) TestConnection(ctx context.Context, cfg *models.IntegrationConfig) error {
	// InitiatePayment is the lightest authenticated call the gateway offers.
	_, err := a.post(ctx, cfg, "/v2/InitiatePayment", map[string]interface{}{
		"InvoiceAmount": 1,
		"CurrencyIso":   "KWD",
	})
	return err
}
