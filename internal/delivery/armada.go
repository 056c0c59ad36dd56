package delivery

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/riwaai/riwa-pos-backend/internal/models"
)

// ProviderArmada is the registry id of the Armada courier.
const ProviderArmada = "armada"

const (
	armadaProductionURL = "https://api.armadadelivery.com"
	armadaStagingURL    = "https://staging.api.armadadelivery.com"

	// WebhookKeyHeader is the shared-secret header Armada echoes back on
	// webhook calls when an order-webhook-key was set at creation time.
	WebhookKeyHeader = "order-webhook-key"

	platformName = "riwa_pos"
)

// ArmadaAdapter drives the Armada delivery API: create a job, poll or be told
// its status, cancel it.
type ArmadaAdapter struct {
	client  *http.Client
	baseURL string // tests only
}

// NewArmadaAdapter creates an Armada adapter.
func NewArmadaAdapter(client *http.Client) *ArmadaAdapter {
	return &ArmadaAdapter{client: client}
}

func (a *ArmadaAdapter) ProviderID() string { return ProviderArmada }

func (a *ArmadaAdapter) apiBase(cfg *models.IntegrationConfig) string {
	if a.baseURL != "" {
		return a.baseURL
	}
	if cfg.ConfigValue("environment") == "production" {
		return armadaProductionURL
	}
	return armadaStagingURL
}

// armadaStatusMap translates Armada's order-status vocabulary to the
// canonical delivery states. Anything absent passes through raw.
var armadaStatusMap = map[string]string{
	"pending":      models.DeliveryPending,
	"dispatched":   models.DeliveryDriverAssigned,
	"waiting_pack": models.DeliveryDriverArrived,
	"en_route":     models.DeliveryOutForDelivery,
	"completed":    models.DeliveryDelivered,
	"canceled":     models.DeliveryCancelled,
	"failed":       models.DeliveryFailed,
}

func mapArmadaStatus(status string) string {
	if mapped, ok := armadaStatusMap[status]; ok {
		return mapped
	}
	return status
}

type armadaLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type armadaPlatformData struct {
	OrderID        string          `json:"orderId"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone"`
	Amount         string          `json:"amount"`
	PaymentType    string          `json:"paymentType"`
	Location       *armadaLocation `json:"location,omitempty"`
	Area           string          `json:"area,omitempty"`
	Block          string          `json:"block,omitempty"`
	Street         string          `json:"street,omitempty"`
	BuildingNumber string          `json:"buildingNumber,omitempty"`
	Floor          string          `json:"floor,omitempty"`
	Apartment      string          `json:"apartment,omitempty"`
	Instructions   string          `json:"instructions,omitempty"`
}

type armadaCreateRequest struct {
	PlatformName string             `json:"platformName"`
	PlatformData armadaPlatformData `json:"platformData"`
}

type armadaDriver struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type armadaDelivery struct {
	Code              string        `json:"code"`
	OrderStatus       string        `json:"orderStatus"`
	DeliveryFee       float64       `json:"deliveryFee"`
	TrackingLink      string        `json:"trackingLink"`
	EstimatedDistance float64       `json:"estimatedDistance"`
	EstimatedDuration float64       `json:"estimatedDuration"`
	Driver            *armadaDriver `json:"driver"`
	Message           string        `json:"message"`
}

func (a *ArmadaAdapter) newRequest(ctx context.Context, cfg *models.IntegrationConfig, method, path string, body []byte) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.apiBase(cfg)+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building armada request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+cfg.ConfigValue("api_key"))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if webhookKey := cfg.ConfigValue("webhook_key"); webhookKey != "" {
		req.Header.Set(WebhookKeyHeader, webhookKey)
	}
	return req, nil
}

func (a *ArmadaAdapter) do(req *http.Request) (*armadaDelivery, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	// Cancel responds with an empty body; tolerate that.
	var out armadaDelivery
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF && resp.StatusCode < 300 {
		return nil, fmt.Errorf("%w: decoding armada response: %v", ErrRejected, err)
	}
	if resp.StatusCode >= 300 {
		if out.Message == "" {
			out.Message = resp.Status
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, out.Message)
	}
	return &out, nil
}

func (a *ArmadaAdapter) CreateDelivery(ctx context.Context, cfg *models.IntegrationConfig, req CreateRequest) (*CreateResult, error) {
	if err := req.Dropoff.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	paymentType := req.PaymentType
	if paymentType == "" {
		paymentType = "paid"
	}
	data := armadaPlatformData{
		OrderID:     req.Order.ID,
		Name:        req.Customer.Name,
		Phone:       req.Customer.Phone,
		Amount:      strconv.FormatFloat(req.Amount, 'f', 3, 64),
		PaymentType: paymentType,
	}
	if req.Dropoff.HasCoordinates() {
		data.Location = &armadaLocation{Latitude: req.Dropoff.Latitude, Longitude: req.Dropoff.Longitude}
	} else {
		data.Area = req.Dropoff.Area
		data.Block = req.Dropoff.Block
		data.Street = req.Dropoff.Street
		data.BuildingNumber = req.Dropoff.Building
		data.Floor = req.Dropoff.Floor
		data.Apartment = req.Dropoff.Apartment
	}
	data.Instructions = req.Dropoff.Instructions

	payload, err := json.Marshal(armadaCreateRequest{PlatformName: platformName, PlatformData: data})
	if err != nil {
		return nil, fmt.Errorf("encoding armada request: %w", err)
	}
	httpReq, err := a.newRequest(ctx, cfg, http.MethodPost, "/v0/deliveries", payload)
	if err != nil {
		return nil, err
	}
	out, err := a.do(httpReq)
	if err != nil {
		return nil, err
	}

	result := &CreateResult{
		DeliveryCode:      out.Code,
		Fee:               out.DeliveryFee,
		Status:            mapArmadaStatus(out.OrderStatus),
		TrackingLink:      out.TrackingLink,
		EstimatedDistance: out.EstimatedDistance,
		EstimatedDuration: out.EstimatedDuration,
	}
	if out.Driver != nil {
		result.Driver = &models.DriverInfo{Name: out.Driver.Name, Phone: out.Driver.Phone}
	}
	return result, nil
}

func (a *ArmadaAdapter) CancelDelivery(ctx context.Context, cfg *models.IntegrationConfig, deliveryCode string) error {
	httpReq, err := a.newRequest(ctx, cfg, http.MethodPost, "/v0/deliveries/"+deliveryCode+"/cancel", nil)
	if err != nil {
		return err
	}
	_, err = a.do(httpReq)
	return err
}

func (a *ArmadaAdapter) GetStatus(ctx context.Context, cfg *models.IntegrationConfig, deliveryCode string) (*models.DeliveryStatusEvent, error) {
	httpReq, err := a.newRequest(ctx, cfg, http.MethodGet, "/v0/deliveries/"+deliveryCode, nil)
	if err != nil {
		return nil, err
	}
	out, err := a.do(httpReq)
	if err != nil {
		return nil, err
	}
	return a.toEvent(out), nil
}

func (a *ArmadaAdapter) toEvent(d *armadaDelivery) *models.DeliveryStatusEvent {
	event := &models.DeliveryStatusEvent{
		DeliveryCode: d.Code,
		Status:       mapArmadaStatus(d.OrderStatus),
		RawStatus:    d.OrderStatus,
		TrackingLink: d.TrackingLink,
	}
	if d.Driver != nil {
		event.Driver = &models.DriverInfo{Name: d.Driver.Name, Phone: d.Driver.Phone}
	}
	return event
}

func (a *ArmadaAdapter) NormalizeWebhook(payload []byte) (*models.DeliveryStatusEvent, error) {
	var hook armadaDelivery
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if hook.Code == "" {
		return nil, fmt.Errorf("%w: webhook missing delivery code", ErrBadPayload)
	}
	return a.toEvent(&hook), nil
}

// VerifyWebhook checks the order-webhook-key header against the configured
// shared secret. Accepts anything when no key is configured.
func (a *ArmadaAdapter) VerifyWebhook(cfg *models.IntegrationConfig, headers map[string]string) error {
	expected := cfg.ConfigValue("webhook_key")
	if expected == "" {
		return nil
	}
	got := headers[WebhookKeyHeader]
	if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return fmt.Errorf("%w: webhook key mismatch", ErrRejected)
	}
	return nil
}

func (a *ArmadaAdapter) TestConnection(ctx context.Context, cfg *models.IntegrationConfig) error {
	httpReq, err := a.newRequest(ctx, cfg, http.MethodGet, "/v0/deliveries?limit=1", nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s", ErrRejected, resp.Status)
	}
	return nil
}
