package gateways

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"meronepal/internal/apperrors"
	"meronepal/internal/models"
)

const khaltiStatusCompleted = "Completed"

// KhaltiConfig holds the Khalti ePayment merchant settings.
type KhaltiConfig struct {
	BaseURL    string // e.g. https://dev.khalti.com/api/v2
	SecretKey  string
	ReturnURL  string // our callback endpoint
	WebsiteURL string
	Timeout    time.Duration
}

// Khalti implements Gateway for the Khalti ePayment API.
type Khalti struct {
	cfg    KhaltiConfig
	client *http.Client
}

// NewKhalti creates a Khalti adapter with a bounded-timeout HTTP client.
func NewKhalti(cfg KhaltiConfig) *Khalti {
	return &Khalti{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the payment method tag this adapter serves.
func (k *Khalti) Name() models.PaymentMethod {
	return models.MethodKhalti
}

// Initiate registers the payment with Khalti and returns the hosted payment
// URL. Khalti assigns the pidx, which serves as the transaction reference
// for the attempt. Amounts are sent in paisa.
func (k *Khalti) Initiate(order *models.Order) (*Session, error) {
	payload := map[string]interface{}{
		"return_url":          k.cfg.ReturnURL,
		"website_url":         k.cfg.WebsiteURL,
		"amount":              toPaisa(order.TotalAmount),
		"purchase_order_id":   order.ID,
		"purchase_order_name": order.OrderNumber,
	}
	body, err := k.post("/epayment/initiate/", payload)
	if err != nil {
		return nil, err
	}

	var initiated struct {
		Pidx       string `json:"pidx"`
		PaymentURL string `json:"payment_url"`
	}
	if err := json.Unmarshal(body, &initiated); err != nil {
		return nil, fmt.Errorf("failed to decode khalti initiate response: %w", err)
	}
	if initiated.Pidx == "" || initiated.PaymentURL == "" {
		return nil, fmt.Errorf("khalti initiate response missing pidx or payment_url")
	}
	return &Session{
		PaymentURL:     initiated.PaymentURL,
		TransactionRef: initiated.Pidx,
	}, nil
}

// khaltiLookupResponse is the payment lookup endpoint payload.
type khaltiLookupResponse struct {
	Pidx          string `json:"pidx"`
	TotalAmount   int64  `json:"total_amount"` // paisa
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Refunded      bool   `json:"refunded"`
}

// Verify calls the Khalti payment lookup endpoint. Only a Completed status
// with the expected amount verifies the payment; Pending, Expired and
// "User canceled" all come back unverified with the provider status as the
// reason.
func (k *Khalti) Verify(orderID, transactionRef string, amount float64) (*Verification, error) {
	body, err := k.post("/epayment/lookup/", map[string]interface{}{"pidx": transactionRef})
	if err != nil {
		return nil, err
	}

	var lookup khaltiLookupResponse
	if err := json.Unmarshal(body, &lookup); err != nil {
		return nil, fmt.Errorf("failed to decode khalti lookup response: %w", err)
	}

	v := &Verification{
		TransactionRef: transactionRef,
		Amount:         fromPaisa(lookup.TotalAmount),
		Status:         lookup.Status,
		RawResponse:    string(body),
	}
	if lookup.Status != khaltiStatusCompleted {
		v.Reason = fmt.Sprintf("khalti reported status %q", lookup.Status)
		return v, nil
	}
	if lookup.TotalAmount != toPaisa(amount) {
		v.Reason = fmt.Sprintf("khalti settled %d paisa, expected %d", lookup.TotalAmount, toPaisa(amount))
		return v, nil
	}
	v.Verified = true
	return v, nil
}

// ParseCallback extracts the canonical pair from a Khalti return redirect,
// which carries purchase_order_id and pidx as query parameters.
func (k *Khalti) ParseCallback(params map[string]string) (string, string, error) {
	orderID := params["purchase_order_id"]
	if orderID == "" {
		return "", "", fmt.Errorf("khalti callback: purchase_order_id: %w", apperrors.ErrInvalidCallback)
	}
	pidx := params["pidx"]
	if pidx == "" {
		return "", "", fmt.Errorf("khalti callback: pidx: %w", apperrors.ErrInvalidCallback)
	}
	return orderID, pidx, nil
}

// post sends an authenticated JSON request to the Khalti API.
func (k *Khalti) post(path string, payload map[string]interface{}) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode khalti request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, k.cfg.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to build khalti request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+k.cfg.SecretKey)

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("khalti request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read khalti response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("khalti %s returned HTTP %d: %s", path, resp.StatusCode, body)
	}
	return body, nil
}

// toPaisa converts rupees to the integer paisa Khalti's API speaks.
func toPaisa(rupees float64) int64 {
	return int64(math.Round(rupees * 100))
}

func fromPaisa(paisa int64) float64 {
	return float64(paisa) / 100
}
