package gateways

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"meronepal/internal/apperrors"
	"meronepal/internal/models"

	"github.com/google/uuid"
)

const esewaStatusComplete = "COMPLETE"

// EsewaConfig holds the eSewa ePay merchant settings.
type EsewaConfig struct {
	BaseURL     string // e.g. https://rc-epay.esewa.com.np
	ProductCode string // merchant code, EPAYTEST on the sandbox
	SecretKey   string
	SuccessURL  string // our callback endpoint
	FailureURL  string
	Timeout     time.Duration
}

// Esewa implements Gateway for the eSewa ePay API.
type Esewa struct {
	cfg    EsewaConfig
	client *http.Client
}

// NewEsewa creates an eSewa adapter with a bounded-timeout HTTP client.
func NewEsewa(cfg EsewaConfig) *Esewa {
	return &Esewa{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the payment method tag this adapter serves.
func (e *Esewa) Name() models.PaymentMethod {
	return models.MethodEsewa
}

// Initiate builds the hosted payment page URL for the order. The transaction
// reference is the merchant-generated transaction_uuid, which eSewa echoes
// back on the status endpoint and in the success redirect.
func (e *Esewa) Initiate(order *models.Order) (*Session, error) {
	txnUUID := uuid.New().String()

	totalAmount := formatAmount(order.TotalAmount)
	signedFields := "total_amount,transaction_uuid,product_code"
	signature := e.sign(fmt.Sprintf(
		"total_amount=%s,transaction_uuid=%s,product_code=%s",
		totalAmount, txnUUID, e.cfg.ProductCode,
	))

	params := url.Values{}
	params.Set("amount", formatAmount(order.Subtotal))
	params.Set("tax_amount", "0")
	params.Set("product_service_charge", "0")
	params.Set("product_delivery_charge", formatAmount(order.ShippingCost))
	params.Set("total_amount", totalAmount)
	params.Set("transaction_uuid", txnUUID)
	params.Set("product_code", e.cfg.ProductCode)
	params.Set("success_url", e.cfg.SuccessURL+"?order_id="+url.QueryEscape(order.ID))
	params.Set("failure_url", e.cfg.FailureURL)
	params.Set("signed_field_names", signedFields)
	params.Set("signature", signature)

	return &Session{
		PaymentURL:     e.cfg.BaseURL + "/api/epay/main/v2/form?" + params.Encode(),
		TransactionRef: txnUUID,
	}, nil
}

// esewaStatusResponse is the transaction status endpoint payload.
type esewaStatusResponse struct {
	ProductCode     string  `json:"product_code"`
	TransactionUUID string  `json:"transaction_uuid"`
	TotalAmount     float64 `json:"total_amount"`
	Status          string  `json:"status"`
	RefID           string  `json:"ref_id"`
}

// Verify calls the eSewa transaction status endpoint. The payment is only
// considered verified when the response carries the COMPLETE marker and the
// settled amount matches what we expected to collect.
func (e *Esewa) Verify(orderID, transactionRef string, amount float64) (*Verification, error) {
	query := url.Values{}
	query.Set("product_code", e.cfg.ProductCode)
	query.Set("total_amount", formatAmount(amount))
	query.Set("transaction_uuid", transactionRef)

	statusURL := e.cfg.BaseURL + "/api/epay/transaction/status/?" + query.Encode()
	resp, err := e.client.Get(statusURL)
	if err != nil {
		return nil, fmt.Errorf("esewa status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read esewa status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("esewa status endpoint returned HTTP %d", resp.StatusCode)
	}

	var status esewaStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to decode esewa status response: %w", err)
	}

	v := &Verification{
		TransactionRef: transactionRef,
		Amount:         status.TotalAmount,
		Status:         status.Status,
		RawResponse:    string(body),
	}
	if status.Status != esewaStatusComplete {
		v.Reason = fmt.Sprintf("esewa reported status %q", status.Status)
		return v, nil
	}
	if !amountsEqual(status.TotalAmount, amount) {
		v.Reason = fmt.Sprintf("esewa settled %.2f, expected %.2f", status.TotalAmount, amount)
		return v, nil
	}
	v.Verified = true
	return v, nil
}

// ParseCallback extracts the canonical pair from an eSewa success redirect.
// eSewa appends a base64-encoded JSON blob in the `data` parameter; older
// integrations pass transaction_uuid directly. The order id comes from the
// query we embedded in the success URL.
func (e *Esewa) ParseCallback(params map[string]string) (string, string, error) {
	orderID := params["order_id"]
	if orderID == "" {
		return "", "", fmt.Errorf("esewa callback: order_id: %w", apperrors.ErrInvalidCallback)
	}

	txnUUID := params["transaction_uuid"]
	if data := params["data"]; txnUUID == "" && data != "" {
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return "", "", fmt.Errorf("esewa callback: malformed data parameter: %w", apperrors.ErrInvalidCallback)
		}
		var payload struct {
			TransactionUUID string `json:"transaction_uuid"`
		}
		if err := json.Unmarshal(decoded, &payload); err != nil {
			return "", "", fmt.Errorf("esewa callback: malformed data payload: %w", apperrors.ErrInvalidCallback)
		}
		txnUUID = payload.TransactionUUID
	}
	if txnUUID == "" {
		return "", "", fmt.Errorf("esewa callback: transaction_uuid: %w", apperrors.ErrInvalidCallback)
	}
	return orderID, txnUUID, nil
}

// sign computes the HMAC-SHA256 signature eSewa requires over the signed
// field string.
func (e *Esewa) sign(message string) string {
	mac := hmac.New(sha256.New, []byte(e.cfg.SecretKey))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// formatAmount renders an amount the way the provider expects it.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// amountsEqual compares monetary amounts with a small tolerance.
func amountsEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 0.01
}
