package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type TransactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type Item struct {
	ID           string `json:"id"`
	Price        int64  `json:"price"`
	Quantity     int    `json:"quantity"`
	Name         string `json:"name"`
	MerchantName string `json:"merchant_name,omitempty"`
	URL          string `json:"url,omitempty"`
}

type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

type Expiry struct {
	Unit     string `json:"unit"`
	Duration int    `json:"duration"`
}

// ExpiryMinutes rounds d up to whole minutes, the unit the gateway accepts.
func ExpiryMinutes(d time.Duration) *Expiry {
	m := int((d + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return &Expiry{Unit: "minutes", Duration: m}
}

type SessionRequest struct {
	TransactionDetails TransactionDetails `json:"transaction_details"`
	PaymentType        string             `json:"payment_type,omitempty"`
	Items              []Item             `json:"item_details"`
	Customer           Customer           `json:"customer_details"`
	Expiry             *Expiry            `json:"expiry,omitempty"`
	PageExpiry         *Expiry            `json:"page_expiry,omitempty"`
}

type sessionResponse struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages"`
}

// GatewayError is any failure to obtain a payment session.
type GatewayError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("payment gateway: %s (status %d)", e.Message, e.StatusCode)
	}
	return "payment gateway: " + e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

type SnapClient struct {
	baseURL    string
	serverKey  string
	httpClient *http.Client
}

func NewSnapClient(baseURL, serverKey string, timeout time.Duration) *SnapClient {
	return &SnapClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		serverKey: serverKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// CreateSession requests a Snap payment page and returns its redirect URL.
// It makes exactly one attempt.
func (c *SnapClient) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", &GatewayError{Message: "encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/snap/v1/transactions", bytes.NewReader(data))
	if err != nil {
		return "", &GatewayError{Message: "create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(c.serverKey, "")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &GatewayError{Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &GatewayError{StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	var out sessionResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := "unexpected response"
		if decodeErr == nil && len(out.ErrorMessages) > 0 {
			msg = strings.Join(out.ErrorMessages, "; ")
		}
		return "", &GatewayError{StatusCode: resp.StatusCode, Message: msg}
	}

	if decodeErr != nil {
		return "", &GatewayError{StatusCode: resp.StatusCode, Message: "decode response", Err: decodeErr}
	}
	if out.RedirectURL == "" {
		return "", &GatewayError{StatusCode: resp.StatusCode, Message: "response has no redirect_url"}
	}

	return out.RedirectURL, nil
}
