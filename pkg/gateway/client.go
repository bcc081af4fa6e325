package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
)

const (
	defaultSnapURL          = "https://app.sandbox.midtrans.com/snap/v1"
	defaultAPIURL           = "https://api.sandbox.midtrans.com"
	responseReadLimit int64 = 1024
)

var errServerKeyRequired = errors.New("gateway server key is required")

// Customer is the buyer detail forwarded on a payment intent.
type Customer struct {
	FirstName string `json:"first_name"`
	Email     string `json:"email,omitempty"`
}

// TransactionRequest asks the gateway for a hosted payment page.
type TransactionRequest struct {
	OrderID     string
	GrossAmount decimal.Decimal
	Customer    Customer
}

// Transaction is the hosted payment handle returned by the gateway.
type Transaction struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// Client is the payment gateway HTTP client.
type Client struct {
	httpClient *http.Client
	snapURL    string
	apiURL     string
	serverKey  string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSnapURL overrides the hosted payment base URL.
func WithSnapURL(raw string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			c.snapURL = trimmed
		}
	}
}

// WithAPIURL overrides the core API base URL used for status polling.
func WithAPIURL(raw string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			c.apiURL = trimmed
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a gateway client authenticated with the merchant server key.
func NewClient(serverKey string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(serverKey)
	if trimmed == "" {
		return nil, errServerKeyRequired
	}
	client := &Client{
		serverKey:  trimmed,
		snapURL:    defaultSnapURL,
		apiURL:     defaultAPIURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ServerKey exposes the key used for callback signature verification.
func (c *Client) ServerKey() string {
	if c == nil {
		return ""
	}
	return c.serverKey
}

// CreateTransaction requests a payment intent token for an order. The gross
// amount is sent exactly as stored, so the charged amount always matches the
// order's grand total.
func (c *Client) CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeExternalService, "gateway client not configured")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	body := map[string]any{
		"transaction_details": map[string]any{
			"order_id":     req.OrderID,
			"gross_amount": json.Number(req.GrossAmount.Round(2).String()),
		},
		"customer_details": req.Customer,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal transaction request")
	}

	endpoint := fmt.Sprintf("%s/transactions", strings.TrimRight(c.snapURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "build transaction request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(c.serverKey, "")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "execute transaction request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, "transaction request failed")
	}

	var tx Transaction
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "decode transaction response")
	}
	if tx.Token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeExternalService, "gateway returned an empty token")
	}
	return &tx, nil
}

// Status fetches the gateway's current view of an order's transaction.
func (c *Client) Status(ctx context.Context, orderID string) (*Notification, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeExternalService, "gateway client not configured")
	}
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	endpoint := fmt.Sprintf("%s/v2/%s/status", strings.TrimRight(c.apiURL, "/"), url.PathEscape(trimmed))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "build status request")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(c.serverKey, "")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "execute status request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, "status request failed")
	}

	var n Notification
	if err := json.NewDecoder(resp.Body).Decode(&n); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "decode status response")
	}
	if n.StatusCode == "404" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found at gateway")
	}
	return &n, nil
}

func statusError(resp *http.Response, message string) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	return pkgerrors.Wrap(pkgerrors.CodeExternalService, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), message)
}
