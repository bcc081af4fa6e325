package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
)

const (
	defaultBaseURL          = "https://rajaongkir.komerce.id/api/v1"
	defaultCouriers         = "jne:sicepat:jnt:pos:tiki"
	domesticCostPath        = "calculate/domestic-cost"
	responseReadLimit int64 = 1024
)

var errAPIKeyRequired = errors.New("shipping api key is required")

// RateRequest is the input to a domestic cost lookup. Weight is in grams.
type RateRequest struct {
	OriginID      string
	DestinationID string
	Weight        int
	DeclaredValue decimal.Decimal
}

// Rate is one carrier service offered by the provider.
type Rate struct {
	Carrier     string
	CarrierName string
	Service     string
	Description string
	Cost        decimal.Decimal
	ETD         string
}

// RateProvider is the narrow surface the pricing engine depends on.
type RateProvider interface {
	Rates(ctx context.Context, req RateRequest) ([]Rate, error)
}

// Client calls the shipping-rate provider's domestic cost API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	couriers   string
}

var _ RateProvider = (*Client)(nil)

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

// WithBaseURL overrides the provider base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithCouriers sets the colon separated courier codes to query.
func WithCouriers(couriers string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(couriers); trimmed != "" {
			c.couriers = trimmed
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

// NewClient builds a rate client for the given API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		couriers:   defaultCouriers,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type costResponse struct {
	Meta struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
		Status  string `json:"status"`
	} `json:"meta"`
	Data []struct {
		Name        string          `json:"name"`
		Code        string          `json:"code"`
		Service     string          `json:"service"`
		Description string          `json:"description"`
		Cost        decimal.Decimal `json:"cost"`
		ETD         string          `json:"etd"`
	} `json:"data"`
}

// Rates returns every service the provider offers for the route. Provider
// failures surface as CodeExternalService.
func (c *Client) Rates(ctx context.Context, req RateRequest) ([]Rate, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeExternalService, "shipping client not configured")
	}
	if strings.TrimSpace(req.OriginID) == "" || strings.TrimSpace(req.DestinationID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "origin and destination are required")
	}
	weight := req.Weight
	if weight < 1 {
		weight = 1
	}

	form := url.Values{}
	form.Set("origin", req.OriginID)
	form.Set("destination", req.DestinationID)
	form.Set("weight", strconv.Itoa(weight))
	form.Set("courier", c.couriers)
	form.Set("price", "lowest")
	if req.DeclaredValue.IsPositive() {
		form.Set("item_value", req.DeclaredValue.StringFixed(0))
	}

	endpoint := fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), domesticCostPath)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "build shipping cost request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "execute shipping cost request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalService, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "shipping cost request failed")
	}

	var apiResp costResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "decode shipping cost response")
	}

	rates := make([]Rate, 0, len(apiResp.Data))
	for _, item := range apiResp.Data {
		rates = append(rates, Rate{
			Carrier:     strings.ToLower(strings.TrimSpace(item.Code)),
			CarrierName: item.Name,
			Service:     strings.TrimSpace(item.Service),
			Description: item.Description,
			Cost:        item.Cost,
			ETD:         item.ETD,
		})
	}
	return rates, nil
}
