package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient("SB-server-key",
		WithSnapURL("http://snap.test/snap/v1"),
		WithAPIURL("http://api.test"),
		WithHTTPClient(&http.Client{Transport: rt}),
	)
	require.NoError(t, err)
	return client
}

func TestCreateTransaction(t *testing.T) {
	var payload map[string]any
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "http://snap.test/snap/v1/transactions", req.URL.String())
		user, pass, ok := req.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "SB-server-key", user)
		assert.Empty(t, pass)

		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &payload))
		return jsonResponse(http.StatusCreated, `{"token":"snap-token","redirect_url":"http://snap.test/pay"}`), nil
	})

	tx, err := client.CreateTransaction(context.Background(), TransactionRequest{
		OrderID:     "BLUE12345",
		GrossAmount: decimal.RequireFromString("37200.00"),
		Customer:    Customer{FirstName: "Rina", Email: "rina@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "snap-token", tx.Token)

	details := payload["transaction_details"].(map[string]any)
	assert.Equal(t, "BLUE12345", details["order_id"])
	assert.Equal(t, float64(37200), details["gross_amount"])
	customer := payload["customer_details"].(map[string]any)
	assert.Equal(t, "Rina", customer["first_name"])
}

func TestCreateTransactionKeepsFractionalAmount(t *testing.T) {
	var raw map[string]json.RawMessage
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &raw))
		return jsonResponse(http.StatusCreated, `{"token":"snap-token"}`), nil
	})

	_, err := client.CreateTransaction(context.Background(), TransactionRequest{
		OrderID:     "BLUE12346",
		GrossAmount: decimal.RequireFromString("26101.11"),
	})
	require.NoError(t, err)

	var details struct {
		GrossAmount json.Number `json:"gross_amount"`
	}
	require.NoError(t, json.Unmarshal(raw["transaction_details"], &details))
	assert.Equal(t, "26101.11", details.GrossAmount.String())
}

func TestCreateTransactionGatewayError(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, `{"error_messages":["boom"]}`), nil
	})
	_, err := client.CreateTransaction(context.Background(), TransactionRequest{OrderID: "BLUE1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeExternalService))
}

func TestStatus(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodGet, req.Method)
		assert.Equal(t, "http://api.test/v2/BLUE12345/status", req.URL.String())
		return jsonResponse(http.StatusOK, `{"order_id":"BLUE12345","status_code":"200","gross_amount":"37200.00","transaction_status":"settlement","payment_type":"bank_transfer"}`), nil
	})
	n, err := client.Status(context.Background(), "BLUE12345")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, n.MapStatus())
}

func TestStatusNotFoundAtGateway(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"status_code":"404","status_message":"Transaction doesn't exist."}`), nil
	})
	_, err := client.Status(context.Background(), "BLUE00000")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestNewClientRequiresServerKey(t *testing.T) {
	_, err := NewClient("")
	assert.Error(t, err)
}
