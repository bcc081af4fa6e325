package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
	"github.com/angelmondragon/settlement-core/pkg/gateway"
)

const testServerKey = "SB-Mid-server-webhook"

type staticKey string

func (k staticKey) ServerKey() string { return string(k) }

type stubIngester struct {
	calls int
	err   error
}

func (s *stubIngester) IngestCallback(context.Context, gateway.Notification) error {
	s.calls++
	return s.err
}

type stubGuard struct {
	seen    map[string]bool
	marks   int
	seenErr error
	markErr error
}

func newStubGuard() *stubGuard {
	return &stubGuard{seen: map[string]bool{}}
}

func (g *stubGuard) Seen(_ context.Context, n gateway.Notification) (bool, error) {
	if g.seenErr != nil {
		return false, g.seenErr
	}
	return g.seen[n.OrderID+n.TransactionStatus], nil
}

func (g *stubGuard) Mark(_ context.Context, n gateway.Notification) error {
	g.marks++
	if g.markErr != nil {
		return g.markErr
	}
	g.seen[n.OrderID+n.TransactionStatus] = true
	return nil
}

func signedBody(t *testing.T, key string) []byte {
	t.Helper()
	n := gateway.Notification{
		OrderID:           "BLUE12345",
		StatusCode:        "200",
		GrossAmount:       "37200.00",
		PaymentType:       "bank_transfer",
		TransactionStatus: "settlement",
	}
	n.SignatureKey = gateway.Signature(n.OrderID, n.StatusCode, n.GrossAmount, key)
	body, err := json.Marshal(n)
	require.NoError(t, err)
	return body
}

func post(handler http.Handler, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGatewayCallbackAppliesOnce(t *testing.T) {
	svc := &stubIngester{}
	guard := newStubGuard()
	handler := GatewayCallback(svc, staticKey(testServerKey), guard, nil)
	body := signedBody(t, testServerKey)

	rec := post(handler, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.calls)

	rec = post(handler, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate")
	assert.Equal(t, 1, svc.calls)
}

func TestGatewayCallbackRejectsBadSignature(t *testing.T) {
	svc := &stubIngester{}
	guard := newStubGuard()
	handler := GatewayCallback(svc, staticKey(testServerKey), guard, nil)

	rec := post(handler, signedBody(t, "wrong-key"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, svc.calls)
	assert.Empty(t, guard.seen)
}

func TestGatewayCallbackUnknownOrder(t *testing.T) {
	svc := &stubIngester{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	guard := newStubGuard()
	handler := GatewayCallback(svc, staticKey(testServerKey), guard, nil)

	rec := post(handler, signedBody(t, testServerKey))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, guard.marks)
	assert.Empty(t, guard.seen)
}

func TestGatewayCallbackRedeliveryAfterFailedIngestion(t *testing.T) {
	svc := &stubIngester{err: errors.New("db unavailable")}
	guard := newStubGuard()
	guard.markErr = errors.New("redis unavailable")
	handler := GatewayCallback(svc, staticKey(testServerKey), guard, nil)
	body := signedBody(t, testServerKey)

	rec := post(handler, body)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Zero(t, guard.marks)

	svc.err = nil
	rec = post(handler, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "duplicate")
	assert.Equal(t, 2, svc.calls)
	assert.Equal(t, 1, guard.marks)

	// the mark failed, so a further redelivery is applied again rather than dropped
	rec = post(handler, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, svc.calls)
}

func TestGatewayCallbackAppliesWhenGuardUnavailable(t *testing.T) {
	svc := &stubIngester{}
	guard := newStubGuard()
	guard.seenErr = errors.New("redis unavailable")
	handler := GatewayCallback(svc, staticKey(testServerKey), guard, nil)

	rec := post(handler, signedBody(t, testServerKey))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.calls)
}

func TestGatewayCallbackValidatesPayload(t *testing.T) {
	handler := GatewayCallback(&stubIngester{}, staticKey(testServerKey), nil, nil)
	rec := post(handler, []byte(`{"order_id":"BLUE12345"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
