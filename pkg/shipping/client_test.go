package shipping

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient("test-key",
		WithBaseURL("http://rates.test/api/v1"),
		WithCouriers("jne:sicepat"),
		WithHTTPClient(&http.Client{Transport: rt}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestClientRatesRequest(t *testing.T) {
	respBody := `{"meta":{"code":200,"status":"success"},"data":[
		{"name":"Jalur Nugraha Ekakurir (JNE)","code":"JNE","service":"REG","description":"Layanan Reguler","cost":15000,"etd":"2-3 day"},
		{"name":"SiCepat Express","code":"sicepat","service":"BEST","description":"Besok Sampai","cost":22000,"etd":"1 day"}
	]}`

	var captured *http.Request
	var form url.Values
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		form, err = url.ParseQuery(string(body))
		if err != nil {
			t.Fatalf("parse form: %v", err)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	rates, err := client.Rates(context.Background(), RateRequest{
		OriginID:      "501",
		DestinationID: "17",
		Weight:        1200,
		DeclaredValue: decimal.NewFromInt(20000),
	})
	if err != nil {
		t.Fatalf("rates: %v", err)
	}

	if captured.URL.String() != "http://rates.test/api/v1/calculate/domestic-cost" {
		t.Fatalf("unexpected URL %q", captured.URL.String())
	}
	if captured.Header.Get("key") != "test-key" {
		t.Fatal("api key header missing")
	}
	if got := form.Get("weight"); got != "1200" {
		t.Fatalf("unexpected weight %q", got)
	}
	if got := form.Get("courier"); got != "jne:sicepat" {
		t.Fatalf("unexpected couriers %q", got)
	}
	if got := form.Get("item_value"); got != "20000" {
		t.Fatalf("unexpected item value %q", got)
	}

	if len(rates) != 2 {
		t.Fatalf("expected 2 rates, got %d", len(rates))
	}
	if rates[0].Carrier != "jne" || rates[0].Service != "REG" {
		t.Fatalf("unexpected first rate %+v", rates[0])
	}
	if !rates[0].Cost.Equal(decimal.NewFromInt(15000)) {
		t.Fatalf("unexpected cost %s", rates[0].Cost)
	}
}

func TestClientRatesClampsWeight(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		form, _ := url.ParseQuery(string(body))
		if form.Get("weight") != "1" {
			t.Fatalf("expected weight clamped to 1, got %q", form.Get("weight"))
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"data":[]}`)),
			Header:     http.Header{},
		}, nil
	})

	rates, err := client.Rates(context.Background(), RateRequest{OriginID: "1", DestinationID: "2"})
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if len(rates) != 0 {
		t.Fatalf("expected no rates, got %d", len(rates))
	}
}

func TestClientRatesProviderError(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadGateway,
			Body:       io.NopCloser(strings.NewReader("upstream down")),
			Header:     http.Header{},
		}, nil
	})

	_, err := client.Rates(context.Background(), RateRequest{OriginID: "1", DestinationID: "2", Weight: 10})
	if !pkgerrors.IsCode(err, pkgerrors.CodeExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
}

func TestClientRatesRequiresRoute(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	_, err := client.Rates(context.Background(), RateRequest{OriginID: "1"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatal("expected missing key error")
	}
}
