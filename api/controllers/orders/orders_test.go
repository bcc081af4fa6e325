package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/api/middleware"
	internalorders "github.com/angelmondragon/settlement-core/internal/orders"
	"github.com/angelmondragon/settlement-core/pkg/auth"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
)

type stubOrdersService struct {
	create   func(ctx context.Context, authz auth.Authorization, in internalorders.CreateOrderInput) (*models.Order, error)
	get      func(ctx context.Context, authz auth.Authorization, id uuid.UUID) (*models.Order, error)
	byCode   func(ctx context.Context, authz auth.Authorization, code string) (*models.Order, error)
	delivery func(ctx context.Context, authz auth.Authorization, orderID uuid.UUID, in internalorders.UpdateDeliveryInput) (*models.Order, error)
	cancel   func(ctx context.Context, authz auth.Authorization, orderID uuid.UUID) (*models.Order, error)
	retry    func(ctx context.Context, authz auth.Authorization, orderID uuid.UUID, buyer internalorders.BuyerContact) (*models.Order, error)
	list     func(ctx context.Context, authz auth.Authorization, q internalorders.ListQuery) (*internalorders.List, error)
}

func (s *stubOrdersService) Create(ctx context.Context, authz auth.Authorization, in internalorders.CreateOrderInput) (*models.Order, error) {
	if s.create != nil {
		return s.create(ctx, authz, in)
	}
	return &models.Order{}, nil
}

func (s *stubOrdersService) Get(ctx context.Context, authz auth.Authorization, id uuid.UUID) (*models.Order, error) {
	if s.get != nil {
		return s.get(ctx, authz, id)
	}
	return &models.Order{ID: id}, nil
}

func (s *stubOrdersService) GetByCode(ctx context.Context, authz auth.Authorization, code string) (*models.Order, error) {
	if s.byCode != nil {
		return s.byCode(ctx, authz, code)
	}
	return &models.Order{Code: code}, nil
}

func (s *stubOrdersService) List(ctx context.Context, authz auth.Authorization, q internalorders.ListQuery) (*internalorders.List, error) {
	if s.list != nil {
		return s.list(ctx, authz, q)
	}
	return &internalorders.List{Page: q.Page}, nil
}

func (s *stubOrdersService) UpdateDeliveryStatus(ctx context.Context, authz auth.Authorization, orderID uuid.UUID, in internalorders.UpdateDeliveryInput) (*models.Order, error) {
	if s.delivery != nil {
		return s.delivery(ctx, authz, orderID, in)
	}
	return &models.Order{ID: orderID, DeliveryStatus: in.Status}, nil
}

func (s *stubOrdersService) Cancel(ctx context.Context, authz auth.Authorization, orderID uuid.UUID) (*models.Order, error) {
	if s.cancel != nil {
		return s.cancel(ctx, authz, orderID)
	}
	return &models.Order{ID: orderID}, nil
}

func (s *stubOrdersService) RetryPayment(ctx context.Context, authz auth.Authorization, orderID uuid.UUID, buyer internalorders.BuyerContact) (*models.Order, error) {
	if s.retry != nil {
		return s.retry(ctx, authz, orderID, buyer)
	}
	return &models.Order{ID: orderID}, nil
}

func (s *stubOrdersService) FailPending(context.Context, *gorm.DB, uuid.UUID, string) (bool, error) {
	panic("not used by controllers")
}

func (s *stubOrdersService) ListExpired(context.Context, time.Time, int) ([]uuid.UUID, error) {
	panic("not used by controllers")
}

func withActor(req *http.Request, actor auth.Actor) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), actor))
}

func withParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func buyer() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.RoleBuyer}
}

func TestCreateReturnsCreated(t *testing.T) {
	storeID := uuid.New()
	productID := uuid.New()
	actor := buyer()
	svc := &stubOrdersService{
		create: func(ctx context.Context, authz auth.Authorization, in internalorders.CreateOrderInput) (*models.Order, error) {
			if authz.ActorID() != actor.UserID {
				t.Fatalf("unexpected actor %s", authz.ActorID())
			}
			if in.StoreID != storeID || len(in.Lines) != 1 || in.Lines[0].Quantity != 2 {
				t.Fatalf("input not decoded: %+v", in)
			}
			return &models.Order{ID: uuid.New(), Code: "BLUE12345", StoreID: storeID}, nil
		},
	}

	body := `{
		"store_id": "` + storeID.String() + `",
		"shipping_address": {"recipient_name":"Rina","phone":"0812","address_line":"Jl. Merdeka 1","city":"Bandung","postal_code":"40111","destination_id":"501"},
		"lines": [{"product_id":"` + productID.String() + `","quantity":2}],
		"shipping_carrier": "jne",
		"shipping_service": "REG",
		"buyer": {"name":"Rina","email":"rina@example.com"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req = withActor(req, actor)
	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data models.Order `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Code != "BLUE12345" {
		t.Fatalf("unexpected code %q", envelope.Data.Code)
	}
}

func TestCreateRejectsEmptyLines(t *testing.T) {
	svc := &stubOrdersService{
		create: func(context.Context, auth.Authorization, internalorders.CreateOrderInput) (*models.Order, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	body := `{"store_id":"` + uuid.NewString() + `","lines":[],"shipping_carrier":"jne","shipping_service":"REG"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)), buyer())
	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCreateRequiresActor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	Create(&stubOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestDetailInvalidOrderID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/nope", nil)
	req = withParam(withActor(req, buyer()), "orderID", "nope")
	resp := httptest.NewRecorder()
	Detail(&stubOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDetailMapsNotFound(t *testing.T) {
	svc := &stubOrdersService{
		get: func(context.Context, auth.Authorization, uuid.UUID) (*models.Order, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		},
	}
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+id.String(), nil)
	req = withParam(withActor(req, buyer()), "orderID", id.String())
	resp := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestDetailByCodeUppercases(t *testing.T) {
	var got string
	svc := &stubOrdersService{
		byCode: func(_ context.Context, _ auth.Authorization, code string) (*models.Order, error) {
			got = code
			return &models.Order{Code: code}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/code/blue12345", nil)
	req = withParam(withActor(req, buyer()), "code", "blue12345")
	resp := httptest.NewRecorder()
	DetailByCode(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got != "BLUE12345" {
		t.Fatalf("unexpected code %q", got)
	}
}

func TestUpdateDeliveryInvalidTransition(t *testing.T) {
	storeID := uuid.New()
	actor := auth.Actor{UserID: uuid.New(), StoreID: &storeID, Role: enums.RoleStore}
	svc := &stubOrdersService{
		delivery: func(_ context.Context, _ auth.Authorization, _ uuid.UUID, in internalorders.UpdateDeliveryInput) (*models.Order, error) {
			if in.Status != enums.DeliveryStatusCompleted {
				t.Fatalf("unexpected status %s", in.Status)
			}
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "delivery status cannot skip steps")
		},
	}
	id := uuid.New()
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/"+id.String()+"/delivery", strings.NewReader(`{"status":"completed"}`))
	req = withParam(withActor(req, actor), "orderID", id.String())
	resp := httptest.NewRecorder()
	UpdateDelivery(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "cannot skip steps") {
		t.Fatalf("message not surfaced: %s", resp.Body.String())
	}
}

func TestRetryPaymentPassesBuyer(t *testing.T) {
	svc := &stubOrdersService{
		retry: func(_ context.Context, _ auth.Authorization, orderID uuid.UUID, contact internalorders.BuyerContact) (*models.Order, error) {
			if contact.Name != "Rina" {
				t.Fatalf("unexpected buyer %+v", contact)
			}
			token := "snap-token"
			return &models.Order{ID: orderID, PaymentIntentToken: &token}, nil
		},
	}
	id := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+id.String()+"/retry-payment", strings.NewReader(`{"buyer":{"name":"Rina"}}`))
	req = withParam(withActor(req, buyer()), "orderID", id.String())
	resp := httptest.NewRecorder()
	RetryPayment(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestListParsesPageAndStatus(t *testing.T) {
	var got internalorders.ListQuery
	svc := &stubOrdersService{
		list: func(_ context.Context, _ auth.Authorization, q internalorders.ListQuery) (*internalorders.List, error) {
			got = q
			return &internalorders.List{Items: []models.Order{{Code: "BLUE12345"}}, Total: 1, Page: q.Page}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=5&offset=10&payment_status=PAID", nil)
	resp := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, withActor(req, buyer()))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.Page.Limit != 5 || got.Page.Offset != 10 || got.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("query not parsed: %+v", got)
	}
	if !strings.Contains(resp.Body.String(), "BLUE12345") {
		t.Fatalf("listing missing from body: %s", resp.Body.String())
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	svc := &stubOrdersService{
		list: func(context.Context, auth.Authorization, internalorders.ListQuery) (*internalorders.List, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?payment_status=refunded", nil)
	resp := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, withActor(req, buyer()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
