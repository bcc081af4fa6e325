package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-core/api/middleware"
	"github.com/angelmondragon/settlement-core/api/responses"
	"github.com/angelmondragon/settlement-core/api/validators"
	internalorders "github.com/angelmondragon/settlement-core/internal/orders"
	"github.com/angelmondragon/settlement-core/pkg/auth"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
	"github.com/angelmondragon/settlement-core/pkg/logger"
)

// StatusChecker polls the gateway for an order's payment result.
type StatusChecker interface {
	CheckStatus(ctx context.Context, authz auth.Authorization, orderID uuid.UUID) (*models.Order, error)
}

type retryPaymentRequest struct {
	Buyer internalorders.BuyerContact `json:"buyer" validate:"required"`
}

// Create places a buyer order and returns it with its payment token, if the
// gateway issued one.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authz, err := middleware.Authorization(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var in internalorders.CreateOrderInput
		if err := validators.DecodeJSONBody(r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Create(r.Context(), authz, in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrderID(logg, func(w http.ResponseWriter, r *http.Request, authz auth.Authorization, orderID uuid.UUID) {
		order, err := svc.Get(r.Context(), authz, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	})
}

func DetailByCode(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authz, err := middleware.Authorization(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		code := strings.ToUpper(validators.SanitizeString(chi.URLParam(r, "code"), 16))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order code required"))
			return
		}
		order, err := svc.GetByCode(r.Context(), authz, code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// List returns the caller's orders, optionally filtered by payment_status.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authz, err := middleware.Authorization(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		q := internalorders.ListQuery{Page: page}
		if raw := strings.TrimSpace(r.URL.Query().Get("payment_status")); raw != "" {
			status, err := enums.ParsePaymentStatus(strings.ToLower(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_status"))
				return
			}
			q.PaymentStatus = status
		}
		list, err := svc.List(r.Context(), authz, q)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// UpdateDelivery advances the delivery status by one step.
func UpdateDelivery(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrderID(logg, func(w http.ResponseWriter, r *http.Request, authz auth.Authorization, orderID uuid.UUID) {
		var in internalorders.UpdateDeliveryInput
		if err := validators.DecodeJSONBody(r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.UpdateDeliveryStatus(r.Context(), authz, orderID, in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	})
}

func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrderID(logg, func(w http.ResponseWriter, r *http.Request, authz auth.Authorization, orderID uuid.UUID) {
		order, err := svc.Cancel(r.Context(), authz, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	})
}

func RetryPayment(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrderID(logg, func(w http.ResponseWriter, r *http.Request, authz auth.Authorization, orderID uuid.UUID) {
		var req retryPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.RetryPayment(r.Context(), authz, orderID, req.Buyer)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	})
}

func CheckStatus(svc StatusChecker, logg *logger.Logger) http.HandlerFunc {
	return withOrderID(logg, func(w http.ResponseWriter, r *http.Request, authz auth.Authorization, orderID uuid.UUID) {
		order, err := svc.CheckStatus(r.Context(), authz, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	})
}

type orderHandler func(w http.ResponseWriter, r *http.Request, authz auth.Authorization, orderID uuid.UUID)

func withOrderID(logg *logger.Logger, next orderHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authz, err := middleware.Authorization(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		next(w, r, authz, orderID)
	}
}
