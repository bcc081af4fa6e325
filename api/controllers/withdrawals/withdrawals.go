package withdrawals

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlement-core/api/middleware"
	"github.com/angelmondragon/settlement-core/api/responses"
	"github.com/angelmondragon/settlement-core/api/validators"
	internalwithdrawals "github.com/angelmondragon/settlement-core/internal/withdrawals"
	"github.com/angelmondragon/settlement-core/pkg/auth"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
	"github.com/angelmondragon/settlement-core/pkg/logger"
	"github.com/angelmondragon/settlement-core/pkg/types"
)

// Workflow is the withdrawal service surface used over HTTP.
type Workflow interface {
	Request(ctx context.Context, authz auth.Authorization, storeBalanceID uuid.UUID, amount decimal.Decimal, bank internalwithdrawals.BankDetails) (*models.Withdrawal, error)
	Approve(ctx context.Context, authz auth.Authorization, withdrawalID uuid.UUID, proof string) (*models.Withdrawal, error)
	List(ctx context.Context, authz auth.Authorization, storeBalanceID uuid.UUID, page types.Page) (*internalwithdrawals.List, error)
}

type requestBody struct {
	Amount decimal.Decimal                 `json:"amount"`
	Bank   internalwithdrawals.BankDetails `json:"bank" validate:"required"`
}

type approveBody struct {
	Proof string `json:"proof" validate:"required,max=2048"`
}

// Request debits the balance and files a pending withdrawal.
func Request(svc Workflow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authz, err := middleware.Authorization(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balanceID, err := validators.ParseUUIDParam(r, "balanceID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body requestBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !body.Amount.IsPositive() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").
				WithDetails(map[string]string{"amount": "must be greater than 0"}))
			return
		}
		withdrawal, err := svc.Request(r.Context(), authz, balanceID, body.Amount, body.Bank)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, withdrawal)
	}
}

func List(svc Workflow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authz, err := middleware.Authorization(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balanceID, err := validators.ParseUUIDParam(r, "balanceID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.List(r.Context(), authz, balanceID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Approve marks a pending withdrawal as paid out. Admin only.
func Approve(svc Workflow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authz, err := middleware.Authorization(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		withdrawalID, err := validators.ParseUUIDParam(r, "withdrawalID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body approveBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		withdrawal, err := svc.Approve(r.Context(), authz, withdrawalID, body.Proof)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, withdrawal)
	}
}
