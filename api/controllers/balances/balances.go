package balances

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-core/api/middleware"
	"github.com/angelmondragon/settlement-core/api/responses"
	"github.com/angelmondragon/settlement-core/api/validators"
	internalbalances "github.com/angelmondragon/settlement-core/internal/balances"
	"github.com/angelmondragon/settlement-core/pkg/auth"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/logger"
	"github.com/angelmondragon/settlement-core/pkg/types"
)

// Reader is the read side of the balance ledger.
type Reader interface {
	GetForStore(ctx context.Context, authz auth.Authorization, storeID uuid.UUID) (*models.StoreBalance, error)
	History(ctx context.Context, authz auth.Authorization, storeBalanceID uuid.UUID, page types.Page) (*internalbalances.HistoryPage, error)
}

func StoreBalance(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authz, err := middleware.Authorization(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		storeID, err := validators.ParseUUIDParam(r, "storeID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balance, err := svc.GetForStore(r.Context(), authz, storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// History lists ledger entries newest first, paged by limit/offset.
func History(svc Reader, logg *logger.Logger) http.HandlerFunc {
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
		history, err := svc.History(r.Context(), authz, balanceID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}

// Reconciler compares a stored balance with its ledger.
type Reconciler interface {
	ReconcileAs(ctx context.Context, authz auth.Authorization, storeBalanceID uuid.UUID) (internalbalances.Reconciliation, error)
}

type reconciliationResponse struct {
	internalbalances.Reconciliation
	Balanced bool `json:"balanced"`
}

// Reconciliation reports whether the ledger explains the balance. Admin only.
func Reconciliation(svc Reconciler, logg *logger.Logger) http.HandlerFunc {
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
		rec, err := svc.ReconcileAs(r.Context(), authz, balanceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reconciliationResponse{Reconciliation: rec, Balanced: rec.Balanced()})
	}
}
