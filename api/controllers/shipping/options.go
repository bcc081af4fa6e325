package shipping

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-core/api/middleware"
	"github.com/angelmondragon/settlement-core/api/responses"
	"github.com/angelmondragon/settlement-core/api/validators"
	"github.com/angelmondragon/settlement-core/internal/pricing"
	"github.com/angelmondragon/settlement-core/pkg/logger"
)

// OptionLister is the cart-page pricing surface.
type OptionLister interface {
	ListOptions(ctx context.Context, storeID uuid.UUID, destinationID string, lines []pricing.Line) (*pricing.OptionList, error)
}

type optionsRequest struct {
	StoreID       uuid.UUID      `json:"store_id" validate:"required"`
	DestinationID string         `json:"destination_id" validate:"required,max=32"`
	Lines         []pricing.Line `json:"lines" validate:"required,min=1,dive"`
}

// Options lists the carrier services for a cart, cheapest first.
func Options(svc OptionLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := middleware.Authorization(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req optionsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListOptions(r.Context(), req.StoreID, req.DestinationID, req.Lines)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
