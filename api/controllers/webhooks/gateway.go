package webhooks

import (
	"context"
	"net/http"

	"github.com/angelmondragon/settlement-core/api/responses"
	"github.com/angelmondragon/settlement-core/api/validators"
	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
	"github.com/angelmondragon/settlement-core/pkg/gateway"
	"github.com/angelmondragon/settlement-core/pkg/logger"
)

// CallbackIngester applies a verified gateway notification.
type CallbackIngester interface {
	IngestCallback(ctx context.Context, n gateway.Notification) error
}

// ReplayGuard suppresses notifications that were already applied.
type ReplayGuard interface {
	Seen(ctx context.Context, n gateway.Notification) (bool, error)
	Mark(ctx context.Context, n gateway.Notification) error
}

// Signer exposes the key callbacks are signed with.
type Signer interface {
	ServerKey() string
}

// GatewayCallback receives payment notifications. It answers 403 on a bad
// signature and 404 for an unknown order; duplicates are acknowledged
// without reapplying.
func GatewayCallback(svc CallbackIngester, keys Signer, guard ReplayGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || keys == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var n gateway.Notification
		if err := validators.DecodeJSONBody(r, &n); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithOrderCode(ctx, n.OrderID)
		}

		// the guard is only consulted for authentic payloads
		if !n.VerifySignature(keys.ServerKey()) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInvalidSignature, "callback signature mismatch"))
			return
		}

		if guard != nil {
			seen, err := guard.Seen(ctx, n)
			switch {
			case err != nil:
				// ingestion is idempotent on its own; fall through and apply
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "callback replay check failed")
				}
			case seen:
				if logg != nil {
					logg.Info(logg.WithField(ctx, "transaction_status", n.TransactionStatus), "duplicate gateway callback acknowledged")
				}
				responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
				return
			}
		}

		if err := svc.IngestCallback(ctx, n); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if guard != nil {
			if err := guard.Mark(ctx, n); err != nil && logg != nil {
				logg.Error(ctx, "failed to mark gateway callback", err)
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
