package middleware

import (
	"context"

	"github.com/angelmondragon/settlement-core/pkg/auth"
	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
)

type contextKey string

const ctxActor contextKey = "actor"

// WithActor stores the authenticated actor on the context.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

// ActorFromContext returns the actor seeded by Auth.
func ActorFromContext(ctx context.Context) (auth.Actor, bool) {
	if ctx == nil {
		return auth.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(auth.Actor)
	return actor, ok
}

func UserIDFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.UserID.String()
	}
	return ""
}

func StoreIDFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.StoreID != nil {
		return actor.StoreID.String()
	}
	return ""
}

// Authorization returns the request actor as the capability handed to
// services, or an UNAUTHORIZED error when Auth did not run.
func Authorization(ctx context.Context) (auth.Authorization, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}
