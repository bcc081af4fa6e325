package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/settlement-core/pkg/gateway"
)

const defaultReplayTTL = 24 * time.Hour

type callbackStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CallbackKey(orderCode, statusCode, transactionStatus string) string
}

// ReplayGuard short-circuits gateway notifications already applied. Marks
// are written only after ingestion commits. The key covers the order,
// status code and transaction status, so a later transition of the same
// order still passes.
type ReplayGuard struct {
	store callbackStore
	ttl   time.Duration
}

func NewReplayGuard(store callbackStore, ttl time.Duration) (*ReplayGuard, error) {
	if store == nil {
		return nil, errors.New("callback store required")
	}
	if ttl <= 0 {
		ttl = defaultReplayTTL
	}
	return &ReplayGuard{store: store, ttl: ttl}, nil
}

// Seen reports whether n was already applied.
func (g *ReplayGuard) Seen(ctx context.Context, n gateway.Notification) (bool, error) {
	if n.OrderID == "" {
		return false, errors.New("notification order id is required")
	}
	found, err := g.store.Exists(ctx, g.key(n))
	if err != nil {
		return false, fmt.Errorf("check callback mark: %w", err)
	}
	return found, nil
}

// Mark records n as applied.
func (g *ReplayGuard) Mark(ctx context.Context, n gateway.Notification) error {
	if n.OrderID == "" {
		return errors.New("notification order id is required")
	}
	if err := g.store.Set(ctx, g.key(n), "1", g.ttl); err != nil {
		return fmt.Errorf("mark callback: %w", err)
	}
	return nil
}

func (g *ReplayGuard) key(n gateway.Notification) string {
	return g.store.CallbackKey(n.OrderID, n.StatusCode, n.TransactionStatus)
}
