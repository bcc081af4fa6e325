package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-core/pkg/redis"
)

// Manager records which outbox event ids a worker has already handed to the
// broker. A publish that succeeds but fails to mark its row is therefore not
// sent twice while the key lives.
// Keys follow the `settle:idempotency:evt:<worker>:<event_id>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds a guard that remembers claimed events for the given TTL.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Claim reports whether the event was already claimed and otherwise claims it.
func (m *Manager) Claim(ctx context.Context, worker string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(worker, eventID)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Release drops a claim so the event can be retried.
func (m *Manager) Release(ctx context.Context, worker string, eventID uuid.UUID) error {
	key, err := m.key(worker, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(worker string, eventID uuid.UUID) (string, error) {
	if worker == "" {
		return "", errors.New("worker name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey(fmt.Sprintf("evt:%s", worker), eventID.String()), nil
}
