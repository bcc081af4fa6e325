package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	setNXResult bool
	setNXError  error
	lastKey     string
	lastTTL     time.Duration
	lastDeleted string
}

func (f *fakeStore) Get(context.Context, string) (string, error) {
	return "", nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	f.lastKey = key
	f.lastTTL = ttl
	return f.setNXResult, f.setNXError
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "settle:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if len(keys) > 0 {
		f.lastDeleted = keys[0]
	}
	return nil
}

func TestClaimFirstTime(t *testing.T) {
	store := &fakeStore{setNXResult: true}
	manager, err := NewManager(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	eventID := uuid.New()
	already, err := manager.Claim(context.Background(), "outbox-publisher", eventID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if already {
		t.Fatal("expected first claim to return false")
	}

	expectedKey := "settle:idempotency:evt:outbox-publisher:" + eventID.String()
	if store.lastKey != expectedKey {
		t.Fatalf("unexpected key: %q", store.lastKey)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl: %s", store.lastTTL)
	}
}

func TestClaimDuplicate(t *testing.T) {
	manager, err := NewManager(&fakeStore{setNXResult: false}, time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	already, err := manager.Claim(context.Background(), "outbox-publisher", uuid.New())
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !already {
		t.Fatal("expected duplicate claim to return true")
	}
}

func TestClaimStoreError(t *testing.T) {
	manager, _ := NewManager(&fakeStore{setNXError: errors.New("redis down")}, time.Hour)
	if _, err := manager.Claim(context.Background(), "outbox-publisher", uuid.New()); err == nil {
		t.Fatal("expected store error")
	}
}

func TestRelease(t *testing.T) {
	store := &fakeStore{}
	manager, _ := NewManager(store, time.Hour)
	eventID := uuid.New()
	if err := manager.Release(context.Background(), "outbox-publisher", eventID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if store.lastDeleted != "settle:idempotency:evt:outbox-publisher:"+eventID.String() {
		t.Fatalf("unexpected deleted key %q", store.lastDeleted)
	}
}

func TestValidation(t *testing.T) {
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatal("expected nil store error")
	}
	if _, err := NewManager(&fakeStore{}, -time.Second); err == nil {
		t.Fatal("expected negative ttl error")
	}
	manager, _ := NewManager(&fakeStore{}, time.Hour)
	if _, err := manager.Claim(context.Background(), "", uuid.New()); err == nil {
		t.Fatal("expected worker name error")
	}
	if _, err := manager.Claim(context.Background(), "w", uuid.Nil); err == nil {
		t.Fatal("expected event id error")
	}
}
