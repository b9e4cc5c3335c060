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

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.lastKey = key
	f.lastTTL = ttl
	return f.setNXResult, f.setNXError
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "sl:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if len(keys) > 0 {
		f.lastDeleted = keys[0]
	}
	return nil
}

func TestMarkDelivered_FirstTime(t *testing.T) {
	store := &fakeStore{setNXResult: true}
	guard, err := NewGuard(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	eventID := uuid.New()
	already, err := guard.MarkDelivered(context.Background(), "redis-broadcast", eventID)
	if err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if already {
		t.Fatalf("expected first call to return false, got true")
	}

	expectedKey := "sl:idempotency:evt:delivered:redis-broadcast:" + eventID.String()
	if store.lastKey != expectedKey {
		t.Fatalf("unexpected key: %q", store.lastKey)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl: %v", store.lastTTL)
	}
}

func TestMarkDelivered_AlreadyDelivered(t *testing.T) {
	store := &fakeStore{setNXResult: false}
	guard, err := NewGuard(store, 12*time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	already, err := guard.MarkDelivered(context.Background(), "redis-broadcast", uuid.New())
	if err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if !already {
		t.Fatalf("expected already delivered, got false")
	}
}

func TestMarkDelivered_Errors(t *testing.T) {
	store := &fakeStore{setNXError: errors.New("boom")}
	guard, err := NewGuard(store, time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	if _, err := guard.MarkDelivered(context.Background(), "redis-broadcast", uuid.New()); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := guard.MarkDelivered(context.Background(), "", uuid.New()); err == nil {
		t.Fatal("expected error for empty sink")
	}
	if _, err := guard.MarkDelivered(context.Background(), "redis-broadcast", uuid.Nil); err == nil {
		t.Fatal("expected error for nil event id")
	}
}

func TestForget(t *testing.T) {
	store := &fakeStore{}
	guard, err := NewGuard(store, time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	eventID := uuid.New()
	if err := guard.Forget(context.Background(), "redis-broadcast", eventID); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	expected := "sl:idempotency:evt:delivered:redis-broadcast:" + eventID.String()
	if store.lastDeleted != expected {
		t.Fatalf("unexpected deleted key %q", store.lastDeleted)
	}
}
