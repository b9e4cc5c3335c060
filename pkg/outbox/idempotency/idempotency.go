package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/pkg/redis"
)

// Guard remembers which outbox event ids a sink already delivered, using
// Redis SETNX with a TTL. Keys follow
// `sl:idempotency:evt:delivered:<sink>:<event_id>`.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewGuard builds a delivery guard that remembers events for ttl.
func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// MarkDelivered returns true when the event was already delivered to sink and
// otherwise records it as delivered.
func (g *Guard) MarkDelivered(ctx context.Context, sink string, eventID uuid.UUID) (bool, error) {
	key, err := g.deliveredKey(sink, eventID)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Forget drops the delivery marker so a failed publish can be retried.
func (g *Guard) Forget(ctx context.Context, sink string, eventID uuid.UUID) error {
	key, err := g.deliveredKey(sink, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) deliveredKey(sink string, eventID uuid.UUID) (string, error) {
	if sink == "" {
		return "", errors.New("sink name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	scope := fmt.Sprintf("evt:delivered:%s", sink)
	return g.store.IdempotencyKey(scope, eventID.String()), nil
}
