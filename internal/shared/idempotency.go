package shared

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// DefaultWebhookRetention bounds how long processed gateway event ids are remembered.
const DefaultWebhookRetention = 72 * time.Hour

// WebhookDeduper remembers processed keys in redis.
type WebhookDeduper struct {
	client    *redis.Client
	retention time.Duration
}

// NewWebhookDeduper constructs the deduper. A non-positive retention uses
// DefaultWebhookRetention.
func NewWebhookDeduper(client *redis.Client, retention time.Duration) *WebhookDeduper {
	if retention <= 0 {
		retention = DefaultWebhookRetention
	}
	return &WebhookDeduper{client: client, retention: retention}
}

func dedupeKey(module, key string) string {
	return "idempotency:" + module + ":" + key
}

// CheckAndInsert records key for module, returning ErrIdempotencyConflict when
// it was already recorded.
func (d *WebhookDeduper) CheckAndInsert(ctx context.Context, key, module string) error {
	if d == nil || d.client == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	ok, err := d.client.SetNX(ctx, dedupeKey(module, key), time.Now().UTC().Format(time.RFC3339), d.retention).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrIdempotencyConflict
	}
	return nil
}

// Delete removes a key, typically used to roll back failed processing.
func (d *WebhookDeduper) Delete(ctx context.Context, key, module string) error {
	if d == nil || d.client == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	return d.client.Del(ctx, dedupeKey(module, key)).Err()
}
