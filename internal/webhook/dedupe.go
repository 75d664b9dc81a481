package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/commissionhub/internal/clock"
)

const keyDelivery = "webhook:delivery:%s"

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var ErrEmptyDeliveryID = errors.New("empty_delivery_id")

// Deduper remembers upstream delivery ids so redeliveries are dropped before
// any database work. The orders table remains the idempotency authority.
type Deduper interface {
	// Claim returns a token and true when the delivery is seen for the first time.
	Claim(ctx context.Context, deliveryID string, ttl time.Duration) (string, bool, error)
	// Release forgets a claim so a failed delivery can be retried.
	Release(ctx context.Context, deliveryID, token string) error
}

type RedisDeduper struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{
		client: client,
		script: redis.NewScript(releaseScript),
	}
}

func (d *RedisDeduper) Claim(ctx context.Context, deliveryID string, ttl time.Duration) (string, bool, error) {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return "", false, ErrEmptyDeliveryID
	}
	token := uuid.NewString()
	ok, err := d.client.SetNX(ctx, fmt.Sprintf(keyDelivery, deliveryID), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, deliveryID, token string) error {
	if deliveryID == "" || token == "" {
		return nil
	}
	return d.script.Run(ctx, d.client, []string{fmt.Sprintf(keyDelivery, strings.TrimSpace(deliveryID))}, token).Err()
}

// MemoryDeduper is a single-process Deduper used when redis is not configured.
type MemoryDeduper struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

func NewMemoryDeduper(clk clock.Clock) *MemoryDeduper {
	return &MemoryDeduper{clock: clk, entries: make(map[string]memoryEntry)}
}

func (d *MemoryDeduper) Claim(_ context.Context, deliveryID string, ttl time.Duration) (string, bool, error) {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return "", false, ErrEmptyDeliveryID
	}
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()
	for id, entry := range d.entries {
		if !now.Before(entry.expiresAt) {
			delete(d.entries, id)
		}
	}
	if _, ok := d.entries[deliveryID]; ok {
		return "", false, nil
	}
	token := uuid.NewString()
	d.entries[deliveryID] = memoryEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, deliveryID, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if entry, ok := d.entries[strings.TrimSpace(deliveryID)]; ok && entry.token == token {
		delete(d.entries, strings.TrimSpace(deliveryID))
	}
	return nil
}
