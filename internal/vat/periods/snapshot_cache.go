package periods

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SnapshotCache keeps the latest computed snapshot per period key in redis.
// It is a read-side convenience; PostgreSQL stays the source of truth.
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache constructs a cache with the given entry TTL.
func NewSnapshotCache(rdb *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{rdb: rdb, ttl: ttl}
}

func snapshotKey(tenantID uuid.UUID, start, end time.Time) string {
	return fmt.Sprintf("vat:snapshot:%s:%s:%s", tenantID, start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// Get returns the cached snapshot, or false on a miss.
func (c *SnapshotCache) Get(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (Snapshot, bool, error) {
	raw, err := c.rdb.Get(ctx, snapshotKey(tenantID, start, end)).Bytes()
	if err == redis.Nil {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("periods: cache get: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("periods: cache decode: %w", err)
	}
	return snap, true, nil
}

// Put stores a snapshot under its period key.
func (c *SnapshotCache) Put(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("periods: cache encode: %w", err)
	}
	key := snapshotKey(snap.TenantID, snap.PeriodStart, snap.PeriodEnd)
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("periods: cache put: %w", err)
	}
	return nil
}

// Invalidate drops the cached entry for a period key.
func (c *SnapshotCache) Invalidate(ctx context.Context, tenantID uuid.UUID, start, end time.Time) error {
	return c.rdb.Del(ctx, snapshotKey(tenantID, start, end)).Err()
}
