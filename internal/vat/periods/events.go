package periods

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis channels carrying period lifecycle events. Read-side caches subscribe
// here instead of being invalidated by name.
const (
	ChannelPeriodRecalculated = "vat:events:period_recalculated"
	ChannelPeriodSubmitted    = "vat:events:period_submitted"
)

// Event is the published payload for both channels.
type Event struct {
	EventID       uuid.UUID `json:"event_id"`
	PeriodID      int64     `json:"period_id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	LegalEntityID *int64    `json:"legal_entity_id,omitempty"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// RedisPublisher publishes period events to redis pub/sub.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher constructs a publisher over the given client.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// PeriodRecalculated publishes to ChannelPeriodRecalculated.
func (p *RedisPublisher) PeriodRecalculated(ctx context.Context, ev Event) error {
	return p.publish(ctx, ChannelPeriodRecalculated, ev)
}

// PeriodSubmitted publishes to ChannelPeriodSubmitted.
func (p *RedisPublisher) PeriodSubmitted(ctx context.Context, ev Event) error {
	return p.publish(ctx, ChannelPeriodSubmitted, ev)
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("periods: marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("periods: publish %s: %w", channel, err)
	}
	return nil
}

// NopPublisher discards events; used when redis is not configured and in
// tests that do not care about events.
type NopPublisher struct{}

func (NopPublisher) PeriodRecalculated(context.Context, Event) error { return nil }
func (NopPublisher) PeriodSubmitted(context.Context, Event) error    { return nil }
