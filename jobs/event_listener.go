package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/morava-erp/morava-erp/internal/vat/periods"
)

// EventListener subscribes to period lifecycle events and enqueues follow-up
// work. It is the read-side counterpart of the explicit events the lifecycle
// manager publishes.
type EventListener struct {
	rdb    *redis.Client
	client *Client
	logger *slog.Logger
}

// NewEventListener constructs a listener.
func NewEventListener(rdb *redis.Client, client *Client, logger *slog.Logger) *EventListener {
	return &EventListener{rdb: rdb, client: client, logger: logger}
}

// Run consumes PeriodRecalculated events until context cancellation, turning
// each into a snapshot warmup task.
func (l *EventListener) Run(ctx context.Context) error {
	sub := l.rdb.Subscribe(ctx, periods.ChannelPeriodRecalculated)
	defer func() {
		_ = sub.Close()
	}()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev periods.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				l.logger.Warn("discard malformed period event", slog.Any("error", err))
				continue
			}
			_, err := l.client.EnqueueSnapshotWarmup(ctx, SnapshotWarmupPayload{
				TenantID:    ev.TenantID,
				PeriodStart: ev.PeriodStart,
				PeriodEnd:   ev.PeriodEnd,
			})
			if err != nil {
				l.logger.Warn("enqueue snapshot warmup", slog.Any("error", err),
					slog.Int64("period_id", ev.PeriodID))
			}
		}
	}
}
