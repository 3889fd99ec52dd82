package stream

import (
	"context"
	"encoding/json"
	"log/slog"

	"assettrail/internal/audit"
	platformredis "assettrail/internal/platform/redis"
)

// Channel is the pub/sub channel carrying committed audit events.
const Channel = "assettrail.audit.events"

const outboxBuffer = 256

// Bus bridges broadcasts across replicas over Redis pub/sub. Broadcast only
// enqueues, so the write request never waits on the network; the Run loop
// publishes in enqueue order and feeds received events into the local hub,
// so subscribers on any instance see the event. Received events also bump
// the local summary generation, keeping remote replicas' caches coherent
// ahead of TTL expiry.
type Bus struct {
	rdb         *platformredis.Client
	hub         *Hub
	invalidator audit.Invalidator
	outbox      chan audit.Event
	logger      *slog.Logger
}

func NewBus(rdb *platformredis.Client, hub *Hub, invalidator audit.Invalidator, logger *slog.Logger) *Bus {
	return &Bus{
		rdb:         rdb,
		hub:         hub,
		invalidator: invalidator,
		outbox:      make(chan audit.Event, outboxBuffer),
		logger:      logger,
	}
}

// Broadcast enqueues the event for publication. A full outbox drops the
// publish rather than stalling the write path; subscribers that miss it
// recover through the fallback query.
func (b *Bus) Broadcast(_ context.Context, ev audit.Event) error {
	select {
	case b.outbox <- ev:
	default:
		b.hub.metrics.BroadcastDrops.Inc()
		b.logger.Warn("bus outbox full, dropping publish", "event_id", ev.ExternalID)
	}
	return nil
}

// Run drains the outbox into Redis and subscribes to the channel, feeding
// received events into the local hub until ctx is cancelled. Malformed
// payloads are logged and skipped.
func (b *Bus) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, Channel)
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-b.outbox:
			payload, err := json.Marshal(ev)
			if err != nil {
				b.logger.Warn("marshal audit event", "event_id", ev.ExternalID, "error", err)
				continue
			}
			if err := b.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
				b.logger.Warn("publish audit event", "event_id", ev.ExternalID, "error", err)
			}
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev audit.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("skipping malformed bus payload", "error", err)
				continue
			}
			// The writing replica already invalidated before publishing;
			// an extra generation bump there is harmless.
			b.invalidator.Invalidate()
			_ = b.hub.Broadcast(ctx, ev)
		}
	}
}
