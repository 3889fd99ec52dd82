package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"assettrail/internal/platform/metrics"
)

const defaultTake = 50

// Store is the durable event log. Insert must be an atomic check-and-insert
// on the external key: two concurrent retries with the same key yield one
// row and both callers get it back.
type Store interface {
	Insert(ctx context.Context, ev Event) (*Event, bool, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]Event, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// Broadcaster pushes a committed event toward live subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev Event) error
}

// Invalidator drops derived summary state after a committed write.
type Invalidator interface {
	Invalidate()
}

// Recorder owns the write path: validate, persist idempotently, then (first
// insert only) invalidate the summary cache and hand the event to the
// broadcaster and export worker. Side effects run strictly after commit so
// an observer is never notified of an event it cannot read back.
type Recorder struct {
	store       Store
	invalidator Invalidator
	broadcaster Broadcaster
	exports     chan<- Event

	maxTake int
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// RecorderOption tweaks optional recorder wiring.
type RecorderOption func(*Recorder)

// WithExports attaches the Kafka export hand-off channel.
func WithExports(ch chan<- Event) RecorderOption {
	return func(r *Recorder) { r.exports = ch }
}

// WithMaxTake overrides the fallback query's hard result cap.
func WithMaxTake(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.maxTake = n
		}
	}
}

func NewRecorder(store Store, invalidator Invalidator, broadcaster Broadcaster, logger *slog.Logger, m *metrics.Metrics, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:       store,
		invalidator: invalidator,
		broadcaster: broadcaster,
		maxTake:     200,
		logger:      logger,
		metrics:     m,
		tracer:      otel.Tracer("assettrail/audit"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record validates and durably persists the candidate event. The second
// return value is false when the external key already existed; the original
// event comes back unchanged with no new write, no invalidation, and no
// re-broadcast, making client retries safe.
func (r *Recorder) Record(ctx context.Context, ev Event) (*Event, bool, error) {
	ctx, span := r.tracer.Start(ctx, "audit.Record")
	defer span.End()

	if err := ev.Validate(); err != nil {
		return nil, false, err
	}
	if ev.ExternalID == "" {
		// Caller opted out of idempotency; give the event a key anyway so
		// downstream consumers always have one.
		ev.ExternalID = uuid.New().String()
	}
	span.SetAttributes(attribute.String("audit.external_id", ev.ExternalID))

	stored, inserted, err := r.store.Insert(ctx, ev)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		r.metrics.DuplicateWrites.Inc()
		r.logger.DebugContext(ctx, "duplicate audit write short-circuited",
			"external_id", stored.ExternalID,
		)
		return stored, false, nil
	}

	r.metrics.EventsRecorded.Inc()

	// Commit is durable at this point. Invalidate before broadcast so a
	// subscriber reacting to the push never reads a stale summary.
	r.invalidator.Invalidate()

	if err := r.broadcaster.Broadcast(ctx, *stored); err != nil {
		// Best-effort notification; the fallback query covers the miss.
		r.logger.WarnContext(ctx, "audit broadcast failed",
			"external_id", stored.ExternalID,
			"error", err,
		)
	}

	if r.exports != nil {
		select {
		case r.exports <- *stored:
		default:
			r.logger.WarnContext(ctx, "audit export queue full, dropping",
				"external_id", stored.ExternalID,
			)
		}
	}

	return stored, true, nil
}

// ListResult is the fallback query envelope.
type ListResult struct {
	Items   []Event `json:"items"`
	Count   int     `json:"count"`
	HasMore bool    `json:"has_more"`
}

// List is the fallback read path: committed events at or after since, most
// recent first, capped at min(take, maxTake). Non-positive take gets the
// default page size.
func (r *Recorder) List(ctx context.Context, since time.Time, take int) (*ListResult, error) {
	if take <= 0 {
		take = defaultTake
	}
	if take > r.maxTake {
		take = r.maxTake
	}

	items, err := r.store.ListSince(ctx, since, take)
	if err != nil {
		return nil, err
	}
	total, err := r.store.CountSince(ctx, since)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Event{}
	}
	return &ListResult{
		Items:   items,
		Count:   len(items),
		HasMore: total > len(items),
	}, nil
}
