package audit

import (
	"context"
	"encoding/json"
	"log/slog"
)

// ExportSink receives committed events for downstream systems (Kafka in
// production). Export is best-effort and decoupled from the write path.
type ExportSink interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// Exporter drains the recorder's export channel and ships each event to the
// sink. It consumes events in commit hand-off order and never fails the
// pipeline over a single bad record.
type Exporter struct {
	sink   ExportSink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewExporter(sink ExportSink, inbox <-chan Event, logger *slog.Logger) *Exporter {
	return &Exporter{sink: sink, inbox: inbox, logger: logger}
}

func (w *Exporter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			payload, err := json.Marshal(event)
			if err != nil {
				w.logger.Warn("skipping unmarshalable export event",
					"external_id", event.ExternalID,
					"error", err,
				)
				continue
			}
			if err := w.sink.Publish(ctx, event.ExternalID, payload); err != nil {
				w.logger.Warn("audit export publish failed",
					"external_id", event.ExternalID,
					"error", err,
				)
			}
		}
	}
}
