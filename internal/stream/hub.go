// Package stream fans committed audit events out to live subscriber
// connections. Delivery is best-effort notification: a subscriber that
// misses an event recovers through the fallback query, never redelivery.
package stream

import (
	"context"
	"log/slog"
	"sync"

	"assettrail/internal/audit"
	"assettrail/internal/platform/metrics"
)

const defaultBuffer = 16

// Hub is the connection registry plus local broadcaster. Membership changes
// are atomic per connection; no lock is held while another connection's
// delivery is in flight.
type Hub struct {
	mu      sync.RWMutex
	members map[string]chan audit.Event

	buffer  int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		members: make(map[string]chan audit.Event),
		buffer:  defaultBuffer,
		logger:  logger,
		metrics: m,
	}
}

// JoinIfNotMember registers the connection and returns its delivery channel.
// The first call for an id performs the join; later calls are no-ops that
// return the existing channel. joined distinguishes the two for diagnostics.
func (h *Hub) JoinIfNotMember(connectionID string) (ch <-chan audit.Event, joined bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.members[connectionID]; ok {
		h.logger.Debug("join skipped, already a member", "connection_id", connectionID)
		return existing, false
	}

	c := make(chan audit.Event, h.buffer)
	h.members[connectionID] = c
	h.metrics.Subscribers.Inc()
	h.logger.Info("subscriber joined audit stream", "connection_id", connectionID)
	return c, true
}

// Leave removes the connection's membership. Safe to call for a connection
// that never joined, and safe under concurrent disconnects.
func (h *Hub) Leave(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.members[connectionID]; !ok {
		return
	}
	delete(h.members, connectionID)
	h.metrics.Subscribers.Dec()
	h.logger.Info("subscriber left audit stream", "connection_id", connectionID)
}

// Len reports current membership size.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// Broadcast delivers the event to every current member. A member whose
// buffer is full is skipped so one slow connection never stalls the rest;
// the skipped subscriber catches up via the fallback query.
func (h *Hub) Broadcast(_ context.Context, ev audit.Event) error {
	h.mu.RLock()
	snapshot := make(map[string]chan audit.Event, len(h.members))
	for id, ch := range h.members {
		snapshot[id] = ch
	}
	h.mu.RUnlock()

	for id, ch := range snapshot {
		select {
		case ch <- ev:
		default:
			h.metrics.BroadcastDrops.Inc()
			h.logger.Warn("dropping event for slow subscriber",
				"connection_id", id,
				"event_id", ev.ExternalID,
			)
		}
	}
	return nil
}
