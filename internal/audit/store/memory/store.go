// Package memory implements the audit event store in process memory. It
// backs unit tests and local development; production uses the postgres store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"assettrail/internal/audit"
)

type Store struct {
	mu         sync.RWMutex
	byExternal map[string]*audit.Event
	ordered    []*audit.Event
	nextID     int64
	now        func() time.Time
}

func New() *Store {
	return &Store{
		byExternal: make(map[string]*audit.Event),
		now:        time.Now,
	}
}

// SetClock overrides the persistence timestamp source. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Insert performs the atomic check-and-insert on the external key. The
// returned bool is true when the event was newly persisted; on a duplicate
// key the original event is returned unchanged.
func (s *Store) Insert(_ context.Context, ev audit.Event) (*audit.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byExternal[ev.ExternalID]; ok {
		dup := *existing
		dup.Changes = append([]audit.FieldChange{}, existing.Changes...)
		return &dup, false, nil
	}

	s.nextID++
	ev.InternalID = s.nextID
	ev.OccurredAt = s.now()
	ev.Changes = append([]audit.FieldChange{}, ev.Changes...)

	stored := ev
	s.byExternal[stored.ExternalID] = &stored
	s.ordered = append(s.ordered, &stored)

	out := stored
	out.Changes = append([]audit.FieldChange{}, stored.Changes...)
	return &out, true, nil
}

// ListSince returns events with OccurredAt >= since, most recent first,
// capped at limit.
func (s *Store) ListSince(_ context.Context, since time.Time, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Event
	for _, ev := range s.ordered {
		if !ev.OccurredAt.Before(since) {
			copied := *ev
			copied.Changes = append([]audit.FieldChange{}, ev.Changes...)
			out = append(out, copied)
		}
	}

	// Newest first; ties broken by internal id so ordering is stable.
	sort.Slice(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].InternalID > out[j].InternalID
		}
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountSince reports how many events carry OccurredAt >= since, so list
// responses can signal truncation.
func (s *Store) CountSince(_ context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, ev := range s.ordered {
		if !ev.OccurredAt.Before(since) {
			n++
		}
	}
	return n, nil
}
