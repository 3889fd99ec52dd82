package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"assettrail/internal/audit"
)

type StoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func (s *StoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) newEvent(externalID string) audit.Event {
	return audit.Event{
		ExternalID: externalID,
		Actor:      "mallory",
		Action:     "asset_assigned",
		Kind:       audit.KindHardware,
		HardwareID: "hw-1",
	}
}

func (s *StoreSuite) TestInsertAssignsIdentity() {
	ev, inserted, err := s.store.Insert(s.ctx, s.newEvent("E1"))
	s.Require().NoError(err)
	s.True(inserted)
	s.Equal(int64(1), ev.InternalID)
	s.False(ev.OccurredAt.IsZero())
}

func (s *StoreSuite) TestDuplicateExternalIDReturnsOriginal() {
	first, inserted, err := s.store.Insert(s.ctx, s.newEvent("E1"))
	s.Require().NoError(err)
	s.Require().True(inserted)

	dup := s.newEvent("E1")
	dup.Description = "a retried write with a different body"
	second, inserted, err := s.store.Insert(s.ctx, dup)
	s.Require().NoError(err)
	s.False(inserted)
	s.Equal(first.InternalID, second.InternalID)
	s.Equal(first.OccurredAt, second.OccurredAt)
	s.Empty(second.Description, "original must come back unchanged")

	n, err := s.store.CountSince(s.ctx, time.Time{})
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *StoreSuite) TestConcurrentIdenticalInsertsKeepOneRow() {
	const writers = 32

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ids      = make(map[int64]struct{})
		inserted int
	)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev, ok, err := s.store.Insert(s.ctx, s.newEvent("E1"))
			s.NoError(err)
			mu.Lock()
			defer mu.Unlock()
			ids[ev.InternalID] = struct{}{}
			if ok {
				inserted++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, inserted, "exactly one writer may win")
	s.Len(ids, 1, "all callers must see the same identity")
}

func (s *StoreSuite) TestListSinceOrderingAndCap() {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.store.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	for i := range 10 {
		_, _, err := s.store.Insert(s.ctx, s.newEvent(fmt.Sprintf("E%d", i)))
		s.Require().NoError(err)
	}

	events, err := s.store.ListSince(s.ctx, base, 4)
	s.Require().NoError(err)
	s.Require().Len(events, 4)
	for i := 1; i < len(events); i++ {
		s.False(events[i].OccurredAt.After(events[i-1].OccurredAt),
			"occurred_at must be non-increasing")
	}
	s.Equal("E9", events[0].ExternalID)
}

func (s *StoreSuite) TestListSinceHonorsWatermark() {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.store.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})

	for i := range 5 {
		_, _, err := s.store.Insert(s.ctx, s.newEvent(fmt.Sprintf("E%d", i)))
		s.Require().NoError(err)
	}

	// Watermark is inclusive: minute three and later.
	events, err := s.store.ListSince(s.ctx, base.Add(3*time.Minute), 50)
	s.Require().NoError(err)
	s.Len(events, 3)

	n, err := s.store.CountSince(s.ctx, base.Add(3*time.Minute))
	s.Require().NoError(err)
	s.Equal(3, n)
}

func (s *StoreSuite) TestStoredEventIsIsolatedFromCallerMutation() {
	ev := s.newEvent("E1")
	ev.Changes = []audit.FieldChange{{Field: "status", OldValue: "in_stock", NewValue: "assigned"}}

	stored, _, err := s.store.Insert(s.ctx, ev)
	s.Require().NoError(err)

	stored.Changes[0].NewValue = "mutated"

	again, _, err := s.store.Insert(s.ctx, s.newEvent("E1"))
	s.Require().NoError(err)
	s.Equal("assigned", again.Changes[0].NewValue)
}
