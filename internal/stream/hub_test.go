package stream

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assettrail/internal/audit"
	"assettrail/internal/platform/metrics"
)

func newHub() *Hub {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return NewHub(logger, metrics.New(prometheus.NewRegistry()))
}

func event(id string) audit.Event {
	return audit.Event{ExternalID: id, Action: "asset_assigned"}
}

func TestJoinIsIdempotent(t *testing.T) {
	hub := newHub()

	first, joined := hub.JoinIfNotMember("conn-1")
	require.True(t, joined, "first call performs the join")

	second, joined := hub.JoinIfNotMember("conn-1")
	assert.False(t, joined, "second call is a no-op")
	assert.Equal(t, 1, hub.Len(), "exactly one membership add")

	// Both calls expose the same delivery channel.
	require.NoError(t, hub.Broadcast(context.Background(), event("E1")))
	select {
	case ev := <-first:
		assert.Equal(t, "E1", ev.ExternalID)
	default:
		t.Fatal("expected delivery on first channel")
	}
	select {
	case <-second:
		t.Fatal("single event must not be delivered twice to one membership")
	default:
	}
}

func TestLeaveSafeWhenNeverJoined(t *testing.T) {
	hub := newHub()
	hub.Leave("ghost")
	assert.Equal(t, 0, hub.Len())
}

func TestLeaveRemovesMembership(t *testing.T) {
	hub := newHub()
	hub.JoinIfNotMember("conn-1")
	hub.Leave("conn-1")
	assert.Equal(t, 0, hub.Len())

	// No tombstone: the id can join again as a fresh membership.
	_, joined := hub.JoinIfNotMember("conn-1")
	assert.True(t, joined)
}

func TestBroadcastDeliversToAllMembers(t *testing.T) {
	hub := newHub()

	chans := make([]<-chan audit.Event, 0, 5)
	for i := range 5 {
		ch, _ := hub.JoinIfNotMember(fmt.Sprintf("conn-%d", i))
		chans = append(chans, ch)
	}

	require.NoError(t, hub.Broadcast(context.Background(), event("E1")))
	for i, ch := range chans {
		select {
		case ev := <-ch:
			assert.Equal(t, "E1", ev.ExternalID)
		default:
			t.Fatalf("connection %d missed the broadcast", i)
		}
	}
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := newHub()

	slow, _ := hub.JoinIfNotMember("slow")
	fast, _ := hub.JoinIfNotMember("fast")

	// Fill the slow subscriber's buffer without draining it.
	for i := range defaultBuffer {
		require.NoError(t, hub.Broadcast(context.Background(), event(fmt.Sprintf("fill-%d", i))))
	}
	for range defaultBuffer {
		<-fast
	}

	// The next broadcast is dropped for slow but still reaches fast.
	require.NoError(t, hub.Broadcast(context.Background(), event("E-after")))
	select {
	case ev := <-fast:
		assert.Equal(t, "E-after", ev.ExternalID)
	default:
		t.Fatal("fast subscriber must not be affected by the slow one")
	}

	drained := 0
	for range defaultBuffer {
		<-slow
		drained++
	}
	select {
	case <-slow:
		t.Fatal("dropped event must not appear after draining")
	default:
	}
	assert.Equal(t, defaultBuffer, drained)
}

func TestPerConnectionDeliveryOrder(t *testing.T) {
	hub := newHub()
	ch, _ := hub.JoinIfNotMember("conn-1")

	for i := range 10 {
		require.NoError(t, hub.Broadcast(context.Background(), event(fmt.Sprintf("E%d", i))))
	}
	for i := range 10 {
		ev := <-ch
		assert.Equal(t, fmt.Sprintf("E%d", i), ev.ExternalID, "delivery order must match broadcast order")
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	hub := newHub()

	var wg sync.WaitGroup
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", i)
			hub.JoinIfNotMember(id)
			_ = hub.Broadcast(context.Background(), event("E"))
			hub.Leave(id)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, hub.Len())
}
