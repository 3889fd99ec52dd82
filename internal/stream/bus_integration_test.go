//go:build integration

package stream

import (
	"bytes"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assettrail/internal/audit"
	"assettrail/internal/platform/config"
	"assettrail/internal/platform/metrics"
	platformredis "assettrail/internal/platform/redis"
	"assettrail/pkg/testutil/containers"
)

type countingInvalidator struct {
	calls atomic.Int64
}

func (c *countingInvalidator) Invalidate() { c.calls.Add(1) }

// TestBusBridgesReplicas verifies the cross-replica path: an event published
// by one instance reaches subscribers on every instance's hub, and each
// receiving instance invalidates its local summary cache.
func TestBusBridgesReplicas(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	newReplica := func() (*Bus, *Hub, *countingInvalidator) {
		client, err := platformredis.New(rc.URL, config.RedisConfig{
			PoolSize:     4,
			MinIdleConns: 1,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })

		hub := NewHub(logger, metrics.New(prometheus.NewRegistry()))
		inv := &countingInvalidator{}
		bus := NewBus(client, hub, inv, logger)
		go func() { _ = bus.Run(ctx) }()
		return bus, hub, inv
	}

	busA, hubA, invA := newReplica()
	_, hubB, invB := newReplica()

	chA, _ := hubA.JoinIfNotMember("conn-a")
	chB, _ := hubB.JoinIfNotMember("conn-b")

	// Give both Run loops time to establish their subscriptions.
	time.Sleep(500 * time.Millisecond)

	require.NoError(t, busA.Broadcast(ctx, audit.Event{ExternalID: "E1", Action: "asset_assigned"}))

	for name, ch := range map[string]<-chan audit.Event{"local": chA, "remote": chB} {
		select {
		case ev := <-ch:
			assert.Equal(t, "E1", ev.ExternalID, name)
		case <-time.After(5 * time.Second):
			t.Fatalf("%s subscriber did not receive the event", name)
		}
	}

	// Invalidation happens before hub delivery in the receive loop, so by
	// now both replicas must have bumped their generation.
	assert.GreaterOrEqual(t, invA.calls.Load(), int64(1), "publishing replica invalidates on receipt")
	assert.GreaterOrEqual(t, invB.calls.Load(), int64(1), "remote replica invalidates on receipt")
}
