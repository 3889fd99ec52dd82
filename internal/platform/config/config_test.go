package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseThresholds(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]int
	}{
		{
			name: "empty input",
			raw:  "",
			want: map[string]int{},
		},
		{
			name: "single pair",
			raw:  "laptop=5",
			want: map[string]int{"laptop": 5},
		},
		{
			name: "multiple pairs with spaces",
			raw:  "laptop=5, Monitor = 3",
			want: map[string]int{"laptop": 5, "monitor": 3},
		},
		{
			name: "later entry wins",
			raw:  "laptop=5,laptop=8",
			want: map[string]int{"laptop": 8},
		},
		{
			name: "malformed pairs skipped",
			raw:  "laptop=5,monitor,=3,dock=x",
			want: map[string]int{"laptop": 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseThresholds(tt.raw))
		})
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "assettrail.audit.events", cfg.KafkaTopic)
	assert.Equal(t, 30*time.Second, cfg.SummaryTTL)
	assert.Equal(t, 200, cfg.MaxListTake)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ASSETTRAIL_ADDR", ":9090")
	t.Setenv("ASSETTRAIL_DEBUG", "true")
	t.Setenv("SUMMARY_CACHE_TTL", "2m")
	t.Setenv("SUMMARY_THRESHOLDS", "laptop=5,monitor=3")
	t.Setenv("AUDIT_LIST_MAX_TAKE", "50")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092,")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 2*time.Minute, cfg.SummaryTTL)
	assert.Equal(t, map[string]int{"laptop": 5, "monitor": 3}, cfg.Thresholds)
	assert.Equal(t, 50, cfg.MaxListTake)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
}

func TestFromEnvBadValuesFallBack(t *testing.T) {
	t.Setenv("SUMMARY_CACHE_TTL", "soon")
	t.Setenv("AUDIT_LIST_MAX_TAKE", "many")

	cfg := FromEnv()

	assert.Equal(t, 30*time.Second, cfg.SummaryTTL)
	assert.Equal(t, 200, cfg.MaxListTake)
}
