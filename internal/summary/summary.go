// Package summary memoizes per-category aggregate counts behind a generation
// token. Invalidation is O(1) regardless of how many filter variants have
// been cached: the generation advances and every prior entry is stale on its
// next read.
package summary

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"assettrail/internal/platform/metrics"
)

// AllKey is the reserved filter key for an empty or absent category filter.
const AllKey = "all"

// CategoryCount is the raw read-side input for one asset category.
type CategoryCount struct {
	Category          string
	Total             int
	ActiveAssignments int
}

// InventoryReader supplies current per-category counts. Implementations scan
// committed hardware/software/assignment state.
type InventoryReader interface {
	CountsByCategory(ctx context.Context) ([]CategoryCount, error)
}

// CategorySummary is the computed aggregate for one category.
type CategorySummary struct {
	Category         string `json:"category"`
	Total            int    `json:"total"`
	Assigned         int    `json:"assigned"`
	Available        int    `json:"available"`
	Threshold        int    `json:"threshold"`
	IsLow            bool   `json:"is_low"`
	AvailablePercent int    `json:"available_percent"`
}

type entry struct {
	value      []CategorySummary
	generation int64
	expiresAt  time.Time
}

// Service is the summary cache. One instance per process; the generation
// counter and entry map live for the process lifetime.
type Service struct {
	reader     InventoryReader
	thresholds map[string]int
	ttl        time.Duration

	generation atomic.Int64
	mu         sync.Mutex
	entries    map[string]entry

	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// New builds the cache service. thresholds keys are matched
// case-insensitively; ttl bounds staleness independent of invalidation.
func New(reader InventoryReader, thresholds map[string]int, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Service {
	normalized := make(map[string]int, len(thresholds))
	for k, v := range thresholds {
		normalized[strings.ToLower(k)] = v
	}
	return &Service{
		reader:     reader,
		thresholds: normalized,
		ttl:        ttl,
		entries:    make(map[string]entry),
		now:        time.Now,
		logger:     logger,
		metrics:    m,
		tracer:     otel.Tracer("assettrail/summary"),
	}
}

// SetClock overrides the TTL clock. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// NormalizeFilter canonicalizes a requested category filter: trim, drop
// blanks, case-insensitive dedupe, sort, join. An empty result maps to the
// reserved AllKey.
func NormalizeFilter(categories []string) string {
	seen := make(map[string]struct{}, len(categories))
	var keep []string
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		keep = append(keep, c)
	}
	if len(keep) == 0 {
		return AllKey
	}
	sort.Strings(keep)
	return strings.Join(keep, "|")
}

// Summary returns the aggregate list for the filter, from cache when the
// entry's generation matches the current one and its TTL has not lapsed.
// A recompute failure propagates to this caller only; nothing is cached.
func (s *Service) Summary(ctx context.Context, categories []string) ([]CategorySummary, error) {
	ctx, span := s.tracer.Start(ctx, "summary.Summary")
	defer span.End()

	key := NormalizeFilter(categories)

	// Capture the generation before computing. If an invalidation lands
	// mid-compute the result is stored under the old generation and the next
	// read recomputes: validity is decided by the generation check, not by
	// write timing.
	gen := s.generation.Load()

	s.mu.Lock()
	e, ok := s.entries[key]
	if ok && e.generation == gen && s.now().Before(e.expiresAt) {
		s.mu.Unlock()
		s.metrics.SummaryHits.Inc()
		return append([]CategorySummary{}, e.value...), nil
	}
	s.mu.Unlock()

	s.metrics.SummaryMisses.Inc()
	value, err := s.compute(ctx, key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.entries[key] = entry{value: value, generation: gen, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	return append([]CategorySummary{}, value...), nil
}

// Invalidate advances the generation and evicts the unfiltered entry
// outright; it is the hottest key and should not linger until TTL expiry.
// Filtered entries lazily become invalid on their next read.
func (s *Service) Invalidate() {
	s.generation.Add(1)
	s.mu.Lock()
	delete(s.entries, AllKey)
	s.mu.Unlock()
	s.metrics.Invalidations.Inc()
}

func (s *Service) compute(ctx context.Context, key string) ([]CategorySummary, error) {
	counts, err := s.reader.CountsByCategory(ctx)
	if err != nil {
		return nil, err
	}

	var wanted map[string]struct{}
	if key != AllKey {
		wanted = make(map[string]struct{})
		for _, c := range strings.Split(key, "|") {
			wanted[c] = struct{}{}
		}
	}

	var out []CategorySummary
	for _, c := range counts {
		folded := strings.ToLower(c.Category)
		if wanted != nil {
			if _, ok := wanted[folded]; !ok {
				continue
			}
		}

		threshold := s.thresholds[folded]
		available := c.Total - c.ActiveAssignments
		total := c.Total
		if total < 1 {
			total = 1
		}
		out = append(out, CategorySummary{
			Category:         c.Category,
			Total:            c.Total,
			Assigned:         c.ActiveAssignments,
			Available:        available,
			Threshold:        threshold,
			IsLow:            threshold > 0 && available < threshold,
			AvailablePercent: int(math.Round(100 * float64(available) / float64(total))),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Category) < strings.ToLower(out[j].Category)
	})
	return out, nil
}
