// Package memory implements the inventory reader over in-process state for
// tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"assettrail/internal/summary"
)

type Reader struct {
	mu     sync.RWMutex
	counts map[string]summary.CategoryCount
	err    error
}

func New() *Reader {
	return &Reader{counts: make(map[string]summary.CategoryCount)}
}

// SetCategory records the current totals for one category.
func (r *Reader) SetCategory(category string, total, activeAssignments int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[category] = summary.CategoryCount{
		Category:          category,
		Total:             total,
		ActiveAssignments: activeAssignments,
	}
}

// FailWith makes subsequent reads return err. Tests only.
func (r *Reader) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Reader) CountsByCategory(_ context.Context) ([]summary.CategoryCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.err != nil {
		return nil, r.err
	}
	out := make([]summary.CategoryCount, 0, len(r.counts))
	for _, c := range r.counts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}
