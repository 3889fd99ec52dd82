package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func probeReadiness(checks map[string]Check) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	Readiness(checks)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	return rec
}

func TestReadinessNoChecks(t *testing.T) {
	rec := probeReadiness(nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReadinessAllHealthy(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	rec := probeReadiness(map[string]Check{"postgres": healthy, "redis": healthy})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessNamesFailingDependency(t *testing.T) {
	rec := probeReadiness(map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "redis unavailable"))
}
