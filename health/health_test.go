package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnection bool

func (f fakeConnection) IsConnected() bool { return bool(f) }

func fixed(status Status) *ComponentChecker {
	return NewComponentChecker(string(status), func(ctx context.Context) (Status, string, map[string]interface{}, error) {
		return status, "", nil, nil
	})
}

func TestRegistryCheck(t *testing.T) {
	t.Run("empty registry is healthy", func(t *testing.T) {
		report := NewRegistry(0).Check(context.Background())
		assert.Equal(t, StatusHealthy, report.Status)
		assert.Empty(t, report.Checks)
	})

	t.Run("worst status wins", func(t *testing.T) {
		registry := NewRegistry(time.Second)
		registry.Register(fixed(StatusHealthy), fixed(StatusDegraded))
		assert.Equal(t, StatusDegraded, registry.Check(context.Background()).Status)

		registry.Register(fixed(StatusUnhealthy))
		report := registry.Check(context.Background())
		assert.Equal(t, StatusUnhealthy, report.Status)
		assert.Len(t, report.Checks, 3)
	})

	t.Run("checks see a deadline", func(t *testing.T) {
		registry := NewRegistry(time.Second)
		registry.Register(NewComponentChecker("deadline", func(ctx context.Context) (Status, string, map[string]interface{}, error) {
			_, ok := ctx.Deadline()
			if !ok {
				return StatusUnhealthy, "no deadline", nil, nil
			}
			return StatusHealthy, "", nil, nil
		}))
		assert.Equal(t, StatusHealthy, registry.Check(context.Background()).Status)
	})
}

func TestConnectionChecker(t *testing.T) {
	up := NewConnectionChecker("rabbitmq", fakeConnection(true)).Check(context.Background())
	assert.Equal(t, "rabbitmq", up.Name)
	assert.Equal(t, StatusHealthy, up.Status)

	down := NewConnectionChecker("rabbitmq", fakeConnection(false)).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, down.Status)
}

func TestComponentCheckerError(t *testing.T) {
	checker := NewComponentChecker("db", func(ctx context.Context) (Status, string, map[string]interface{}, error) {
		return StatusHealthy, "ping", map[string]interface{}{"n": 1}, errors.New("boom")
	})

	result := checker.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Equal(t, "boom", result.Error)
	assert.Equal(t, map[string]interface{}{"n": 1}, result.Details)
}

func TestHandler(t *testing.T) {
	registry := NewRegistry(time.Second)
	registry.Register(NewConnectionChecker("rabbitmq", fakeConnection(false)))

	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusUnhealthy, report.Status)
	require.Len(t, report.Checks, 1)
	assert.Equal(t, "rabbitmq", report.Checks[0].Name)
}
