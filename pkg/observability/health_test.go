package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Liveness(t *testing.T) {
	checker := NewHealthChecker("test")
	checker.Require("never", func(context.Context) error { return errors.New("down") })

	w := httptest.NewRecorder()
	checker.Liveness(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), StatusHealthy)
}

func TestHealthChecker_Check(t *testing.T) {
	t.Run("healthy database and redis", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing()

		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		checker := NewHealthChecker("1.2.3")
		checker.Require("database", db.PingContext)
		checker.Prefer("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
		status := checker.Check(context.Background())

		assert.Equal(t, StatusHealthy, status.Status)
		assert.Equal(t, "1.2.3", status.Version)
		assert.True(t, status.Dependencies["database"].Required)
		assert.False(t, status.Dependencies["redis"].Required)
		assert.Equal(t, StatusHealthy, status.Dependencies["redis"].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("required dependency down is unhealthy", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		checker := NewHealthChecker("")
		checker.Require("database", db.PingContext)
		status := checker.Check(context.Background())

		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Contains(t, status.Dependencies["database"].Message, "connection refused")
	})

	t.Run("optional dependency down only degrades", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		mr.Close()

		checker := NewHealthChecker("")
		checker.Prefer("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
		status := checker.Check(context.Background())

		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
	})

	t.Run("required failure outranks optional failure", func(t *testing.T) {
		checker := NewHealthChecker("")
		checker.Prefer("redis", func(context.Context) error { return errors.New("timeout") })
		checker.Require("plan_catalog", func(context.Context) error { return errors.New("no plans loaded") })
		status := checker.Check(context.Background())

		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Equal(t, "no plans loaded", status.Dependencies["plan_catalog"].Message)
	})

	t.Run("slow probe is cut off", func(t *testing.T) {
		checker := NewHealthChecker("")
		checker.timeout = 20 * time.Millisecond
		checker.Require("slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		status := checker.Check(context.Background())
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Contains(t, status.Dependencies["slow"].Message, "deadline exceeded")
	})
}

func TestHealthChecker_Readiness(t *testing.T) {
	checker := NewHealthChecker("")
	checker.Require("plan_catalog", func(context.Context) error { return errors.New("empty") })

	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, checker)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, StatusUnhealthy, status.Status)
}
