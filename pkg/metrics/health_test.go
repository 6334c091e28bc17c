package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealthChecker() {
	healthChecker = newHealthChecker()
}

func registerCritical(healthy bool) {
	for _, name := range CriticalComponents {
		RegisterComponent(name, healthy, "")
	}
}

func TestRegisterComponent(t *testing.T) {
	resetHealthChecker()

	RegisterComponent(ComponentStorage, true, "opened")

	require.Len(t, healthChecker.components, 1)
	comp := healthChecker.components[ComponentStorage]
	assert.True(t, comp.Healthy)
	assert.Equal(t, "opened", comp.Message)
	assert.False(t, comp.Updated.IsZero())
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		expected string
	}{
		{
			name:     "no components",
			setup:    func() {},
			expected: "healthy",
		},
		{
			name: "all healthy",
			setup: func() {
				RegisterComponent(ComponentStorage, true, "")
				RegisterComponent(ComponentProviders, true, "")
			},
			expected: "healthy",
		},
		{
			name: "one unhealthy",
			setup: func() {
				RegisterComponent(ComponentStorage, true, "")
				RegisterComponent(ComponentScheduler, false, "stopped")
			},
			expected: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealthChecker()
			SetVersion("v0.3.0")
			tt.setup()

			health := GetHealth()
			assert.Equal(t, tt.expected, health.Status)
			assert.Equal(t, "v0.3.0", health.Version)
		})
	}
}

func TestGetHealthReportsMessage(t *testing.T) {
	resetHealthChecker()
	UpdateComponent(ComponentReconciler, false, "rescan failed")

	assert.Equal(t, "unhealthy: rescan failed", GetHealth().Components[ComponentReconciler])
}

func TestGetReadiness(t *testing.T) {
	t.Run("all critical ready", func(t *testing.T) {
		resetHealthChecker()
		registerCritical(true)

		assert.Equal(t, "ready", GetReadiness().Status)
	})

	t.Run("missing critical component", func(t *testing.T) {
		resetHealthChecker()
		RegisterComponent(ComponentStorage, true, "")

		readiness := GetReadiness()
		assert.Equal(t, "not_ready", readiness.Status)
		assert.NotEmpty(t, readiness.Message)
		assert.Equal(t, "not registered", readiness.Components[ComponentScheduler])
	})

	t.Run("critical component unhealthy", func(t *testing.T) {
		resetHealthChecker()
		registerCritical(true)
		UpdateComponent(ComponentStorage, false, "database closed")

		readiness := GetReadiness()
		assert.Equal(t, "not_ready", readiness.Status)
		assert.Equal(t, "not ready: database closed", readiness.Components[ComponentStorage])
	})
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		healthy bool
		code    int
		status  string
	}{
		{"health ok", HealthHandler(), true, http.StatusOK, "healthy"},
		{"health failing", HealthHandler(), false, http.StatusServiceUnavailable, "unhealthy"},
		{"ready ok", ReadyHandler(), true, http.StatusOK, "ready"},
		{"ready failing", ReadyHandler(), false, http.StatusServiceUnavailable, "not_ready"},
		{"live ignores components", LivenessHandler(), false, http.StatusOK, "alive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealthChecker()
			registerCritical(tt.healthy)

			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.status, body["status"])
		})
	}
}
