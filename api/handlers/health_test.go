package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

// mockHealthCheck 模拟健康检查
type mockHealthCheck struct {
	name string
	err  error
}

func (m *mockHealthCheck) Name() string {
	return m.name
}

func (m *mockHealthCheck) Check(ctx context.Context) error {
	return m.err
}

// =============================================================================
// 🧪 HealthHandler 测试
// =============================================================================

func TestHealthHandler_HandleHealthz(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHealthHandler(logger)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	handler.HandleHealthz(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	err := json.NewDecoder(w.Body).Decode(&status)
	require.NoError(t, err)

	assert.Equal(t, "healthy", status.Status)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthHandler_HandleHealth(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		checks         []HealthCheck
		expectedStatus int
		expectedHealth string
	}{
		{
			name:           "no checks registered",
			checks:         nil,
			expectedStatus: http.StatusOK,
			expectedHealth: "healthy",
		},
		{
			name: "all checks pass",
			checks: []HealthCheck{
				&mockHealthCheck{name: "redis"},
				&mockHealthCheck{name: "elasticsearch"},
				&mockHealthCheck{name: "llm"},
			},
			expectedStatus: http.StatusOK,
			expectedHealth: "healthy",
		},
		{
			name: "one check fails",
			checks: []HealthCheck{
				&mockHealthCheck{name: "redis"},
				&mockHealthCheck{name: "elasticsearch", err: errors.New("connection refused")},
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedHealth: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(logger)
			for _, check := range tt.checks {
				handler.RegisterCheck(check)
			}

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/health", nil)

			handler.HandleHealth(w, r)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var status HealthStatus
			err := json.NewDecoder(w.Body).Decode(&status)
			require.NoError(t, err)

			assert.Equal(t, tt.expectedHealth, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))
		})
	}
}

func TestHealthHandler_失败检查携带错误信息(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHealthHandler(logger)
	handler.RegisterCheck(&mockHealthCheck{name: "redis", err: errors.New("connection refused")})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/ready", nil)

	handler.HandleReady(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))

	result, ok := status.Checks["redis"]
	require.True(t, ok)
	assert.Equal(t, "fail", result.Status)
	assert.Equal(t, "connection refused", result.Message)
	assert.NotEmpty(t, result.Latency)
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHealthHandler(logger)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/version", nil)

	handler.HandleVersion("1.2.3", "2026-01-01", "abc123")(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal(raw, &info))
	assert.Equal(t, "1.2.3", info["version"])
	assert.Equal(t, "abc123", info["git_commit"])
}

func TestPingHealthCheck(t *testing.T) {
	called := 0
	check := NewPingHealthCheck("redis", func(ctx context.Context) error {
		called++
		return nil
	})

	assert.Equal(t, "redis", check.Name())
	assert.NoError(t, check.Check(context.Background()))
	assert.Equal(t, 1, called)
}
