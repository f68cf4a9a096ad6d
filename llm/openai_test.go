package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/promptflow/types"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewOpenAIProvider(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gpt-4",
	}, zap.NewNop())
}

func completionJSON(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
}

func TestOpenAIProvider_Complete(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		json.NewEncoder(w).Encode(completionJSON("  refined text \n"))
	})

	out, err := p.Complete(context.Background(), &CompletionRequest{
		SystemPrompt: "You are a helpful assistant.",
		UserPrompt:   "what is terraform",
		MaxTokens:    100,
		Temperature:  0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, "refined text", out)
}

func TestOpenAIProvider_RateLimitedWithRetryAfterHeader(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Rate limit reached for gpt-4"},
		})
	})

	_, err := p.Complete(context.Background(), &CompletionRequest{UserPrompt: "x"})
	require.Error(t, err)

	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
	// Retry-After 头被归一化进消息文本，供重试层的提示解析器提取
	assert.Contains(t, err.Error(), "try again in 7s")
}

func TestOpenAIProvider_RateLimitedWithInlineHint(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "99")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Please try again in 2s."},
		})
	})

	_, err := p.Complete(context.Background(), &CompletionRequest{UserPrompt: "x"})
	require.Error(t, err)
	// 消息已含提示时不重复追加
	assert.Contains(t, err.Error(), "try again in 2s")
	assert.NotContains(t, err.Error(), "99")
}

func TestOpenAIProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCode  types.ErrorCode
		retryable bool
	}{
		{"网关错误", http.StatusBadGateway, types.ErrConnectionError, true},
		{"服务不可用", http.StatusServiceUnavailable, types.ErrConnectionError, true},
		{"网关超时", http.StatusGatewayTimeout, types.ErrUpstreamTimeout, true},
		{"认证失败", http.StatusUnauthorized, types.ErrUpstreamError, false},
		{"服务端错误", http.StatusInternalServerError, types.ErrUpstreamError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream says no", tt.status)
			})

			_, err := p.Complete(context.Background(), &CompletionRequest{UserPrompt: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
			assert.Equal(t, tt.retryable, types.IsRetryable(err))
		})
	}
}

func TestOpenAIProvider_TimeoutClassifiedAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	p := NewOpenAIProvider(OpenAIConfig{
		APIKey:  "k",
		BaseURL: srv.URL,
		Timeout: 30 * time.Millisecond,
	}, zap.NewNop())

	_, err := p.Complete(context.Background(), &CompletionRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamTimeout, types.GetErrorCode(err))
	assert.True(t, types.IsTransient(err))
}

func TestOpenAIProvider_ConnectionRefused(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{
		APIKey:  "k",
		BaseURL: "http://127.0.0.1:1", // 不可达端口
	}, zap.NewNop())

	_, err := p.Complete(context.Background(), &CompletionRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.Equal(t, types.ErrConnectionError, types.GetErrorCode(err))
	assert.True(t, types.IsTransient(err))
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	_, err := p.Complete(context.Background(), &CompletionRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
}

func TestOpenAIProvider_Ping(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	assert.NoError(t, p.Ping(context.Background()))
}
