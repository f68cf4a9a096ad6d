package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/promptflow/types"
)

// OpenAIConfig OpenAI Provider 配置
type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key" json:"api_key"`
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Model   string        `yaml:"model" json:"model"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// OpenAIProvider 基于 Chat Completions API 的 Provider 实现
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIProvider 创建 OpenAI Provider
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &OpenAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "openai_provider")),
	}
}

// Name 返回 Provider 标识
func (p *OpenAIProvider) Name() string { return "openai" }

// chatMessage Chat Completions 消息格式
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete 执行一次补全调用
func (p *OpenAIProvider) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/chat/completions", strings.TrimRight(p.cfg.BaseURL, "/"))

	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	payload, _ := json.Marshal(chatCompletionRequest{
		Model:       p.cfg.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", types.NewError(types.ErrInternalError, "failed to create request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrorMessage(resp.Body)
		return "", mapHTTPError(resp.StatusCode, msg, resp.Header.Get("Retry-After"))
	}

	var chatResp chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", types.NewError(types.ErrUpstreamError, "failed to decode completion response").WithCause(err)
	}
	if len(chatResp.Choices) == 0 {
		return "", types.NewError(types.ErrUpstreamError, "completion returned no choices")
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// Ping 以最小代价检查上游可达性
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/v1/models", strings.TrimRight(p.cfg.BaseURL, "/"))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body), "")
	}
	return nil
}

// classifyTransportError 将网络层错误分类。
// 超时（含 context deadline）按重试分类视为瞬时连接失败。
func classifyTransportError(err error) *types.Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return types.NewError(types.ErrUpstreamTimeout, "upstream request timed out").
			WithHTTPStatus(http.StatusGatewayTimeout).
			WithRetryable(true).
			WithCause(err)
	}
	return types.NewError(types.ErrConnectionError, "failed to reach upstream").
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithCause(err)
}

// mapHTTPError 将 HTTP 状态码映射为带可重试标记的 *types.Error。
// 429 时若消息缺少等待提示而响应头带 Retry-After，则将提示归一化进消息
// 文本，供 retry 层的提示解析器提取。
func mapHTTPError(status int, msg string, retryAfter string) *types.Error {
	switch status {
	case http.StatusTooManyRequests:
		if retryAfter != "" && !strings.Contains(strings.ToLower(msg), "try again in") {
			msg = fmt.Sprintf("%s (try again in %ss)", msg, retryAfter)
		}
		return types.NewError(types.ErrRateLimited, msg).
			WithHTTPStatus(status).
			WithRetryable(true)
	case http.StatusGatewayTimeout:
		return types.NewError(types.ErrUpstreamTimeout, msg).
			WithHTTPStatus(status).
			WithRetryable(true)
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return types.NewError(types.ErrConnectionError, msg).
			WithHTTPStatus(status).
			WithRetryable(true)
	default:
		return types.NewError(types.ErrUpstreamError, msg).WithHTTPStatus(status)
	}
}

// readErrorMessage 读取响应体中的错误消息。
// 先尝试解析 OpenAI 风格的 JSON 错误响应，失败则回退到原始文本。
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}

	return string(data)
}
