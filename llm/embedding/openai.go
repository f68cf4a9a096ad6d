package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Service 文本向量化接口
type Service interface {
	// Embed 生成文本的定长向量，失败时返回错误
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedOrZero 生成向量，失败时降级为全零向量（记录日志，不传播错误）
	EmbedOrZero(ctx context.Context, text string) []float64

	// Dimensions 返回向量维度
	Dimensions() int
}

// Config OpenAI Embeddings 配置
type Config struct {
	APIKey     string        `yaml:"api_key" json:"api_key"`
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// OpenAIService 基于 OpenAI Embeddings API 的实现
type OpenAIService struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIService 创建 OpenAI 向量化服务
func NewOpenAIService(cfg Config, logger *zap.Logger) *OpenAIService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-ada-002"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 1536
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &OpenAIService{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "embedding")),
	}
}

// Dimensions 返回向量维度
func (s *OpenAIService) Dimensions() int { return s.cfg.Dimensions }

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed 生成文本向量
func (s *OpenAIService) Embed(ctx context.Context, text string) ([]float64, error) {
	endpoint := fmt.Sprintf("%s/v1/embeddings", strings.TrimRight(s.cfg.BaseURL, "/"))

	payload, _ := json.Marshal(embeddingRequest{
		Model: s.cfg.Model,
		Input: []string{text},
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("embedding create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding request failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("embedding decode response: %w", err)
	}
	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}

	return embResp.Data[0].Embedding, nil
}

// EmbedOrZero 生成向量，失败时降级为全零向量。
// 搜索路径依赖此语义：向量化失败时语义信号归零，词法匹配仍然可用。
func (s *OpenAIService) EmbedOrZero(ctx context.Context, text string) []float64 {
	vec, err := s.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("embedding failed, falling back to zero vector", zap.Error(err))
		return make([]float64, s.cfg.Dimensions)
	}
	return vec
}
