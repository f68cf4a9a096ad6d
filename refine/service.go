package refine

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/promptflow/internal/cache"
	"github.com/BaSui01/promptflow/internal/metrics"
	"github.com/BaSui01/promptflow/llm"
	"github.com/BaSui01/promptflow/llm/retry"
	"github.com/BaSui01/promptflow/storage"
	"github.com/BaSui01/promptflow/types"
)

// 各阶段的采样温度与 token 上限
const (
	topicTemperature float32 = 0.3
	topicMaxTokens           = 100

	mainTemperature float32 = 0.7
	mainMaxTokens           = 1000

	refsTemperature float32 = 0.3
	refsMaxTokens           = 150
)

// 指标标签
const (
	cacheType = "response"

	stageTopics     = "topics"
	stageRefine     = "refine"
	stageReferences = "references"
)

// Config 编排器配置
type Config struct {
	// TestMode 测试环境模式：跳过缓存读取，保证用例间隔离
	TestMode bool `yaml:"test_mode" json:"test_mode"`

	// RelatedLimit 相关提示词检索条数上限
	RelatedLimit int `yaml:"related_limit" json:"related_limit"`

	// ContextTokenBudget 相关上下文的 token 预算，超出部分截断
	ContextTokenBudget int `yaml:"context_token_budget" json:"context_token_budget"`

	// TokenizerEncoding tiktoken 编码名（默认 cl100k_base）
	TokenizerEncoding string `yaml:"tokenizer_encoding" json:"tokenizer_encoding"`
}

// DefaultConfig 返回默认编排器配置
func DefaultConfig() Config {
	return Config{
		RelatedLimit:       3,
		ContextTokenBudget: 600,
		TokenizerEncoding:  "cl100k_base",
	}
}

// Service 提示词精炼编排器
type Service struct {
	provider llm.Provider
	store    storage.Store
	cache    *cache.Cache
	retry    *retry.Controller
	logger   *zap.Logger
	metrics  *metrics.Collector // 可空
	cfg      Config

	group       singleflight.Group
	countTokens func(string) int
}

// Option 编排器构造选项
type Option func(*Service)

// WithMetrics 注入指标收集器，记录缓存命中率与各阶段上游调用
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// New 创建编排器。
// tiktoken 编码初始化失败时退化为按字符近似计数（约 4 字符/token），
// 仅影响上下文截断精度，不影响功能。
func New(provider llm.Provider, store storage.Store, c *cache.Cache, retryCtl *retry.Controller, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RelatedLimit <= 0 {
		cfg.RelatedLimit = 3
	}
	if cfg.ContextTokenBudget <= 0 {
		cfg.ContextTokenBudget = 600
	}
	if cfg.TokenizerEncoding == "" {
		cfg.TokenizerEncoding = "cl100k_base"
	}

	s := &Service{
		provider: provider,
		store:    store,
		cache:    c,
		retry:    retryCtl,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "refine_service")),
	}
	for _, opt := range opts {
		opt(s)
	}

	if enc, err := tiktoken.GetEncoding(cfg.TokenizerEncoding); err == nil {
		s.countTokens = func(text string) int {
			return len(enc.Encode(text, nil, nil))
		}
	} else {
		s.logger.Warn("tokenizer init failed, using character approximation",
			zap.String("encoding", cfg.TokenizerEncoding), zap.Error(err))
		s.countTokens = func(text string) int {
			return (utf8.RuneCountInString(text) + 3) / 4
		}
	}

	return s
}

// Refine 执行完整精炼流程。
// 缓存命中直接返回（Cached=true）；未命中时相同缓存键的并发请求
// 合流为一次生成，结果共享。
func (s *Service) Refine(ctx context.Context, req types.PromptRequest) (*types.PromptResponse, error) {
	if verr := req.Validate(); verr != nil {
		return nil, verr
	}
	norm := req.Normalize()
	key := cache.DeriveKey(req)

	if s.cache != nil && s.cache.Enabled() && !s.cfg.TestMode {
		if hit, err := s.cache.Get(ctx, key); err == nil {
			s.logger.Debug("cache hit", zap.String("key", key))
			if s.metrics != nil {
				s.metrics.RecordCacheHit(cacheType)
			}
			hit.Cached = true
			return hit, nil
		}
		if s.metrics != nil {
			s.metrics.RecordCacheMiss(cacheType)
		}
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.generate(ctx, key, norm)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("request coalesced", zap.String("key", key))
	}

	// 合流共享同一结果对象，返回副本避免调用方相互影响
	out := *(v.(*types.PromptResponse))
	return &out, nil
}

// generate 生成阶段：主题探测 → 相关上下文 → 主补全 → 参考资料 →
// 持久化与缓存回写（后两步失败非致命）。
func (s *Service) generate(ctx context.Context, key string, req types.PromptRequest) (*types.PromptResponse, error) {
	topics, details := s.detectTopics(ctx, req.LazyPrompt)
	relatedContext := s.relatedContext(ctx, topics, req.Domain)

	refined, err := s.complete(ctx, stageRefine, &llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(req.Domain, req.ExpertiseLevel),
		UserPrompt:   buildUserPrompt(req, relatedContext),
		MaxTokens:    mainMaxTokens,
		Temperature:  mainTemperature,
	})
	if err != nil {
		s.logger.Error("prompt refinement failed", zap.Error(err))
		return nil, err
	}

	resp := types.PromptResponse{
		RefinedPrompt:  strings.TrimSpace(refined),
		DetectedTopics: topics,
		TopicDetails:   details,
	}

	if req.BestPractices() {
		raw, err := s.complete(ctx, stageReferences, &llm.CompletionRequest{
			SystemPrompt: refsSystemPrompt,
			UserPrompt:   buildRefsPrompt(req.LazyPrompt),
			MaxTokens:    refsMaxTokens,
			Temperature:  refsTemperature,
		})
		if err != nil {
			s.logger.Error("reference lookup failed", zap.Error(err))
			return nil, err
		}
		resp.RecommendedReferences = parseReferences(raw)
	}

	resp.PromptFileContent = renderPromptFile(req, resp)

	if s.store != nil {
		if id, err := s.store.Store(ctx, resp, req); err != nil {
			s.logger.Warn("failed to persist refined prompt", zap.Error(err))
		} else {
			s.logger.Debug("refined prompt persisted", zap.String("id", id))
		}
	}

	if s.cache != nil && s.cache.Enabled() && !s.cfg.TestMode {
		if err := s.cache.Set(ctx, key, resp); err != nil {
			s.logger.Warn("failed to cache refined prompt", zap.Error(err))
		}
	}

	return &resp, nil
}

// complete 带重试的上游补全；每次真实调用（含重试）按阶段记录指标
func (s *Service) complete(ctx context.Context, stage string, creq *llm.CompletionRequest) (string, error) {
	return retry.DoWithResult(ctx, s.retry, func() (string, error) {
		start := time.Now()
		out, err := s.provider.Complete(ctx, creq)
		if s.metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			s.metrics.RecordLLMRequest(s.provider.Name(), stage, status, time.Since(start))
		}
		return out, err
	})
}

// detectTopics 主题探测，尽力而为：失败记录日志并返回空
func (s *Service) detectTopics(ctx context.Context, lazyPrompt string) ([]string, map[string]string) {
	raw, err := s.complete(ctx, stageTopics, &llm.CompletionRequest{
		SystemPrompt: topicSystemPrompt,
		UserPrompt:   buildTopicPrompt(lazyPrompt),
		MaxTokens:    topicMaxTokens,
		Temperature:  topicTemperature,
	})
	if err != nil {
		s.logger.Error("topic detection failed", zap.Error(err))
		return nil, nil
	}
	return parseTopics(raw)
}

// relatedContext 用探测到的主题检索历史精炼结果，拼为上下文摘要。
// 检索失败或无结果返回空串；整体按 token 预算截断（整条为单位）。
func (s *Service) relatedContext(ctx context.Context, topics []string, domain types.Domain) string {
	if s.store == nil || len(topics) == 0 {
		return ""
	}

	related, err := s.store.SearchRelated(ctx, topics, domain, s.cfg.RelatedLimit)
	if err != nil || len(related) == 0 {
		return ""
	}

	var b strings.Builder
	used := 0
	for _, r := range related {
		line := "- " + r.Request.LazyPrompt + ": " + strings.Join(r.Response.DetectedTopics, ", ") + "\n"
		cost := s.countTokens(line)
		if used+cost > s.cfg.ContextTokenBudget {
			break
		}
		b.WriteString(line)
		used += cost
	}
	return b.String()
}
