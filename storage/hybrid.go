package storage

import (
	"context"
	"math/rand"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/promptflow/internal/metrics"
	"github.com/BaSui01/promptflow/types"
)

// HybridConfig 迁移路由配置
type HybridConfig struct {
	// ReadPercentage 初始读切换百分比（0-100）
	ReadPercentage int `yaml:"read_percentage" json:"read_percentage"`

	// ShadowWrite 是否影子写索引后端（默认开）
	ShadowWrite bool `yaml:"shadow_write" json:"shadow_write"`

	// CompareResults 是否对比两端结果并告警（默认开）
	CompareResults bool `yaml:"compare_results" json:"compare_results"`

	// AdvanceIncrement 每次推进的固定增量（默认 10）
	AdvanceIncrement int `yaml:"advance_increment" json:"advance_increment"`
}

// DefaultHybridConfig 返回默认迁移配置：0% 读切换，影子写与对比开启
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		ReadPercentage:   0,
		ShadowWrite:      true,
		CompareResults:   true,
		AdvanceIncrement: 10,
	}
}

// shadowWriter 可选能力：用权威 id 执行影子写，使两端共享同一逻辑 id
type shadowWriter interface {
	StoreWithID(ctx context.Context, id string, resp types.PromptResponse, req types.PromptRequest) (string, error)
}

// HybridStore 双后端迁移路由。
// 写入以键值端为权威；读按百分比随机路由到索引端，失败或无数据回落。
// 无两阶段提交：最终状态的正确性依赖键值端保持权威直至百分比推满 100
// 且影子写经长期对比验证一致。
type HybridStore struct {
	primary Store // 键值端（权威）
	indexed Store // 索引端（迁移目标）
	logger  *zap.Logger
	metrics *metrics.Collector // 可空

	mu             sync.RWMutex
	readPercentage int
	shadowWrite    bool
	compareResults bool
	increment      int

	rngMu sync.Mutex
	rng   *rand.Rand
}

// HybridOption HybridStore 构造选项
type HybridOption func(*HybridStore)

// WithRandSource 注入随机源（测试时固定种子使路由确定）
func WithRandSource(rng *rand.Rand) HybridOption {
	return func(h *HybridStore) { h.rng = rng }
}

// WithMetrics 注入指标收集器，记录分歧与影子写失败
func WithMetrics(c *metrics.Collector) HybridOption {
	return func(h *HybridStore) { h.metrics = c }
}

// NewHybridStore 创建迁移路由
func NewHybridStore(primary, indexed Store, cfg HybridConfig, logger *zap.Logger, opts ...HybridOption) *HybridStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AdvanceIncrement <= 0 {
		cfg.AdvanceIncrement = 10
	}
	if cfg.ReadPercentage < 0 {
		cfg.ReadPercentage = 0
	}
	if cfg.ReadPercentage > 100 {
		cfg.ReadPercentage = 100
	}

	h := &HybridStore{
		primary:        primary,
		indexed:        indexed,
		logger:         logger.With(zap.String("component", "hybrid_store")),
		readPercentage: cfg.ReadPercentage,
		shadowWrite:    cfg.ShadowWrite,
		compareResults: cfg.CompareResults,
		increment:      cfg.AdvanceIncrement,
		rng:            rand.New(rand.NewSource(rand.Int63())),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Store 写入：键值端先行且其 id 权威；影子写失败仅告警。
// 影子写复用权威 id（索引端支持时），仍出现 id 不一致则告警。
func (h *HybridStore) Store(ctx context.Context, resp types.PromptResponse, req types.PromptRequest) (string, error) {
	primaryID, err := h.primary.Store(ctx, resp, req)
	if err != nil {
		return "", err
	}

	if h.ShadowWriteEnabled() {
		var indexedID string
		var shadowErr error
		if sw, ok := h.indexed.(shadowWriter); ok {
			indexedID, shadowErr = sw.StoreWithID(ctx, primaryID, resp, req)
		} else {
			indexedID, shadowErr = h.indexed.Store(ctx, resp, req)
		}

		switch {
		case shadowErr != nil:
			h.logger.Warn("shadow write failed", zap.String("id", primaryID), zap.Error(shadowErr))
			if h.metrics != nil {
				h.metrics.RecordShadowWriteFailure()
			}
		case indexedID != primaryID:
			h.logger.Warn("shadow write id mismatch",
				zap.String("primary_id", primaryID),
				zap.String("indexed_id", indexedID),
			)
		}
	}

	return primaryID, nil
}

// GetByID 点查：按百分比尝试索引端，命中即胜出（可选对比），否则回落
func (h *HybridStore) GetByID(ctx context.Context, id string) (*types.StoredPrompt, error) {
	if h.useIndexed() {
		bundle, err := h.indexed.GetByID(ctx, id)
		if err != nil {
			h.logger.Warn("indexed get failed, falling back", zap.String("id", id), zap.Error(err))
		} else if bundle != nil {
			if h.CompareEnabled() {
				primary, perr := h.primary.GetByID(ctx, id)
				switch {
				case perr != nil:
					// 对比读尽力而为，失败不影响主路径
				case primary == nil:
					h.logger.Warn("get result mismatch",
						zap.String("id", id),
						zap.String("missing_in", "primary"),
					)
					h.recordDivergence("get")
				case !samePrompt(primary, bundle):
					h.logger.Warn("get result mismatch", zap.String("id", id))
					h.recordDivergence("get")
				}
			}
			return bundle, nil
		}
	}

	return h.primary.GetByID(ctx, id)
}

// SearchByTopic 主题检索，路由语义同 GetByID
func (h *HybridStore) SearchByTopic(ctx context.Context, topic string, limit int) ([]types.StoredPrompt, error) {
	if h.useIndexed() {
		indexed, err := h.indexed.SearchByTopic(ctx, topic, limit)
		if err != nil {
			h.logger.Warn("indexed topic search failed, falling back", zap.Error(err))
		} else if len(indexed) > 0 {
			if h.CompareEnabled() {
				primary, perr := h.primary.SearchByTopic(ctx, topic, limit)
				if perr == nil {
					h.compareResultSets(primary, indexed, "topic")
				}
			}
			return indexed, nil
		}
	}

	return h.primary.SearchByTopic(ctx, topic, limit)
}

// SearchRelated 相关检索，路由语义同 GetByID
func (h *HybridStore) SearchRelated(ctx context.Context, topics []string, domain types.Domain, limit int) ([]types.StoredPrompt, error) {
	if h.useIndexed() {
		indexed, err := h.indexed.SearchRelated(ctx, topics, domain, limit)
		if err != nil {
			h.logger.Warn("indexed related search failed, falling back", zap.Error(err))
		} else if len(indexed) > 0 {
			if h.CompareEnabled() {
				primary, perr := h.primary.SearchRelated(ctx, topics, domain, limit)
				if perr == nil {
					h.compareResultSets(primary, indexed, "related")
				}
			}
			return indexed, nil
		}
	}

	return h.primary.SearchRelated(ctx, topics, domain, limit)
}

// Clear 清空两端：键值端失败即失败；索引端失败仅告警（可在日志观测）
func (h *HybridStore) Clear(ctx context.Context) error {
	if err := h.primary.Clear(ctx); err != nil {
		return err
	}
	if err := h.indexed.Clear(ctx); err != nil {
		h.logger.Warn("indexed clear failed", zap.Error(err))
	}
	return nil
}

// Ping 键值端连通即视为可用（权威端）
func (h *HybridStore) Ping(ctx context.Context) error {
	return h.primary.Ping(ctx)
}

// useIndexed 均匀抽取 [1,100]，落在百分比内则本次读路由索引端
func (h *HybridStore) useIndexed() bool {
	h.mu.RLock()
	pct := h.readPercentage
	h.mu.RUnlock()

	if pct <= 0 {
		return false
	}
	if pct >= 100 {
		return true
	}

	h.rngMu.Lock()
	draw := h.rng.Intn(100) + 1
	h.rngMu.Unlock()
	return draw <= pct
}

// compareResultSets 按 id 集合差对比（非深比较），分歧仅告警
func (h *HybridStore) compareResultSets(primary, indexed []types.StoredPrompt, kind string) {
	primaryIDs := make(map[string]bool, len(primary))
	for _, p := range primary {
		primaryIDs[p.ID] = true
	}
	indexedIDs := make(map[string]bool, len(indexed))
	for _, p := range indexed {
		indexedIDs[p.ID] = true
	}

	var onlyPrimary, onlyIndexed []string
	for id := range primaryIDs {
		if !indexedIDs[id] {
			onlyPrimary = append(onlyPrimary, id)
		}
	}
	for id := range indexedIDs {
		if !primaryIDs[id] {
			onlyIndexed = append(onlyIndexed, id)
		}
	}

	if len(onlyPrimary) > 0 || len(onlyIndexed) > 0 {
		h.logger.Warn("search result divergence",
			zap.String("kind", kind),
			zap.Strings("only_primary", onlyPrimary),
			zap.Strings("only_indexed", onlyIndexed),
		)
		h.recordDivergence(kind)
	}
}

// samePrompt 判定两端取回的内容一致。
// CreatedAt 不参与比较：两端落库时刻天然存在时钟差。
func samePrompt(a, b *types.StoredPrompt) bool {
	return a.ID == b.ID &&
		reflect.DeepEqual(a.Response, b.Response) &&
		reflect.DeepEqual(a.Request, b.Request)
}

func (h *HybridStore) recordDivergence(kind string) {
	if h.metrics != nil {
		h.metrics.RecordMigrationDivergence(kind)
	}
}

// AdvanceReadPercentage 以固定增量推进读切换百分比，封顶 100。
// 返回推进后的值。
func (h *HybridStore) AdvanceReadPercentage() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.readPercentage += h.increment
	if h.readPercentage > 100 {
		h.readPercentage = 100
	}
	h.logger.Info("indexed read percentage advanced", zap.Int("read_percentage", h.readPercentage))
	return h.readPercentage
}

// ReadPercentage 当前读切换百分比
func (h *HybridStore) ReadPercentage() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readPercentage
}

// SetShadowWrite 开关影子写
func (h *HybridStore) SetShadowWrite(enabled bool) {
	h.mu.Lock()
	h.shadowWrite = enabled
	h.mu.Unlock()
	h.logger.Info("shadow write toggled", zap.Bool("enabled", enabled))
}

// ShadowWriteEnabled 影子写是否开启
func (h *HybridStore) ShadowWriteEnabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.shadowWrite
}

// SetCompareResults 开关结果对比
func (h *HybridStore) SetCompareResults(enabled bool) {
	h.mu.Lock()
	h.compareResults = enabled
	h.mu.Unlock()
	h.logger.Info("result comparison toggled", zap.Bool("enabled", enabled))
}

// CompareEnabled 结果对比是否开启
func (h *HybridStore) CompareEnabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.compareResults
}
