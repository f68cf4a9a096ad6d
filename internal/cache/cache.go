package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/promptflow/types"
)

// ErrCacheMiss 缓存未命中哨兵错误
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss 判断是否为缓存未命中
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Config 响应缓存配置
type Config struct {
	// TTL 缓存条目存活时间
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// Enabled 是否启用缓存（测试环境模式下关闭以隔离用例）
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		TTL:     time.Hour,
		Enabled: true,
	}
}

// Cache 精炼结果的 Redis 响应缓存
type Cache struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
}

// New 创建响应缓存
func New(rdb *redis.Client, config Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TTL == 0 {
		config.TTL = time.Hour
	}
	return &Cache{
		redis:  rdb,
		config: config,
		logger: logger.With(zap.String("component", "response_cache")),
	}
}

// Enabled 返回缓存是否启用
func (c *Cache) Enabled() bool { return c.config.Enabled }

// Get 读取缓存的精炼结果。
// Redis 错误按未命中处理（记录日志），读路径永不让缓存故障影响请求。
func (c *Cache) Get(ctx context.Context, key string) (*types.PromptResponse, error) {
	if !c.config.Enabled {
		return nil, ErrCacheMiss
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		c.logger.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, ErrCacheMiss
	}

	var resp types.PromptResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("cache entry corrupt, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, ErrCacheMiss
	}

	return &resp, nil
}

// Set 写入精炼结果。
// Cached 标记写入前强制为 false：回读的条目不得自述为缓存命中。
func (c *Cache) Set(ctx context.Context, key string, resp types.PromptResponse) error {
	if !c.config.Enabled {
		return nil
	}

	resp.Cached = false
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// Ping 检查 Redis 连接（用于健康检查）
func (c *Cache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}
