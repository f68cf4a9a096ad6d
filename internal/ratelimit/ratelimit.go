package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config 限流配置
type Config struct {
	// Threshold 每窗口允许的请求数
	Threshold int64 `yaml:"threshold" json:"threshold"`

	// Window 固定窗口时长
	Window time.Duration `yaml:"window" json:"window"`
}

// DefaultConfig 返回默认限流配置：每 60 秒 60 次
func DefaultConfig() Config {
	return Config{
		Threshold: 60,
		Window:    60 * time.Second,
	}
}

// Limiter 固定窗口限流器，计数状态共享于所有并发请求
type Limiter struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	now    func() time.Time // 可注入时钟，测试用
}

// New 创建限流器
func New(rdb *redis.Client, config Config, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Threshold <= 0 {
		config.Threshold = 60
	}
	if config.Window <= 0 {
		config.Window = 60 * time.Second
	}
	// windowKey 以整秒划窗，亚秒窗口抬到 1s 下限
	if config.Window < time.Second {
		config.Window = time.Second
	}
	return &Limiter{
		redis:  rdb,
		config: config,
		logger: logger.With(zap.String("component", "ratelimit")),
		now:    time.Now,
	}
}

// windowKey 计数键：身份 + epoch 整除窗口时长
func (l *Limiter) windowKey(identity string) string {
	window := l.now().Unix() / int64(l.config.Window/time.Second)
	return fmt.Sprintf("ratelimit:%s:%d", identity, window)
}

// Limited 递增当前窗口计数并判断是否超限。
// 单次 INCR 往返保证并发安全；仅创建计数的那次递增（0→1）设置过期。
// 超限调用的递增不回滚。Redis 故障时放行。
func (l *Limiter) Limited(ctx context.Context, identity string) bool {
	key := l.windowKey(identity)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Error("rate limit counter unavailable, failing open",
			zap.String("identity", identity), zap.Error(err))
		return false
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			l.logger.Warn("failed to set window expiry", zap.String("key", key), zap.Error(err))
		}
	}

	if count > l.config.Threshold {
		l.logger.Info("request rate limited",
			zap.String("identity", identity),
			zap.Int64("count", count),
			zap.Int64("threshold", l.config.Threshold),
		)
		return true
	}
	return false
}
