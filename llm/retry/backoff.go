package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/promptflow/types"
)

// Policy 定义重试策略配置
type Policy struct {
	MaxAttempts    int                                               // 最大尝试次数（含首次）
	MinDelay       time.Duration                                     // 无上游提示时的默认等待
	MaxDelay       time.Duration                                     // 等待上限（提示值也受其约束）
	JitterFraction float64                                           // 乘性抖动上限（0.10 = 最多 +10%）
	OnRetry        func(attempt int, err error, delay time.Duration) // 重试回调
}

// DefaultPolicy 返回默认重试策略。
// 适用于上游 LLM API 调用：5 次尝试，默认等待 4s，封顶 60s，+10% 抖动。
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:    5,
		MinDelay:       4 * time.Second,
		MaxDelay:       60 * time.Second,
		JitterFraction: 0.10,
	}
}

// Controller 重试控制器。
// 仅吸收瞬时错误（types.IsTransient），其余错误立即透传；
// 耗尽后以 SERVICE_UNAVAILABLE 重分类，向调用方表达"稍后可重试"。
type Controller struct {
	policy *Policy
	logger *zap.Logger
	rng    *rand.Rand
}

// Option Controller 构造选项
type Option func(*Controller)

// WithRand 注入随机源（测试时固定种子以获得确定性抖动）
func WithRand(rng *rand.Rand) Option {
	return func(c *Controller) { c.rng = rng }
}

// NewController 创建重试控制器
func NewController(policy *Policy, logger *zap.Logger, opts ...Option) *Controller {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.MinDelay <= 0 {
		policy.MinDelay = 4 * time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 60 * time.Second
	}
	if policy.JitterFraction < 0 {
		policy.JitterFraction = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Controller{
		policy: policy,
		logger: logger.With(zap.String("component", "retry")),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do 执行函数，瞬时失败时按策略重试
func (c *Controller) Do(ctx context.Context, fn func() error) error {
	_, err := DoWithResult(ctx, c, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult 执行函数并返回结果，瞬时失败时按策略重试。
// 泛型自由函数形态：Go 方法不支持类型参数。
func DoWithResult[T any](ctx context.Context, c *Controller, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			if attempt > 1 {
				c.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		// 非瞬时错误不重试，原样透传
		if !types.IsTransient(err) {
			return zero, err
		}

		if attempt == c.policy.MaxAttempts {
			break
		}

		delay := c.nextDelay(err)
		c.logger.Warn("transient upstream error, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.policy.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if c.policy.OnRetry != nil {
			c.policy.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	c.logger.Error("retry attempts exhausted",
		zap.Int("attempts", c.policy.MaxAttempts),
		zap.Error(lastErr),
	)

	// 耗尽后重分类：调用方收到的是"服务暂不可用"，而非原始上游错误
	return zero, types.NewError(types.ErrServiceUnavailable, "upstream service temporarily unavailable").
		WithHTTPStatus(503).
		WithRetryable(true).
		WithCause(lastErr)
}

// nextDelay 计算下一次等待时间。
// 优先级：上游提示 → MinDelay；再叠加 [0, JitterFraction] 的乘性抖动；
// 最终以 MaxDelay 封顶（提示值超限同样被截断）。
func (c *Controller) nextDelay(err error) time.Duration {
	delay := c.policy.MinDelay
	if hint, ok := parseRetryAfterChain(err); ok && hint > 0 {
		delay = hint
	}

	if c.policy.JitterFraction > 0 {
		delay = time.Duration(float64(delay) * (1 + c.rng.Float64()*c.policy.JitterFraction))
	}

	if delay > c.policy.MaxDelay {
		delay = c.policy.MaxDelay
	}
	return delay
}
