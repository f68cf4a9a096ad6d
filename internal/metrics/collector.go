package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmRetriesTotal    *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 限流指标
	rateLimitedTotal *prometheus.CounterVec

	// 存储指标
	storageOpsTotal   *prometheus.CounterVec
	storageOpDuration *prometheus.HistogramVec

	// 迁移指标
	migrationDivergences *prometheus.CounterVec
	shadowWriteFailures  prometheus.Counter
	migrationReadPercent prometheus.Gauge

	logger *zap.Logger
	mu     sync.RWMutex
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// LLM 指标
	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "stage", "status"}, // stage: topics, refine, references
	)

	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "stage"},
	)

	c.llmRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_retries_total",
			Help:      "Total number of LLM call retries",
		},
		[]string{"provider", "code"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 限流指标
	c.rateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of rate-limited requests",
		},
		[]string{"limiter"}, // limiter: window, local
	)

	// 存储指标
	c.storageOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"backend", "operation", "status"},
	)

	c.storageOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Storage operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// 迁移指标
	c.migrationDivergences = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_divergences_total",
			Help:      "Total number of result divergences between storage backends",
		},
		[]string{"kind"}, // kind: get, topic, related
	)

	c.shadowWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_shadow_write_failures_total",
			Help:      "Total number of failed shadow writes",
		},
	)

	c.migrationReadPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "migration_read_percentage",
			Help:      "Current indexed-backend read percentage",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(provider, stage, status string, duration time.Duration) {
	c.llmRequestsTotal.WithLabelValues(provider, stage, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, stage).Observe(duration.Seconds())
}

// RecordLLMRetry 记录一次重试（code 为触发重试的错误码）
func (c *Collector) RecordLLMRetry(provider, code string) {
	c.llmRetriesTotal.WithLabelValues(provider, code).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🚦 限流指标记录
// =============================================================================

// RecordRateLimited 记录被限流的请求
func (c *Collector) RecordRateLimited(limiter string) {
	c.rateLimitedTotal.WithLabelValues(limiter).Inc()
}

// =============================================================================
// 🗄️ 存储指标记录
// =============================================================================

// RecordStorageOperation 记录存储操作
func (c *Collector) RecordStorageOperation(backend, operation, status string, duration time.Duration) {
	c.storageOpsTotal.WithLabelValues(backend, operation, status).Inc()
	c.storageOpDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔀 迁移指标记录
// =============================================================================

// RecordMigrationDivergence 记录两端结果分歧
func (c *Collector) RecordMigrationDivergence(kind string) {
	c.migrationDivergences.WithLabelValues(kind).Inc()
}

// RecordShadowWriteFailure 记录影子写失败
func (c *Collector) RecordShadowWriteFailure() {
	c.shadowWriteFailures.Inc()
}

// SetMigrationReadPercentage 更新当前读切换百分比
func (c *Collector) SetMigrationReadPercentage(pct int) {
	c.migrationReadPercent.Set(float64(pct))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
