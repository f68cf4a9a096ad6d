// =============================================================================
// 📦 PromptFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Redis:       DefaultRedisConfig(),
		Elastic:     DefaultElasticConfig(),
		LLM:         DefaultLLMConfig(),
		Cache:       DefaultCacheConfig(),
		RateLimit:   DefaultRateLimitConfig(),
		Migration:   DefaultMigrationConfig(),
		Refine:      DefaultRefineConfig(),
		Auth:        DefaultAuthConfig(),
		Log:         DefaultLogConfig(),
		Environment: "production",
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:           8080,
		MetricsPort:        9090,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       120 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RateLimitRPS:       100,
		RateLimitBurst:     200,
		CORSAllowedOrigins: []string{"*"},
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultElasticConfig 返回默认 Elasticsearch 配置
func DefaultElasticConfig() ElasticConfig {
	return ElasticConfig{
		Host:            "localhost",
		Port:            9200,
		Scheme:          "http",
		APIKey:          "",
		Index:           "prompts-v1",
		AutoCreateIndex: true,
		VectorDims:      1536, // OpenAI embedding dimension
		Timeout:         30 * time.Second,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		APIKey:         "",
		BaseURL:        "",
		Model:          "gpt-4",
		EmbeddingModel: "text-embedding-3-small",
		EmbeddingDims:  1536,
		Timeout:        2 * time.Minute,
	}
}

// DefaultCacheConfig 返回默认响应缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: true,
		TTL:     time.Hour,
	}
}

// DefaultRateLimitConfig 返回默认限流配置：每 60 秒 60 次请求
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Threshold: 60,
		Window:    60 * time.Second,
	}
}

// DefaultMigrationConfig 返回默认迁移配置：0% 读切换，影子写与对比开启
func DefaultMigrationConfig() MigrationConfig {
	return MigrationConfig{
		ReadPercentage:   0,
		ShadowWrite:      true,
		CompareResults:   true,
		AdvanceIncrement: 10,
	}
}

// DefaultRefineConfig 返回默认精炼编排配置
func DefaultRefineConfig() RefineConfig {
	return RefineConfig{
		RelatedLimit:       3,
		ContextTokenBudget: 600,
		TokenizerEncoding:  "cl100k_base",
	}
}

// DefaultAuthConfig 返回默认认证配置（密钥必须显式配置）
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:   true,
		JWTSecret: "",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}
