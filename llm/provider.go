package llm

import (
	"context"
)

// CompletionRequest 单次补全调用的参数
type CompletionRequest struct {
	SystemPrompt string  `json:"system_prompt"`
	UserPrompt   string  `json:"user_prompt"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float32 `json:"temperature,omitempty"`
}

// Provider 上游补全服务的统一接口。
// 实现必须将上游失败映射为带分类错误码的 *types.Error，
// 以便重试层区分瞬时错误与永久错误。
type Provider interface {
	// Name 返回 Provider 标识（用于日志与指标）
	Name() string

	// Complete 执行一次补全调用，返回生成文本
	Complete(ctx context.Context, req *CompletionRequest) (string, error)

	// Ping 检查上游可达性（用于健康检查）
	Ping(ctx context.Context) error
}
