package storage

import (
	"context"

	"github.com/BaSui01/promptflow/types"
)

// Store 精炼结果存储的统一接口。
// 变体在构造时选定，调用方不感知底层后端。
type Store interface {
	// Store 持久化一条精炼结果，返回其唯一 id。
	// 写路径的正确性依赖本方法，失败向上传播。
	Store(ctx context.Context, resp types.PromptResponse, req types.PromptRequest) (string, error)

	// GetByID 按 id 点查。未找到返回 (nil, nil)；后端错误向上传播。
	GetByID(ctx context.Context, id string) (*types.StoredPrompt, error)

	// SearchByTopic 按主题检索，最多返回 limit 条。
	// 尽力而为：后端错误记录日志并返回空结果。
	SearchByTopic(ctx context.Context, topic string, limit int) ([]types.StoredPrompt, error)

	// SearchRelated 按主题集合（可选领域过滤）检索相关条目。
	// 尽力而为，语义同上。
	SearchRelated(ctx context.Context, topics []string, domain types.Domain, limit int) ([]types.StoredPrompt, error)

	// Clear 清空全部持久化数据与派生索引。
	Clear(ctx context.Context) error

	// Ping 检查后端连通性（用于健康检查）。
	Ping(ctx context.Context) error
}
