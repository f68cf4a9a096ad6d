package api

import (
	"time"

	"github.com/BaSui01/promptflow/types"
)

// =============================================================================
// 提示词精炼类型
// =============================================================================

// RefinePromptRequest 代表提示词精炼请求。
// @Description 提示词精炼请求结构
type RefinePromptRequest struct {
	// 用户的原始（懒惰）提示词
	LazyPrompt string `json:"lazy_prompt" example:"how do i use terraform with aws" binding:"required"`
	// 技术领域（architecture、development、infrastructure、security、general）
	Domain string `json:"domain,omitempty" example:"infrastructure"`
	// 目标读者水平（beginner、intermediate、expert）
	ExpertiseLevel string `json:"expertise_level,omitempty" example:"intermediate"`
	// 输出格式（simple、detailed、tutorial、checklist）
	OutputFormat string `json:"output_format,omitempty" example:"detailed"`
	// 是否包含最佳实践（省略时默认 true）
	IncludeBestPractices *bool `json:"include_best_practices,omitempty" example:"true"`
	// 是否包含示例（省略时默认 true）
	IncludeExamples *bool `json:"include_examples,omitempty" example:"true"`
}

// ToPromptRequest 转换为内部请求类型
func (r *RefinePromptRequest) ToPromptRequest() types.PromptRequest {
	return types.PromptRequest{
		LazyPrompt:           r.LazyPrompt,
		Domain:               types.Domain(r.Domain),
		ExpertiseLevel:       types.ExpertiseLevel(r.ExpertiseLevel),
		OutputFormat:         types.OutputFormat(r.OutputFormat),
		IncludeBestPractices: r.IncludeBestPractices,
		IncludeExamples:      r.IncludeExamples,
	}
}

// RefinePromptResponse 代表提示词精炼响应。
// @Description 提示词精炼响应结构
type RefinePromptResponse struct {
	// 精炼后的提示词全文
	RefinedPrompt string `json:"refined_prompt"`
	// 检测到的技术主题
	DetectedTopics []string `json:"detected_topics"`
	// 推荐的参考资料
	RecommendedReferences []string `json:"recommended_references,omitempty"`
	// 主题到一行解释的映射
	TopicDetails map[string]string `json:"topic_details,omitempty"`
	// 可下载的 Markdown 提示词文件内容
	PromptFileContent string `json:"prompt_file_content,omitempty"`
	// 是否来自缓存
	Cached bool `json:"cached" example:"false"`
}

// FromPromptResponse 从内部响应类型构造 API 响应
func FromPromptResponse(resp *types.PromptResponse) RefinePromptResponse {
	return RefinePromptResponse{
		RefinedPrompt:         resp.RefinedPrompt,
		DetectedTopics:        resp.DetectedTopics,
		RecommendedReferences: resp.RecommendedReferences,
		TopicDetails:          resp.TopicDetails,
		PromptFileContent:     resp.PromptFileContent,
		Cached:                resp.Cached,
	}
}

// =============================================================================
// 检索类型
// =============================================================================

// SearchByTopicRequest 代表按主题检索请求。
// @Description 按主题检索请求结构
type SearchByTopicRequest struct {
	// 要检索的主题（大小写不敏感）
	Topic string `json:"topic" example:"terraform" binding:"required"`
	// 返回条数上限（默认 10）
	Limit int `json:"limit,omitempty" example:"10"`
}

// SearchRelatedRequest 代表相关性检索请求。
// @Description 相关性检索请求结构
type SearchRelatedRequest struct {
	// 用于相关性匹配的主题集合
	Topics []string `json:"topics" binding:"required"`
	// 可选的领域过滤
	Domain string `json:"domain,omitempty" example:"infrastructure"`
	// 返回条数上限（默认 5）
	Limit int `json:"limit,omitempty" example:"5"`
}

// StoredPromptSummary 代表检索命中的持久化条目。
// @Description 持久化提示词条目
type StoredPromptSummary struct {
	// 条目 ID
	ID string `json:"id" example:"b1c2d3e4"`
	// 原始提示词
	LazyPrompt string `json:"lazy_prompt"`
	// 精炼后的提示词
	RefinedPrompt string `json:"refined_prompt"`
	// 检测到的主题
	DetectedTopics []string `json:"detected_topics"`
	// 请求领域
	Domain string `json:"domain,omitempty" example:"infrastructure"`
	// 创建时间戳
	CreatedAt time.Time `json:"created_at"`
}

// SearchResponse 代表检索结果列表。
// @Description 检索结果响应
type SearchResponse struct {
	// 命中条目
	Results []StoredPromptSummary `json:"results"`
	// 命中条数
	Count int `json:"count" example:"2"`
}

// NewSearchResponse 将持久化条目转换为检索响应
func NewSearchResponse(prompts []types.StoredPrompt) SearchResponse {
	results := make([]StoredPromptSummary, 0, len(prompts))
	for _, p := range prompts {
		results = append(results, StoredPromptSummary{
			ID:             p.ID,
			LazyPrompt:     p.Request.LazyPrompt,
			RefinedPrompt:  p.Response.RefinedPrompt,
			DetectedTopics: p.Response.DetectedTopics,
			Domain:         string(p.Request.Domain),
			CreatedAt:      p.CreatedAt,
		})
	}
	return SearchResponse{Results: results, Count: len(results)}
}

// =============================================================================
// 迁移管理类型
// =============================================================================

// MigrationStatus 代表存储迁移的当前状态。
// @Description 迁移状态结构
type MigrationStatus struct {
	// 路由到索引后端的读流量百分比（0-100）
	ReadPercentage int `json:"read_percentage" example:"30"`
	// 影子写是否开启
	ShadowWrite bool `json:"shadow_write" example:"true"`
	// 结果对比是否开启
	CompareResults bool `json:"compare_results" example:"true"`
}

// ToggleRequest 代表开关类管理请求。
// @Description 布尔开关请求结构
type ToggleRequest struct {
	// 目标开关状态
	Enabled *bool `json:"enabled" binding:"required"`
}

// ClearStorageResponse 代表清空存储的结果。
// @Description 清空存储响应结构
type ClearStorageResponse struct {
	// 操作结果
	Cleared bool `json:"cleared" example:"true"`
}
