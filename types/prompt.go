package types

import (
	"strings"
	"time"
)

// Domain 表示请求所属的技术领域
type Domain string

const (
	DomainArchitecture   Domain = "architecture"
	DomainDevelopment    Domain = "development"
	DomainInfrastructure Domain = "infrastructure"
	DomainSecurity       Domain = "security"
	DomainGeneral        Domain = "general"
)

// ExpertiseLevel 表示目标读者的技术水平
type ExpertiseLevel string

const (
	ExpertiseBeginner     ExpertiseLevel = "beginner"
	ExpertiseIntermediate ExpertiseLevel = "intermediate"
	ExpertiseExpert       ExpertiseLevel = "expert"
)

// OutputFormat 表示期望的输出结构
type OutputFormat string

const (
	FormatSimple    OutputFormat = "simple"
	FormatDetailed  OutputFormat = "detailed"
	FormatTutorial  OutputFormat = "tutorial"
	FormatChecklist OutputFormat = "checklist"
)

// validDomains 合法领域枚举值集合
var validDomains = map[Domain]bool{
	DomainArchitecture:   true,
	DomainDevelopment:    true,
	DomainInfrastructure: true,
	DomainSecurity:       true,
	DomainGeneral:        true,
}

var validExpertiseLevels = map[ExpertiseLevel]bool{
	ExpertiseBeginner:     true,
	ExpertiseIntermediate: true,
	ExpertiseExpert:       true,
}

var validOutputFormats = map[OutputFormat]bool{
	FormatSimple:    true,
	FormatDetailed:  true,
	FormatTutorial:  true,
	FormatChecklist: true,
}

// ValidDomain 判断领域枚举值是否合法
func ValidDomain(d Domain) bool {
	return validDomains[d]
}

// PromptRequest 待精炼的原始请求。
// 构造后不可变：既作为缓存键的哈希输入，也作为持久化条目的元数据。
type PromptRequest struct {
	LazyPrompt           string         `json:"lazy_prompt"`
	Domain               Domain         `json:"domain,omitempty"`
	ExpertiseLevel       ExpertiseLevel `json:"expertise_level,omitempty"`
	OutputFormat         OutputFormat   `json:"output_format,omitempty"`
	IncludeBestPractices *bool          `json:"include_best_practices,omitempty"`
	IncludeExamples      *bool          `json:"include_examples,omitempty"`
}

// Normalize 填充缺省值并返回规范化副本。
// 指针布尔字段缺省为 true（与 JSON 省略字段的语义对齐）。
func (r PromptRequest) Normalize() PromptRequest {
	if r.Domain == "" {
		r.Domain = DomainGeneral
	}
	if r.ExpertiseLevel == "" {
		r.ExpertiseLevel = ExpertiseIntermediate
	}
	if r.OutputFormat == "" {
		r.OutputFormat = FormatDetailed
	}
	if r.IncludeBestPractices == nil {
		t := true
		r.IncludeBestPractices = &t
	}
	if r.IncludeExamples == nil {
		t := true
		r.IncludeExamples = &t
	}
	return r
}

// BestPractices 返回 include_best_practices 的有效值
func (r PromptRequest) BestPractices() bool {
	return r.IncludeBestPractices == nil || *r.IncludeBestPractices
}

// Examples 返回 include_examples 的有效值
func (r PromptRequest) Examples() bool {
	return r.IncludeExamples == nil || *r.IncludeExamples
}

// Validate 校验请求合法性。
// 校验失败立即返回 INVALID_REQUEST，不触发任何远程或存储调用。
func (r PromptRequest) Validate() *Error {
	if strings.TrimSpace(r.LazyPrompt) == "" {
		return NewError(ErrInvalidRequest, "lazy_prompt cannot be empty").WithHTTPStatus(400)
	}
	if r.Domain != "" && !validDomains[r.Domain] {
		return NewError(ErrInvalidRequest, "invalid domain: "+string(r.Domain)).WithHTTPStatus(400)
	}
	if r.ExpertiseLevel != "" && !validExpertiseLevels[r.ExpertiseLevel] {
		return NewError(ErrInvalidRequest, "invalid expertise_level: "+string(r.ExpertiseLevel)).WithHTTPStatus(400)
	}
	if r.OutputFormat != "" && !validOutputFormats[r.OutputFormat] {
		return NewError(ErrInvalidRequest, "invalid output_format: "+string(r.OutputFormat)).WithHTTPStatus(400)
	}
	return nil
}

// PromptResponse 精炼结果。
// 除 Cached 标记外创建后不可变；Cached 仅在命中缓存的返回路径上置 true，
// 写入缓存或存储前必须强制为 false。
type PromptResponse struct {
	RefinedPrompt         string            `json:"refined_prompt"`
	DetectedTopics        []string          `json:"detected_topics"`
	RecommendedReferences []string          `json:"recommended_references,omitempty"`
	TopicDetails          map[string]string `json:"topic_details,omitempty"`
	PromptFileContent     string            `json:"prompt_file_content,omitempty"`
	Cached                bool              `json:"cached"`
}

// StoredPrompt 持久化条目。
// 每次缓存未命中且生成成功时创建，从不原地更新，仅由批量清空操作删除。
type StoredPrompt struct {
	ID        string         `json:"id"`
	Response  PromptResponse `json:"response"`
	Request   PromptRequest  `json:"request"`
	CreatedAt time.Time      `json:"created_at"`
}
