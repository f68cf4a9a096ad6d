package refine

import (
	"strings"

	"github.com/BaSui01/promptflow/types"
)

// systemPrompts 各领域的角色设定
var systemPrompts = map[types.Domain]string{
	types.DomainArchitecture:   "You are an experienced Systems Architect with deep knowledge of software architecture patterns, scalability, and enterprise systems.",
	types.DomainDevelopment:    "You are a Senior Software Developer with expertise in clean code, design patterns, and software engineering best practices.",
	types.DomainInfrastructure: "You are a DevOps Engineer and Cloud Architect with extensive experience in cloud infrastructure, CI/CD, and infrastructure as code.",
	types.DomainSecurity:       "You are a Security Architect with deep knowledge of security patterns, threat modeling, and secure system design.",
	types.DomainGeneral:        "You are a Technology Expert with broad knowledge across software development, architecture, and infrastructure.",
}

// formatTemplates 各输出格式的结构要求
var formatTemplates = map[types.OutputFormat]string{
	types.FormatSimple:    "Provide a clear and concise response.",
	types.FormatDetailed:  "Provide a comprehensive response with sections for overview, details, considerations, and next steps.",
	types.FormatTutorial:  "Structure the response as a step-by-step tutorial with examples and explanations.",
	types.FormatChecklist: "Present the response as a detailed checklist of items to consider or implement.",
}

const (
	topicSystemPrompt = "You are a technical topic analyzer. Extract key technical topics from the given text."
	refsSystemPrompt  = "You are a technical documentation expert. Suggest relevant technical documentation, standards, or best practice guides."
)

// buildSystemPrompt 拼装主补全的系统提示：领域角色 + 目标水平
func buildSystemPrompt(domain types.Domain, level types.ExpertiseLevel) string {
	return systemPrompts[domain] + "\n\nRespond as if explaining to a " + string(level) + " level technologist."
}

// buildTopicPrompt 主题探测的用户提示。
// 要求每行 "topic: 一句说明" 的格式，便于解析出主题明细。
func buildTopicPrompt(lazyPrompt string) string {
	return "Extract 3-5 key technical topics from this prompt: " + lazyPrompt +
		"\n\nList one topic per line as 'topic: one-line explanation'."
}

// buildRefsPrompt 参考资料推荐的用户提示
func buildRefsPrompt(lazyPrompt string) string {
	return "Suggest 2-3 technical references or documentation relevant to: " + lazyPrompt
}

// buildUserPrompt 拼装主补全的用户提示。
// relatedContext 为相关历史精炼结果摘要（可为空），置于格式要求之后。
func buildUserPrompt(req types.PromptRequest, relatedContext string) string {
	var b strings.Builder

	b.WriteString("Enhance and respond to this prompt: ")
	b.WriteString(req.LazyPrompt)
	b.WriteString("\n\nFormat: ")
	b.WriteString(formatTemplates[req.OutputFormat])
	b.WriteString("\n\n")

	if req.BestPractices() {
		b.WriteString("Include relevant industry best practices and standards.\n")
	}
	if req.Examples() {
		b.WriteString("Provide specific technical examples where appropriate.\n")
	}

	if relatedContext != "" {
		b.WriteString("\nFor consistency, here are related prompts refined earlier:\n")
		b.WriteString(relatedContext)
	}

	return b.String()
}
