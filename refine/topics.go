package refine

import (
	"strings"

	"github.com/BaSui01/promptflow/types"
)

// parseTopics 解析主题探测输出。
// 每行一个主题，兼容 "- topic"、"* topic"、"1. topic" 等列表前缀；
// 首个冒号之后的内容视为该主题的一句说明，进入明细表。
func parseTopics(raw string) ([]string, map[string]string) {
	var topics []string
	details := make(map[string]string)

	for _, line := range strings.Split(raw, "\n") {
		line = trimListPrefix(line)
		if line == "" {
			continue
		}

		topic := line
		detail := ""
		if idx := strings.Index(line, ":"); idx > 0 {
			topic = strings.TrimSpace(line[:idx])
			detail = strings.TrimSpace(line[idx+1:])
		}
		if topic == "" {
			continue
		}

		topics = append(topics, topic)
		if detail != "" {
			details[topic] = detail
		}
	}

	if len(details) == 0 {
		details = nil
	}
	return topics, details
}

// parseReferences 解析参考资料输出：逐行去列表前缀，丢弃空行
func parseReferences(raw string) []string {
	var refs []string
	for _, line := range strings.Split(raw, "\n") {
		line = trimListPrefix(line)
		if line != "" {
			refs = append(refs, line)
		}
	}
	return refs
}

// trimListPrefix 去除常见列表前缀与首尾空白
func trimListPrefix(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-*• ")
	// "1." / "2)" 这类序号前缀
	for i, r := range line {
		if r >= '0' && r <= '9' {
			continue
		}
		if (r == '.' || r == ')') && i > 0 {
			line = line[i+1:]
		}
		break
	}
	return strings.TrimSpace(line)
}

// renderPromptFile 渲染可直接落盘使用的 markdown 提示词文件
func renderPromptFile(req types.PromptRequest, resp types.PromptResponse) string {
	var b strings.Builder

	b.WriteString("# Refined Prompt\n\n")
	b.WriteString("> ")
	b.WriteString(req.LazyPrompt)
	b.WriteString("\n\n## Prompt\n\n")
	b.WriteString(resp.RefinedPrompt)
	b.WriteString("\n\n## Metadata\n\n")
	b.WriteString("- Domain: " + string(req.Domain) + "\n")
	b.WriteString("- Expertise level: " + string(req.ExpertiseLevel) + "\n")
	b.WriteString("- Output format: " + string(req.OutputFormat) + "\n")

	if len(resp.DetectedTopics) > 0 {
		b.WriteString("\n## Detected Topics\n\n")
		for _, topic := range resp.DetectedTopics {
			b.WriteString("- " + topic)
			if detail, ok := resp.TopicDetails[topic]; ok {
				b.WriteString(": " + detail)
			}
			b.WriteString("\n")
		}
	}

	if len(resp.RecommendedReferences) > 0 {
		b.WriteString("\n## Recommended References\n\n")
		for _, ref := range resp.RecommendedReferences {
			b.WriteString("- " + ref + "\n")
		}
	}

	return b.String()
}
