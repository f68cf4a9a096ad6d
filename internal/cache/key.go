package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/BaSui01/promptflow/types"
)

// keyNamespace 缓存键命名空间前缀
const keyNamespace = "promptflow:refine:"

// canonicalRequest 参与键派生的规范形式。
// 字段名固定且按字母序排列，序列化结果与请求方的字段书写顺序无关。
type canonicalRequest struct {
	BestPractices bool   `json:"best_practices"`
	Domain        string `json:"domain"`
	Examples      bool   `json:"examples"`
	Expertise     string `json:"expertise"`
	Format        string `json:"format"`
	Prompt        string `json:"prompt"`
}

// DeriveKey 从请求派生确定性缓存键。
// prompt 去首尾空白并小写；其余字段取规范化后的有效值。纯函数，无错误路径。
func DeriveKey(req types.PromptRequest) string {
	norm := req.Normalize()

	canonical := canonicalRequest{
		BestPractices: norm.BestPractices(),
		Domain:        string(norm.Domain),
		Examples:      norm.Examples(),
		Expertise:     string(norm.ExpertiseLevel),
		Format:        string(norm.OutputFormat),
		Prompt:        strings.ToLower(strings.TrimSpace(norm.LazyPrompt)),
	}

	// 结构体字段序即 JSON 键序，序列化是确定性的
	data, err := json.Marshal(canonical)
	if err != nil {
		// 纯字符串/布尔字段不可能失败；保底用原始拼接避免空键
		data = []byte(canonical.Prompt + "|" + canonical.Domain)
	}

	sum := sha256.Sum256(data)
	return keyNamespace + hex.EncodeToString(sum[:])
}
