package retry

import (
	"errors"
	"regexp"
	"strconv"
	"time"
)

// retryAfterPattern 匹配上游错误消息中的等待提示。
// 已知形态："Rate limit reached ... Please try again in 2s."、
// "try again in 1.5s"、"(try again in 20s)"。
// 依赖上游错误文本格式，属脆弱契约；若上游未来提供结构化字段应优先采用。
var retryAfterPattern = regexp.MustCompile(`try again in ([0-9]+(?:\.[0-9]+)?)\s*s`)

// ParseRetryAfter 从错误消息中提取上游建议的等待时间。
// 未找到提示时返回 (0, false)。
func ParseRetryAfter(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	return parseRetryAfterText(err.Error())
}

func parseRetryAfterText(msg string) (time.Duration, bool) {
	m := retryAfterPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	seconds, perr := strconv.ParseFloat(m[1], 64)
	if perr != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

// 解析需作用于完整错误链：包装层（如 fmt.Errorf）可能截断或前缀消息，
// 因此逐层 Unwrap 取第一个命中的提示。
func parseRetryAfterChain(err error) (time.Duration, bool) {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if d, ok := parseRetryAfterText(e.Error()); ok {
			return d, true
		}
	}
	return 0, false
}
