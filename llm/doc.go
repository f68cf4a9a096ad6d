// Copyright (c) PromptFlow Authors.
// Licensed under the MIT License.

/*
包 llm 提供上游大语言模型的 Provider 适配层。

# 概述

本包定义统一的 Provider 接口（Complete），并提供 OpenAI Chat Completions
的参考实现。所有上游错误在 HTTP 边界处被映射为带可重试标记的
*types.Error，供 retry 子包按分类吸收或透传。

# 核心类型

  - Provider          — 补全能力接口（Name + Complete + Ping）
  - CompletionRequest — 单次补全请求（system/user prompt + max_tokens + temperature）
  - OpenAIProvider    — OpenAI 实现，含错误分类与 Retry-After 归一化

# 错误映射

  - 429                  → RATE_LIMITED（可重试；Retry-After 提示归一化进消息文本）
  - 502/503/504          → CONNECTION_ERROR / UPSTREAM_TIMEOUT（可重试）
  - 网络错误/超时        → CONNECTION_ERROR / UPSTREAM_TIMEOUT（可重试）
  - 其余 4xx/5xx         → UPSTREAM_ERROR（不可重试）
*/
package llm
