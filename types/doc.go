// Copyright (c) PromptFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 PromptFlow 服务的全局共享类型定义。

# 概述

types 是服务最底层的公共包，不依赖任何内部包，为 refine、storage、llm、
api 等上层模块提供统一的类型契约。所有跨包共享的枚举、结构体和错误码
均定义于此，以避免循环依赖。

# 核心类型

  - PromptRequest     — 待精炼的原始请求（lazy_prompt + 领域/级别/格式选项）
  - PromptResponse    — 精炼结果（refined_prompt、detected_topics、references 等）
  - StoredPrompt      — 持久化条目（id + response + request + created_at）
  - Domain / ExpertiseLevel / OutputFormat — 请求枚举
  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 错误语义

所有组件统一使用 *types.Error 传递可分类错误：校验错误立即返回 400，
瞬时上游错误（限流/超时/连接失败）由重试层吸收，耗尽后重分类为
SERVICE_UNAVAILABLE；其余上游错误映射为 INTERNAL_ERROR。
*/
package types
