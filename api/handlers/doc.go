// Copyright (c) PromptFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 PromptFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 PromptFlow 所有 HTTP 端点的请求处理逻辑，
包括提示词精炼、历史检索、迁移管理、健康检查以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - RefineHandler    — 提示词精炼处理器（/refine-prompt）
  - SearchHandler    — 历史提示词检索（/search/by-topic, /search/related）
  - AdminHandler     — 存储迁移管理（读流量爬坡、影子写、结果对比、清空）
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（Redis、Elasticsearch、上游等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 迁移开关：读百分比推进、影子写/对比开关、存储批量清空
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
