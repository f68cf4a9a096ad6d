// Copyright (c) PromptFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 PromptFlow 服务端程序入口。

# 概述

cmd/promptflow 是 PromptFlow 服务的可执行入口，提供 HTTP API 服务、
健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、结构化日志
（zap）和 Prometheus 指标采集。

# 核心类型

  - Server           — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - metricsResponseWriter — 包装 http.ResponseWriter 以捕获状态码与响应字节数

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、CORS、IPRateLimiter（进程内突发保护）、
    WindowRateLimiter（Redis 固定窗口，跨实例共享计数）
  - 管理端点保护：JWTAuth（HS256 Bearer 令牌）逐路由显式包装
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP → 关闭 Metrics → 释放 Redis 连接
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
