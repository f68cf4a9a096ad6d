// Copyright (c) PromptFlow Authors.
// Licensed under the MIT License.

/*
包 cache 提供精炼结果的 Redis 响应缓存与缓存键派生。

# 概述

缓存是纯粹的服务时优化：键为规范化请求的 256 位摘要，值为序列化的
PromptResponse，带 TTL 过期（逻辑缺失，不主动清扫）。缓存与持久化存储
是相互独立的系统，互不持有对方状态。

# 核心类型

  - DeriveKey — 纯函数：规范化（prompt 去空白 + 小写）→ 固定字段序
    规范序列化 → SHA-256 → 命名空间前缀
  - Cache     — Get/Set/Ping/Close；读错误按未命中降级，写错误向上返回
    由调用方决定是否吞掉（写回路径上记录日志后忽略）

# 键不变量

  - 归一化：仅 prompt 大小写/首尾空白不同的请求派生相同键
  - 区分性：任何其他字段不同的请求派生不同键
*/
package cache
