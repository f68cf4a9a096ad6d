// Copyright (c) PromptFlow Authors.
// Licensed under the MIT License.

/*
包 storage 提供精炼结果的持久化存储抽象与双后端迁移路由。

# 概述

Store 接口定义五个能力：store / get_by_id / search_by_topic /
search_related / clear。两个变体：

  - RedisStore   — 键值变体：内容 + 主题集合 + 领域集合索引，
    集合枚举序即返回序（无相关性排序，已知局限）
  - ElasticStore — 索引变体：词法匹配（主题字段权重高于正文）与
    语义相似度（文档向量 vs 查询向量）单调混合

HybridStore 按百分比把读流量从 Redis 逐步切到 Elasticsearch：
写入始终以 Redis 为权威，影子写 Elasticsearch；读按均匀随机数路由，
索引端失败或无数据时回落 Redis；结果分歧仅告警，从不阻塞响应。

# 错误策略

搜索尽力而为：瞬时后端错误记录日志并返回空结果。store 与 get_by_id
允许传播失败——写路径的正确性依赖它们。
*/
package storage
