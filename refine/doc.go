// Copyright (c) PromptFlow Authors.
// Licensed under the MIT License.

// Package refine 实现提示词精炼编排器。
//
// 处理流程：校验 → 缓存查询 → 相同请求合流（singleflight）→ 主题探测 →
// 相关提示词检索（作为上下文，按 token 预算截断）→ 主补全 → 可选参考资料 →
// 持久化与缓存回写。生成阶段的不可恢复失败中止请求；持久化与缓存回写
// 失败仅记录日志，不影响已生成的结果。
package refine
