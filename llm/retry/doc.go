// Copyright (c) PromptFlow Authors.
// Licensed under the MIT License.

/*
包 retry 提供面向上游 LLM 调用的重试控制器。

# 概述

Controller 以最多 MaxAttempts 次尝试包裹一个可失败的远程调用：
仅瞬时错误（限流/超时/连接失败）触发重试，其余错误立即透传；
等待时间优先采用上游错误消息中的自带提示（"try again in <n>s"），
缺省为 MinDelay，叠加最多 +10% 的乘性抖动并以 MaxDelay 封顶。
所有尝试耗尽后以 SERVICE_UNAVAILABLE 重分类返回，不暴露原始上游错误。

# 核心类型

  - Policy     — 重试策略（次数/最小最大等待/抖动比例/OnRetry 回调）
  - Controller — 执行器，Do / DoWithResult 两种调用形态
  - ParseRetryAfter — 从错误消息提取等待提示的独立解析器（便于单测）

等待期间监听 context 取消；基线设计不把客户端断连传播进正在执行的尝试。
*/
package retry
