// Copyright (c) PromptFlow Authors.
// Licensed under the MIT License.

/*
包 ratelimit 提供基于 Redis 固定窗口的限流器。

# 概述

窗口标识 = 当前 epoch 秒整除窗口时长，与客户端身份拼接为计数键。
每次调用以单次 INCR 原子递增；仅当计数从 0 变 1 时设置等于窗口时长的
过期，过期窗口自清理，无需独立清扫。计数超过阈值即判限流——触发溢出
的调用与同窗口后续调用均被限，但递增不回滚。

固定窗口在窗口边界的突发可短暂放行略超名义上限的流量，这是已知的
取舍而非缺陷。Redis 故障时放行（fail-open）并记录日志。
*/
package ratelimit
