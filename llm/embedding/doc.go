// Copyright (c) PromptFlow Authors.
// Licensed under the MIT License.

/*
包 embedding 提供文本向量化能力。

# 概述

封装 OpenAI Embeddings API，为索引型存储后端提供语义向量。
搜索与写入路径对向量化失败的容忍度不同：EmbedOrZero 在失败时
返回全零向量并记录日志，保证搜索降级为纯词法匹配而非整体失败。
*/
package embedding
