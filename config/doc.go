// Copyright (c) PromptFlow Authors.
// Licensed under the MIT License.

// Package config 提供 PromptFlow 的配置管理功能。
//
// 支持从 YAML 文件与环境变量加载配置，
// 优先级为：默认值 → YAML 文件 → 环境变量。
// 运行期可调参数（迁移开关等）通过管理接口调整，不走配置热重载。
package config
