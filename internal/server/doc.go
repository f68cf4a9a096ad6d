// Copyright (c) PromptFlow Authors.
// Licensed under the MIT License.

// Package server 提供 HTTP 服务器生命周期管理：非阻塞启动、
// 优雅关闭与 SIGINT/SIGTERM 信号监听。
//
// Manager 封装 net/http.Server，异步错误经 Errors() 通道传播；
// WaitForShutdown 在收到信号或服务异常退出时触发优雅关闭。
package server
