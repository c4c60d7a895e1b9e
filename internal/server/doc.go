// Copyright (c) VoiceHub Authors.
// Licensed under the MIT License.

/*
Package server 提供 HTTP 服务器生命周期管理：非阻塞启动、
优雅关闭与系统信号监听。

VoiceHub 运行两个 Manager 实例：API 服务器与 metrics 服务器，
两者共享同一套启动/停机流程。WaitForShutdown 监听 SIGINT/SIGTERM，
Errors() 暴露异步服务错误供调用方监控。
*/
package server
