// Copyright (c) VoiceHub Authors.
// Licensed under the MIT License.

// voicehub 是语音机器人管理后台的服务入口。
//
// 子命令:
//
//	voicehub serve     启动 HTTP 服务与 Metrics 服务
//	voicehub migrate   数据库迁移管理
//	voicehub version   显示版本信息
//	voicehub health    对运行中的实例做健康检查
package main
