// Copyright (c) VoiceHub Authors.
// Licensed under the MIT License.

/*
Package types 提供 VoiceHub 服务的全局共享类型定义。

# 概述

types 是服务最底层的公共包，不依赖任何内部包，为 store、speech、voice、
api 等上层模块提供统一的类型契约。所有跨包共享的枚举、结构体和错误码
均定义于此，以避免循环依赖。

# 核心类型

  - Role / Message    — 对话消息（user / assistant，含时间戳）
  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable 标记
  - VoiceOption       — Deepgram Aura 语音目录条目
  - ModelOption       — 可选的 Gemini 模型目录条目

# 主要能力

  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
  - 常用错误构造：NewError + WithCause / WithHTTPStatus / WithRetryable
  - 语音目录：VoiceOptions / ModelOptions / IsKnownVoice
*/
package types
