// Copyright (c) VoiceHub Authors.
// Licensed under the MIT License.

/*
Package speech 提供语音识别（STT）和语音合成（TTS）的提供商客户端。

两个客户端都是无状态的请求/响应转发层：校验必填输入，按固定端点
转发给 Deepgram，把提供商失败映射为 types.Error，并做最小化的
响应提取（取第一个转写候选 / 原始音频字节）。不做重试，不做缓存。

  - DeepgramSTT — POST /v1/listen，输入一段完整的 webm 音频，输出最优转写文本
  - DeepgramTTS — POST /v1/speak，输入回复文本 + 语音标识，输出 MP3 音频字节
*/
package speech
