// Copyright (c) VoiceHub Authors.
// Licensed under the MIT License.

/*
Package api 定义 VoiceHub HTTP API 的请求与响应类型。

三个代理端点（转写、补全、合成）返回裸载荷；
错误一律使用统一的 {success, error:{code, message}} 包络，
状态码遵循 types.Error 的映射规则（上游失败时转发上游状态码）。
*/
package api
