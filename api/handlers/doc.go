// Package handlers 实现 VoiceHub 的 HTTP 与 WebSocket 处理器。
package handlers
