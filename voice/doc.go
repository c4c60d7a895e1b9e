// Copyright (c) VoiceHub Authors.
// Licensed under the MIT License.

/*
Package voice 实现语音回合编排器（Voice Turn Orchestrator）。

# 状态机

一个 Session 驱动一次对话的生命周期，状态枚举为
idle → listening → processing → speaking → idle：

  - StartTurn      idle → listening，打开新的话语缓冲
  - PushAudio      listening 期间追加客户端音频帧
  - StopTurn       listening → processing，顺序执行
    确保对话存在 → 语音识别 → 持久化用户消息 →
    模型补全 → 持久化助手消息 → 语音合成 → speaking
  - PlaybackDone   speaking → idle，客户端播放完毕
  - End            任意状态 → idle，结束对话并清空内存历史

# 失败语义

任何流水线步骤失败都把状态机送回 idle 并发出一条可恢复的
notice 事件；已经落库的部分工作保留（非对称部分失败是记录在案
的行为）。空转写属于业务层软失败，同样中止回合但不持久化任何
消息。不做重试，不中断已发出的提供商调用。

同一 Session 任意时刻至多一个回合在处理；processing / speaking
期间的指令被拒绝。
*/
package voice
