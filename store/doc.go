// Copyright (c) VoiceHub Authors.
// Licensed under the MIT License.

/*
Package store 提供语音机器人、对话和消息的关系型持久化层。

# 概述

基于 GORM 实现，支持 PostgreSQL / MySQL / SQLite（纯 Go 驱动）。
所有实体都以 user_id 作用域隔离，不存在跨用户可见性。

# 不变量

  - 每个 (bot_id, user_id) 任意时刻至多一条 status=active 的对话。
    对话创建通过 singleflight 串行化；PostgreSQL 迁移另外声明了
    status=active 上的部分唯一索引，唯一冲突按"复用已有对话"处理。
    多实例部署时可追加 Redis 锁（ConversationLocker）。
  - 消息只追加，按 created_at 升序排列，随机器人级联删除。
  - 对话只有两种变更：创建（active）和结束（ended + ended_at）。
*/
package store
