// Copyright 2026 chat-platform authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package chat 定义会话消息模型与 per-agent 时间线存储（bucket + 消息索引）。
package chat

import (
	"time"
)

// Role 消息角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// OpinionMeta 流式响应携带的评审元数据：决定响应归入哪个 bucket
type OpinionMeta struct {
	SourceAgentID   string `json:"sourceAgentId"`   // 被评审消息所属 agent（目标 bucket）
	ReviewerAgentID string `json:"reviewerAgentId"` // 实际生成内容的 agent
	RequestNoteID   string `json:"requestNoteId"`   // 对应请求标记消息的 id
}

// OpinionRequestMeta 请求标记消息携带的评审请求元数据
type OpinionRequestMeta struct {
	RequestID     string `json:"requestId"`
	TargetAgentID string `json:"targetAgentId"`
	SourceAgentID string `json:"sourceAgentId"`
	MessageID     string `json:"messageId"` // 被评审的 assistant 消息 id
}

// Meta 消息结构化注解
type Meta struct {
	Opinion        *OpinionMeta        `json:"opinion,omitempty"`
	OpinionRequest *OpinionRequestMeta `json:"opinionRequest,omitempty"`
}

// Message 会话单元；值语义，修改通过 Patch 重建（便于测试 moveId/replace 的原子性）
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	AgentID   string    `json:"agentId"` // 内容作者，可能不同于所属 bucket（评审场景）
	Content   string    `json:"content"`
	Streaming bool      `json:"isStreaming"`
	Meta      *Meta     `json:"meta,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUserMessage 创建用户消息
func NewUserMessage(id, agentID, content string) Message {
	return Message{
		ID:        id,
		Role:      RoleUser,
		AgentID:   agentID,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewAssistantMessage 创建流式中的 assistant 消息（内容为空，等待 chunk 累积）
func NewAssistantMessage(id, agentID string, meta *Meta) Message {
	return Message{
		ID:        id,
		Role:      RoleAssistant,
		AgentID:   agentID,
		Streaming: true,
		Meta:      meta,
		CreatedAt: time.Now(),
	}
}

// Patch 部分更新；nil 字段保持原值，Meta 非 nil 时整体替换
type Patch struct {
	Role      *Role
	AgentID   *string
	Content   *string
	Streaming *bool
	Meta      *Meta
}

// apply 以不可变方式合并 Patch，返回新 Message
func (m Message) apply(p Patch) Message {
	if p.Role != nil {
		m.Role = *p.Role
	}
	if p.AgentID != nil {
		m.AgentID = *p.AgentID
	}
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.Streaming != nil {
		m.Streaming = *p.Streaming
	}
	if p.Meta != nil {
		m.Meta = p.Meta
	}
	return m
}

// build 从 Patch 构造新消息（replace 的 upsert 分支）
func (p Patch) build(id, agentID string) Message {
	m := Message{
		ID:        id,
		Role:      RoleAssistant,
		AgentID:   agentID,
		CreatedAt: time.Now(),
	}
	return m.apply(p)
}
