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

package transport

import (
	"encoding/json"
	"fmt"

	"chat-platform/internal/chat"
)

// 入站事件名（事件总线主题；同时是 WebSocket 封包的 type 字段）
const (
	EventStreamStart      = "chat-stream-start"
	EventStreamChunk      = "chat-stream-chunk"
	EventStreamEnd        = "chat-stream-end"
	EventMessagePersisted = "message-persisted"
	EventWSError          = "ws-error"
	EventRAGStatus        = "ws-rag-status"
)

// Event 入站事件的标记变体；引擎侧对其做穷尽匹配
type Event interface {
	EventName() string
}

// StreamStart 一条 assistant 消息开始流式生成
type StreamStart struct {
	AgentID string     `json:"agentId"`
	ID      string     `json:"id"`
	Meta    *chat.Meta `json:"meta,omitempty"`
}

// StreamChunk 流式内容增量；同一 id 的 chunk 保证按发送顺序、在 start 之后到达
type StreamChunk struct {
	AgentID string `json:"agentId"`
	ID      string `json:"id"`
	Chunk   string `json:"chunk"`
}

// StreamEnd 流式结束；Content 非空时为权威内容，整体替换累积值
type StreamEnd struct {
	AgentID string     `json:"agentId"`
	ID      string     `json:"id"`
	Content string     `json:"content,omitempty"`
	Meta    *chat.Meta `json:"meta,omitempty"`
}

// MessagePersisted 后端确认：客户端 id 重命名为后端 id
type MessagePersisted struct {
	ClientMessageID string    `json:"clientMessageId"`
	BackendID       string    `json:"backendId"`
	Role            chat.Role `json:"role"`
	AgentID         string    `json:"agentId"`
}

// WSError 后端上报的错误（如 opinion_already_exists）
type WSError struct {
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// RAGStatus RAG 子系统可用性变化
type RAGStatus struct {
	Available bool `json:"available"`
	Enabled   bool `json:"enabled"`
}

func (StreamStart) EventName() string      { return EventStreamStart }
func (StreamChunk) EventName() string      { return EventStreamChunk }
func (StreamEnd) EventName() string        { return EventStreamEnd }
func (MessagePersisted) EventName() string { return EventMessagePersisted }
func (WSError) EventName() string          { return EventWSError }
func (RAGStatus) EventName() string        { return EventRAGStatus }

// envelope WebSocket 入站封包
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// decodeEvent 将封包解码为标记变体；未知 type 返回错误，由调用方记录后丢弃
func decodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("解码封包失败: %w", err)
	}
	var (
		ev  Event
		err error
	)
	switch env.Type {
	case EventStreamStart:
		var e StreamStart
		err = json.Unmarshal(env.Payload, &e)
		ev = e
	case EventStreamChunk:
		var e StreamChunk
		err = json.Unmarshal(env.Payload, &e)
		ev = e
	case EventStreamEnd:
		var e StreamEnd
		err = json.Unmarshal(env.Payload, &e)
		ev = e
	case EventMessagePersisted:
		var e MessagePersisted
		err = json.Unmarshal(env.Payload, &e)
		ev = e
	case EventWSError:
		var e WSError
		err = json.Unmarshal(env.Payload, &e)
		ev = e
	case EventRAGStatus:
		var e RAGStatus
		err = json.Unmarshal(env.Payload, &e)
		ev = e
	default:
		return nil, fmt.Errorf("未知事件类型 %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("解码 %s 负载失败: %w", env.Type, err)
	}
	return ev, nil
}
