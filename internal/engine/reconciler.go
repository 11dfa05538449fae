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

package engine

import (
	"time"

	"chat-platform/internal/chat"
	"chat-platform/internal/transport"
	"chat-platform/pkg/metrics"
)

// targetBucket 决定流事件的目标 bucket：评审元数据优先（响应归入
// 被评审消息所属 bucket），其次事件携带的 agent，最后当前激活 agent
func (e *Engine) targetBucket(agentID string, meta *chat.Meta) string {
	if meta != nil && meta.Opinion != nil && meta.Opinion.SourceAgentID != "" {
		return meta.Opinion.SourceAgentID
	}
	if agentID != "" {
		return agentID
	}
	return e.ActiveAgent()
}

// producerAgent 内容作者：事件携带的 agent，缺省为当前激活 agent
func (e *Engine) producerAgent(agentID string) string {
	if agentID != "" {
		return agentID
	}
	return e.ActiveAgent()
}

// handleStreamStart 新建流式中的 assistant 消息并入目标 bucket；
// 首个生命迹象，清除 Watchdog
func (e *Engine) handleStreamStart(ev transport.StreamStart) {
	if ev.ID == "" {
		e.logger.Warn("stream-start 缺少消息 id，丢弃")
		return
	}
	target := e.targetBucket(ev.AgentID, ev.Meta)
	producer := e.producerAgent(ev.AgentID)

	msg := chat.NewAssistantMessage(ev.ID, producer, ev.Meta)
	if err := e.store.Append(target, msg); err != nil {
		// 重复 start：保留已有消息，不重置累积内容
		e.logger.Debug("stream-start 重复，忽略", "id", ev.ID, "error", err)
	} else {
		e.mu.Lock()
		e.streamStarted[ev.ID] = time.Now()
		e.mu.Unlock()
	}
	e.watchdog.Stop()
}

// handleStreamChunk 按索引路由并就地累积；孤儿 chunk 静默丢弃（重载后常见）
func (e *Engine) handleStreamChunk(ev transport.StreamChunk) {
	if err := e.store.AppendContent(ev.ID, ev.Chunk); err != nil {
		e.logger.Debug("丢弃孤儿 chunk", "id", ev.ID)
		metrics.StreamOrphanChunkTotal.Inc()
		return
	}
	metrics.StreamChunkTotal.Inc()
}

// handleStreamEnd 终结流式消息：重复确认 no-op；消息缺失时直接以终态合成；
// 权威内容非空时整体替换累积值；解除对应的评审挂起；清除 Watchdog 与 loading
func (e *Engine) handleStreamEnd(ev transport.StreamEnd) {
	if ev.ID == "" {
		e.logger.Warn("stream-end 缺少消息 id，丢弃")
		return
	}

	e.mu.Lock()
	if _, done := e.persisted[ev.ID]; done {
		e.mu.Unlock()
		e.logger.Debug("重复的 stream-end，忽略", "id", ev.ID)
		return
	}
	e.persisted[ev.ID] = struct{}{}
	startedAt, started := e.streamStarted[ev.ID]
	delete(e.streamStarted, ev.ID)
	e.mu.Unlock()

	target := e.targetBucket(ev.AgentID, ev.Meta)
	producer := e.producerAgent(ev.AgentID)

	done := false
	role := chat.RoleAssistant
	patch := chat.Patch{Streaming: &done, Role: &role, AgentID: &producer}
	if ev.Content != "" {
		patch.Content = &ev.Content
	}
	if ev.Meta != nil {
		patch.Meta = ev.Meta
	}
	msg, err := e.store.Replace(target, ev.ID, patch)
	if err != nil {
		e.logger.Warn("stream-end 对账失败", "id", ev.ID, "error", err)
	} else {
		e.logger.Info("流式消息已终结",
			"id", ev.ID, "bucket", target, "agent_id", msg.AgentID)
	}

	if started {
		metrics.StreamDuration.WithLabelValues(producer).Observe(time.Since(startedAt).Seconds())
	}
	if ev.Meta != nil && ev.Meta.Opinion != nil {
		e.resolveOpinion(ev.Meta.Opinion.RequestNoteID)
	}

	e.watchdog.Stop()
	e.setLoading(false)
}

// handleMessagePersisted 见 persist.go

// handleWSError 后端上报错误：释放 loading/Watchdog，解除对应评审挂起，
// 透传服务端消息（opinion_already_exists 无消息时用本地回退文案）
func (e *Engine) handleWSError(ev transport.WSError) {
	e.watchdog.Stop()
	e.setLoading(false)
	if ev.RequestID != "" {
		e.resolveOpinion(ev.RequestID)
	}

	text := ev.Message
	if text == "" && ev.Code == "opinion_already_exists" {
		text = opinionConflictFallback
	}
	if text == "" {
		text = "Une erreur est survenue côté serveur."
	}
	e.toast("error", text)
	e.logger.Warn("后端错误", "code", ev.Code, "request_id", ev.RequestID)
}

// handleRAGStatus RAG 可用性写入会话状态；不可用时顺带关闭启用位
func (e *Engine) handleRAGStatus(ev transport.RAGStatus) {
	e.state.Set("rag.available", ev.Available)
	if !ev.Available {
		e.state.Set("rag.enabled", false)
	} else {
		e.state.Set("rag.enabled", ev.Enabled)
	}
	e.logger.Debug("RAG 状态更新", "available", ev.Available, "enabled", ev.Enabled)
}
