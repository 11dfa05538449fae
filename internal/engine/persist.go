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
	"chat-platform/internal/chat"
	"chat-platform/internal/transport"
)

// handleMessagePersisted 持久化对账：客户端 id 原子换成后端 id。
// 客户端 id 不在索引中时静默丢弃（已换过或从未跟踪），重复投递即 no-op。
func (e *Engine) handleMessagePersisted(ev transport.MessagePersisted) {
	if ev.ClientMessageID == "" || ev.BackendID == "" {
		e.logger.Warn("message-persisted 事件字段不完整，丢弃")
		return
	}
	if _, ok := e.store.Owner(ev.ClientMessageID); !ok {
		e.logger.Debug("message-persisted 无可对账的消息，忽略",
			"client_id", ev.ClientMessageID)
		return
	}
	if err := e.store.MoveID(ev.ClientMessageID, ev.BackendID); err != nil {
		e.logger.Warn("id 换名失败",
			"client_id", ev.ClientMessageID, "backend_id", ev.BackendID, "error", err)
		return
	}

	// 评审标记消息：请求 id 随之改写，后续流事件引用的是持久化后的 id
	if msg, _, ok := e.store.Lookup(ev.BackendID); ok &&
		msg.Meta != nil && msg.Meta.OpinionRequest != nil {
		e.rewriteOpinionRequestID(msg, ev.BackendID)
	}

	if ev.Role == chat.RoleAssistant {
		e.mu.Lock()
		if _, ok := e.persisted[ev.ClientMessageID]; ok {
			delete(e.persisted, ev.ClientMessageID)
			e.persisted[ev.BackendID] = struct{}{}
		}
		e.mu.Unlock()
	}
	e.logger.Info("消息 id 已对账",
		"client_id", ev.ClientMessageID, "backend_id", ev.BackendID)
}

// rewriteOpinionRequestID 改写标记消息的请求 id 并重挂挂起映射
func (e *Engine) rewriteOpinionRequestID(msg chat.Message, backendID string) {
	oldRequestID := msg.Meta.OpinionRequest.RequestID
	meta := &chat.Meta{
		OpinionRequest: &chat.OpinionRequestMeta{
			RequestID:     backendID,
			TargetAgentID: msg.Meta.OpinionRequest.TargetAgentID,
			SourceAgentID: msg.Meta.OpinionRequest.SourceAgentID,
			MessageID:     msg.Meta.OpinionRequest.MessageID,
		},
	}
	if _, err := e.store.Replace("", backendID, chat.Patch{Meta: meta}); err != nil {
		e.logger.Warn("改写评审请求 id 失败", "backend_id", backendID, "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if messageID, ok := e.opinionSources[oldRequestID]; ok {
		delete(e.opinionSources, oldRequestID)
		e.opinionSources[backendID] = messageID
		e.pendingOpinions[messageID] = backendID
	}
	if e.lastOpinion != nil && e.lastOpinion.RequestID == oldRequestID {
		e.lastOpinion.RequestID = backendID
	}
}
