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
	"context"
	"time"

	"github.com/google/uuid"

	"chat-platform/internal/chat"
	"chat-platform/internal/transport"
	"chat-platform/pkg/errors"
	"chat-platform/pkg/metrics"
	"chat-platform/pkg/tracing"
)

// opinionConflictFallback 服务端报 opinion_already_exists 且未带消息时的回退文案
const opinionConflictFallback = "Un avis existe déjà pour ce message."

// OpinionRequest 跨 agent 评审请求：reviewer（target）评审 source agent
// 的某条 assistant 消息，整个交换保留在 source 的时间线内
type OpinionRequest struct {
	TargetAgentID string `json:"targetAgentId"`
	SourceAgentID string `json:"sourceAgentId"`
	MessageID     string `json:"messageId"`
	MessageText   string `json:"messageText,omitempty"`
}

// RequestOpinion 评审路由：去重（同一 source 消息至多一个未解除的请求）、
// 限速、在 source bucket 创建请求标记消息、发出 chat.opinion 帧。
// 挂起中的重复调用是静默 no-op；前一请求终结后的再次调用视为全新请求。
func (e *Engine) RequestOpinion(ctx context.Context, req OpinionRequest) error {
	if req.TargetAgentID == "" || req.SourceAgentID == "" || req.MessageID == "" {
		return errors.Wrap(errors.ErrInvalidArg, "评审请求字段不完整")
	}

	e.mu.Lock()
	if reqID, pending := e.pendingOpinions[req.MessageID]; pending {
		e.mu.Unlock()
		e.logger.Debug("评审请求去重：已有未解除的请求",
			"message_id", req.MessageID, "request_id", reqID)
		metrics.OpinionDuplicateTotal.Inc()
		return nil
	}
	e.mu.Unlock()

	if !e.opinionLimiter.Allow() {
		e.toast("warning", "Trop de demandes d'avis, patientez un instant.")
		return errors.Wrap(errors.ErrInvalidArg, "评审请求超出限速")
	}

	requestID := "opinion-" + uuid.New().String()
	_, span := tracing.StartOpinionSpan(ctx, req.SourceAgentID, req.TargetAgentID, requestID)
	defer span.End()

	// 标记消息进 source bucket：后续流事件凭 meta.opinion 路由回该 bucket
	marker := chat.Message{
		ID:      requestID,
		Role:    chat.RoleUser,
		AgentID: req.SourceAgentID,
		Content: req.MessageText,
		Meta: &chat.Meta{
			OpinionRequest: &chat.OpinionRequestMeta{
				RequestID:     requestID,
				TargetAgentID: req.TargetAgentID,
				SourceAgentID: req.SourceAgentID,
				MessageID:     req.MessageID,
			},
		},
		CreatedAt: time.Now(),
	}
	if err := e.store.Append(req.SourceAgentID, marker); err != nil {
		return errors.Wrap(err, "写入评审标记消息失败")
	}

	frame := transport.Frame{
		Type: transport.FrameChatOpinion,
		Payload: transport.ChatOpinionPayload{
			TargetAgentID: req.TargetAgentID,
			SourceAgentID: req.SourceAgentID,
			MessageID:     req.MessageID,
			RequestID:     requestID,
		},
	}
	if err := e.tp.Send(frame); err != nil {
		e.toast("error", "Impossible d'envoyer la demande d'avis.")
		metrics.SendFailTotal.Inc()
		return errors.Wrap(err, "发送 chat.opinion 帧失败")
	}

	e.mu.Lock()
	e.pendingOpinions[req.MessageID] = requestID
	e.opinionSources[requestID] = req.MessageID
	e.lastOpinion = &OpinionSnapshot{
		Bucket:        req.SourceAgentID,
		RequestID:     requestID,
		MessageID:     req.MessageID,
		TargetAgentID: req.TargetAgentID,
		At:            time.Now(),
	}
	e.mu.Unlock()

	e.bus.Emit(EventOpinionRequested, OpinionRequested{RequestID: requestID})
	metrics.OpinionRequestTotal.WithLabelValues(req.SourceAgentID).Inc()
	e.logger.Info("评审请求已发出",
		"request_id", requestID,
		"source_agent", req.SourceAgentID,
		"target_agent", req.TargetAgentID,
		"message_id", req.MessageID)
	return nil
}

// resolveOpinion 按请求 id 解除评审挂起（终态 stream-end 或 ws-error 触发）
func (e *Engine) resolveOpinion(requestID string) {
	if requestID == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	messageID, ok := e.opinionSources[requestID]
	if !ok {
		return
	}
	delete(e.opinionSources, requestID)
	delete(e.pendingOpinions, messageID)
	e.logger.Debug("评审请求已解除", "request_id", requestID, "message_id", messageID)
}

// PendingOpinionCount 当前挂起的评审请求数（诊断用）
func (e *Engine) PendingOpinionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pendingOpinions)
}
