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
	"strings"

	"github.com/google/uuid"

	"chat-platform/internal/chat"
	"chat-platform/internal/transport"
	"chat-platform/pkg/errors"
	"chat-platform/pkg/metrics"
	"chat-platform/pkg/tracing"
)

// SendMessage 发送流水线：乐观消息入 bucket → 等待传输就绪（建议性）→
// 发出 chat.message 帧 → 武装 Watchdog。
// 空白输入静默 no-op；已有发送在途时返回 ErrSendInFlight。
func (e *Engine) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !e.sending.CompareAndSwap(false, true) {
		e.logger.Debug("发送被拒：已有发送在途")
		return errors.ErrSendInFlight
	}
	// 锁只覆盖同步段，任何路径（含 panic）都必须释放
	defer e.sending.Store(false)

	agentID := e.ActiveAgent()
	clientID := "local-" + uuid.New().String()

	ctx, span := tracing.StartSendSpan(ctx, agentID, clientID)
	defer span.End()

	if err := e.store.Append(agentID, chat.NewUserMessage(clientID, agentID, text)); err != nil {
		return errors.Wrap(err, "乐观消息入 bucket 失败")
	}
	e.setLoading(true)

	// 建议性等待：真正的兜底是传输层的出站队列
	if err := e.tp.AwaitReady(ctx, e.cfg.ReadyTimeout); err != nil {
		e.logger.Debug("传输未就绪，仍尝试发送", "error", err)
	}

	frame := transport.Frame{
		Type: transport.FrameChatMessage,
		Payload: transport.ChatMessagePayload{
			Text:            text,
			AgentID:         agentID,
			UseRAG:          e.state.GetBool("rag.enabled", false),
			ClientMessageID: clientID,
		},
	}
	if err := e.tp.Send(frame); err != nil {
		e.watchdog.Stop()
		e.setLoading(false)
		e.toast("error", "Impossible d'envoyer le message, réessayez.")
		metrics.SendFailTotal.Inc()
		return errors.Wrap(err, "发送 chat.message 帧失败")
	}

	e.watchdog.Arm(PendingSend{ID: clientID, AgentID: agentID, Text: text})
	metrics.SendTotal.WithLabelValues(agentID).Inc()
	e.logger.Info("用户消息已发送", "agent_id", agentID, "client_id", clientID)
	return nil
}

// onWatchdogExpire 看门狗到期：释放 loading 并提示用户，但不取消底层请求，
// 迟到的 stream-start/end 仍按正常路径处理
func (e *Engine) onWatchdogExpire(p PendingSend) {
	e.setLoading(false)
	e.toast("warning", "Aucune réponse de l'agent, réessayez.")
	metrics.WatchdogTimeoutTotal.Inc()
	e.logger.Warn("发送超时无响应", "agent_id", p.AgentID, "client_id", p.ID)
}
