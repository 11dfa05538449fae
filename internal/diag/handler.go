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

// Package diag 引擎的诊断与控制 HTTP API：bucket 只读视图、发送/评审触发、
// 会话快照的保存与恢复、健康检查与 Prometheus 指标。
package diag

import (
	"bytes"
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"chat-platform/internal/engine"
	"chat-platform/internal/history"
	"chat-platform/pkg/errors"
	"chat-platform/pkg/metrics"
	"chat-platform/pkg/state"
)

// Handler 诊断 API 处理器
type Handler struct {
	engine  *engine.Engine
	state   *state.Store
	history history.Store
}

// NewHandler 创建诊断 API 处理器；history 可为 nil（快照端点返回 503）
func NewHandler(eng *engine.Engine, st *state.Store, hist history.Store) *Handler {
	return &Handler{engine: eng, state: st, history: hist}
}

// Healthz 健康检查
// GET /healthz
func (h *Handler) Healthz(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]string{"status": "ok"})
}

// Metrics Prometheus 指标导出
// GET /metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4", buf.Bytes())
}

// ListBuckets 所有 bucket 的完整快照
// GET /api/buckets
func (h *Handler) ListBuckets(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]any{
		"buckets": h.engine.Store().Snapshot(),
		"agents":  h.engine.Store().Agents(),
		"loading": h.engine.Loading(),
	})
}

// GetBucket 单个 agent 的时间线
// GET /api/buckets/:agent
func (h *Handler) GetBucket(c context.Context, ctx *app.RequestContext) {
	agentID := ctx.Param("agent")
	msgs := h.engine.Store().Messages(agentID)
	if msgs == nil {
		ctx.JSON(consts.StatusNotFound, map[string]string{
			"error": "bucket 不存在: " + agentID,
		})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{
		"agentId":  agentID,
		"messages": msgs,
	})
}

// LastOpinion 最近一次评审请求快照
// GET /api/opinions/last
func (h *Handler) LastOpinion(c context.Context, ctx *app.RequestContext) {
	snap := h.engine.LastOpinion()
	if snap == nil {
		ctx.JSON(consts.StatusNotFound, map[string]string{"error": "尚无评审请求"})
		return
	}
	ctx.JSON(consts.StatusOK, snap)
}

type sendRequest struct {
	Text    string `json:"text"`
	AgentID string `json:"agentId"`
}

// SendMessage 触发一次发送流水线
// POST /api/chat/send
func (h *Handler) SendMessage(c context.Context, ctx *app.RequestContext) {
	var req sendRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体不是合法 JSON"})
		return
	}
	if req.AgentID != "" {
		h.state.Set("chat.activeAgent", req.AgentID)
	}
	if err := h.engine.SendMessage(c, req.Text); err != nil {
		h.writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusAccepted, map[string]any{
		"loading": h.engine.Loading(),
	})
}

// RequestOpinion 触发一次跨 agent 评审请求
// POST /api/chat/opinion
func (h *Handler) RequestOpinion(c context.Context, ctx *app.RequestContext) {
	var req engine.OpinionRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体不是合法 JSON"})
		return
	}
	if err := h.engine.RequestOpinion(c, req); err != nil {
		h.writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusAccepted, map[string]any{
		"pending": h.engine.PendingOpinionCount(),
	})
}

// ClearSession 清空会话
// POST /api/session/clear
func (h *Handler) ClearSession(c context.Context, ctx *app.RequestContext) {
	h.engine.Clear()
	ctx.JSON(consts.StatusOK, map[string]string{"status": "cleared"})
}

// SaveSession 将当前 bucket 快照写入历史存储
// POST /api/sessions/:id/save
func (h *Handler) SaveSession(c context.Context, ctx *app.RequestContext) {
	if h.history == nil {
		ctx.JSON(consts.StatusServiceUnavailable, map[string]string{"error": "历史存储未配置"})
		return
	}
	sessionID := ctx.Param("id")
	snap := history.Snapshot{
		Buckets: h.engine.Store().Snapshot(),
		SavedAt: time.Now().UTC(),
	}
	if err := h.history.Save(c, sessionID, snap); err != nil {
		h.writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]string{"status": "saved", "sessionId": sessionID})
}

// RestoreSession 从历史存储加载快照并回灌引擎
// POST /api/sessions/:id/restore
func (h *Handler) RestoreSession(c context.Context, ctx *app.RequestContext) {
	if h.history == nil {
		ctx.JSON(consts.StatusServiceUnavailable, map[string]string{"error": "历史存储未配置"})
		return
	}
	sessionID := ctx.Param("id")
	snap, err := h.history.Load(c, sessionID)
	if err != nil {
		h.writeError(c, ctx, err)
		return
	}
	h.engine.Rehydrate(snap.Buckets)
	ctx.JSON(consts.StatusOK, map[string]any{
		"status":  "restored",
		"agents":  h.engine.Store().Agents(),
		"savedAt": snap.SavedAt,
	})
}

// writeError 领域错误到 HTTP 状态码的映射
func (h *Handler) writeError(c context.Context, ctx *app.RequestContext, err error) {
	switch {
	case errors.Is(err, errors.ErrInvalidArg):
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, errors.ErrNotFound):
		ctx.JSON(consts.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, errors.ErrSendInFlight):
		ctx.JSON(consts.StatusConflict, map[string]string{"error": err.Error()})
	default:
		hlog.CtxErrorf(c, "诊断 API 内部错误: %v", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
