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

// Package engine 实现消息 bucket 路由与流式对账：发送流水线、流对账器、
// 评审路由器、持久化对账器与 Watchdog。所有状态变更在事件 handler 内
// 同步完成，互斥锁只用于隔离事件到达的交错，不存在并行变更。
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"chat-platform/internal/chat"
	"chat-platform/internal/transport"
	"chat-platform/pkg/bus"
	"chat-platform/pkg/log"
	"chat-platform/pkg/state"
	"chat-platform/pkg/utils"
)

// UI 侧事件名（供渲染层订阅）
const (
	EventLoading          = "chat-loading"
	EventToast            = "toast"
	EventOpinionRequested = "opinion-requested"
)

// Toast 通知请求
type Toast struct {
	Kind string `json:"kind"` // info | warning | error
	Text string `json:"text"`
}

// LoadingChanged loading 标志变化
type LoadingChanged struct {
	Loading bool `json:"loading"`
}

// OpinionRequested 评审请求已发出（观测/测试钩子）
type OpinionRequested struct {
	RequestID string `json:"requestId"`
}

// OpinionSnapshot 最近一次评审请求的诊断快照
type OpinionSnapshot struct {
	Bucket        string    `json:"bucket"`
	RequestID     string    `json:"requestId"`
	MessageID     string    `json:"messageId"`
	TargetAgentID string    `json:"targetAgentId"`
	At            time.Time `json:"at"`
}

// Config 引擎配置
type Config struct {
	DefaultAgent    string        // 无激活 agent 时的回退
	ReadyTimeout    time.Duration // 发送前等待传输就绪的上限
	WatchdogTimeout time.Duration // 发送后无响应判定超时
	OpinionRPS      float64       // 评审请求限速
	OpinionBurst    int
}

func (c Config) withDefaults() Config {
	c.DefaultAgent = utils.CoalesceString(c.DefaultAgent, "anima")
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 900 * time.Millisecond
	}
	if c.WatchdogTimeout <= 0 {
		c.WatchdogTimeout = 25 * time.Second
	}
	c.OpinionRPS = utils.DefaultFloat(c.OpinionRPS, 1)
	c.OpinionBurst = utils.DefaultInt(c.OpinionBurst, 3)
	return c
}

// Engine 会话引擎；持有 bucket 存储、路由索引与在途状态
type Engine struct {
	cfg    Config
	logger *log.Logger
	bus    *bus.Bus
	tp     transport.Transport
	state  *state.Store
	store  *chat.BucketStore

	sending atomic.Bool // send lock：同一时刻至多一次发送的同步段

	mu              sync.Mutex
	loading         bool
	pendingOpinions map[string]string    // 被评审消息 id → 请求 id
	opinionSources  map[string]string    // 请求 id → 被评审消息 id
	persisted       map[string]struct{}  // 已应用终态确认的 assistant 消息 id
	streamStarted   map[string]time.Time // 流开始时刻（耗时指标用）
	lastOpinion     *OpinionSnapshot

	watchdog       *Watchdog
	opinionLimiter *rate.Limiter
}

// New 创建引擎并在总线上订阅入站事件
func New(cfg Config, logger *log.Logger, b *bus.Bus, tp transport.Transport, st *state.Store) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:             cfg,
		logger:          logger,
		bus:             b,
		tp:              tp,
		state:           st,
		store:           chat.NewBucketStore(),
		pendingOpinions: make(map[string]string),
		opinionSources:  make(map[string]string),
		persisted:       make(map[string]struct{}),
		streamStarted:   make(map[string]time.Time),
		opinionLimiter:  rate.NewLimiter(rate.Limit(cfg.OpinionRPS), cfg.OpinionBurst),
	}
	e.watchdog = NewWatchdog(cfg.WatchdogTimeout, e.onWatchdogExpire)
	e.subscribe()
	return e
}

// subscribe 注册入站事件 handler；同名事件按订阅顺序同步派发
func (e *Engine) subscribe() {
	for _, name := range []string{
		transport.EventStreamStart,
		transport.EventStreamChunk,
		transport.EventStreamEnd,
		transport.EventMessagePersisted,
		transport.EventWSError,
		transport.EventRAGStatus,
	} {
		name := name
		e.bus.On(name, func(payload any) {
			ev, ok := payload.(transport.Event)
			if !ok {
				e.logger.Warn("事件负载类型不符", "event", name)
				return
			}
			e.HandleEvent(ev)
		})
	}
}

// HandleEvent 穷尽匹配入站事件变体
func (e *Engine) HandleEvent(ev transport.Event) {
	switch v := ev.(type) {
	case transport.StreamStart:
		e.handleStreamStart(v)
	case transport.StreamChunk:
		e.handleStreamChunk(v)
	case transport.StreamEnd:
		e.handleStreamEnd(v)
	case transport.MessagePersisted:
		e.handleMessagePersisted(v)
	case transport.WSError:
		e.handleWSError(v)
	case transport.RAGStatus:
		e.handleRAGStatus(v)
	default:
		e.logger.Warn("未知事件变体", "event", ev.EventName())
	}
}

// Store 暴露 bucket 存储（诊断 API 只读使用，快照为拷贝）
func (e *Engine) Store() *chat.BucketStore {
	return e.store
}

// Loading 当前 loading 标志
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// LastOpinion 最近一次评审请求快照；无则返回 nil
func (e *Engine) LastOpinion() *OpinionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastOpinion == nil {
		return nil
	}
	snap := *e.lastOpinion
	return &snap
}

// ActiveAgent 当前激活 agent（回退到配置默认值）
func (e *Engine) ActiveAgent() string {
	return e.state.GetString("chat.activeAgent", e.cfg.DefaultAgent)
}

// Rehydrate 整体回灌会话：重置 bucket/索引，并清空在途状态。
// 回灌的消息都已持久化，assistant 消息进入已确认集合，
// 之后重放的 stream-end/persisted 确认按重复确认 no-op 处理。
func (e *Engine) Rehydrate(buckets map[string][]chat.Message) {
	e.store.ResetAll(buckets)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingOpinions = make(map[string]string)
	e.opinionSources = make(map[string]string)
	e.persisted = make(map[string]struct{})
	e.streamStarted = make(map[string]time.Time)
	for _, bucket := range buckets {
		for _, m := range bucket {
			if m.Role == chat.RoleAssistant && !m.Streaming {
				e.persisted[m.ID] = struct{}{}
			}
		}
	}
}

// Clear 清空会话（bucket 与索引一并重置）
func (e *Engine) Clear() {
	e.Rehydrate(nil)
}

// Close 停止 Watchdog 计时器
func (e *Engine) Close() {
	e.watchdog.Stop()
}

// setLoading 变更 loading 标志并通知 UI；仅在值变化时发事件
func (e *Engine) setLoading(v bool) {
	e.mu.Lock()
	changed := e.loading != v
	e.loading = v
	e.mu.Unlock()
	if changed {
		e.state.Set("chat.loading", v)
		e.bus.Emit(EventLoading, LoadingChanged{Loading: v})
	}
}

// toast 发送 UI 通知请求
func (e *Engine) toast(kind, text string) {
	e.bus.Emit(EventToast, Toast{Kind: kind, Text: text})
}
