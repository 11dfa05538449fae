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

// Package bus 提供显式构造、依赖注入的同步事件总线：
// 同一事件名的 handler 按订阅顺序同步执行，不做跨事件名的顺序保证。
package bus

import (
	"log/slog"
	"sync"
)

// Handler 事件处理函数；payload 为事件名约定的具体类型
type Handler func(payload any)

// Bus 同步发布/订阅总线
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

// New 创建事件总线；logger 可为 nil
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// On 订阅事件；同一事件名按订阅顺序派发
func (b *Bus) On(name string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Emit 同步派发事件；handler panic 被恢复并记录，不中断后续 handler
func (b *Bus) Emit(name string, payload any) {
	b.mu.RLock()
	hs := make([]Handler, len(b.handlers[name]))
	copy(hs, b.handlers[name])
	b.mu.RUnlock()

	for _, h := range hs {
		b.dispatch(name, h, payload)
	}
}

func (b *Bus) dispatch(name string, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("事件 handler panic", "event", name, "panic", r)
		}
	}()
	h(payload)
}
