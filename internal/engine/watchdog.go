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
	"sync"
	"time"
)

// PendingSend 在途发送记录
type PendingSend struct {
	ID      string
	AgentID string
	Text    string
}

// Watchdog 单计时器活性看门狗：每次发送重新武装，被首个 stream-start/
// stream-end、显式失败或自身到期清除。到期只做 UX 提示，不取消底层请求。
// 代际计数保证已清除的计时器绝不触发回调。
type Watchdog struct {
	timeout  time.Duration
	onExpire func(PendingSend)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending *PendingSend
}

// NewWatchdog 创建看门狗；onExpire 在到期时被调用（计时器 goroutine）
func NewWatchdog(timeout time.Duration, onExpire func(PendingSend)) *Watchdog {
	return &Watchdog{timeout: timeout, onExpire: onExpire}
}

// Arm 武装计时器；已武装时先清除旧的（每个发送周期至多武装一次）
func (w *Watchdog) Arm(p PendingSend) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
	w.gen++
	gen := w.gen
	w.pending = &p
	w.timer = time.AfterFunc(w.timeout, func() { w.expire(gen) })
}

// Stop 清除计时器；返回是否确有在途发送被清除
func (w *Watchdog) Stop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopLocked()
}

// Pending 当前在途发送记录；无则 nil
func (w *Watchdog) Pending() *PendingSend {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return nil
	}
	p := *w.pending
	return &p
}

func (w *Watchdog) stopLocked() bool {
	if w.timer == nil {
		return false
	}
	w.timer.Stop()
	w.timer = nil
	w.pending = nil
	w.gen++
	return true
}

func (w *Watchdog) expire(gen uint64) {
	w.mu.Lock()
	if gen != w.gen || w.pending == nil {
		w.mu.Unlock()
		return
	}
	p := *w.pending
	w.timer = nil
	w.pending = nil
	w.gen++
	w.mu.Unlock()

	if w.onExpire != nil {
		w.onExpire(p)
	}
}
