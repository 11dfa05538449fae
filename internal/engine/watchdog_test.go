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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-platform/internal/transport"
)

func TestWatchdog_Expire(t *testing.T) {
	var fired atomic.Int32
	var got PendingSend
	w := NewWatchdog(10*time.Millisecond, func(p PendingSend) {
		got = p
		fired.Add(1)
	})
	w.Arm(PendingSend{ID: "m1", AgentID: "anima", Text: "Hello"})

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "m1", got.ID)
	assert.Nil(t, w.Pending())
}

func TestWatchdog_StopPreventsExpire(t *testing.T) {
	var fired atomic.Int32
	w := NewWatchdog(10*time.Millisecond, func(PendingSend) { fired.Add(1) })
	w.Arm(PendingSend{ID: "m1"})
	assert.True(t, w.Stop())

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, fired.Load())
	assert.False(t, w.Stop()) // 已清除，再次 Stop 返回 false
}

func TestWatchdog_RearmInvalidatesOldTimer(t *testing.T) {
	var fired atomic.Int32
	var last atomic.Value
	w := NewWatchdog(15*time.Millisecond, func(p PendingSend) {
		last.Store(p.ID)
		fired.Add(1)
	})
	w.Arm(PendingSend{ID: "m1"})
	time.Sleep(5 * time.Millisecond)
	w.Arm(PendingSend{ID: "m2"}) // 重新武装，旧计时器的代际失效

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, "m2", last.Load())
}

func TestWatchdog_ExpireOnlyOnce(t *testing.T) {
	var fired atomic.Int32
	w := NewWatchdog(5*time.Millisecond, func(PendingSend) { fired.Add(1) })
	w.Arm(PendingSend{ID: "m1"})

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, w.Stop())
	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestWatchdogExpiry_ReleasesLoadingAndToasts(t *testing.T) {
	h := newHarness(t, Config{WatchdogTimeout: 15 * time.Millisecond})
	require.NoError(t, h.engine.SendMessage(context.Background(), "Hello"))
	require.True(t, h.engine.Loading())

	assert.Eventually(t, func() bool { return !h.engine.Loading() }, time.Second, time.Millisecond)
	toast, ok := h.lastToast()
	require.True(t, ok)
	assert.Equal(t, "warning", toast.Kind)

	// 迟到的流事件仍按正常路径处理
	h.engine.HandleEvent(transport.StreamStart{AgentID: "anima", ID: "late-1"})
	h.engine.HandleEvent(transport.StreamEnd{AgentID: "anima", ID: "late-1", Content: "quand même"})
	m, _, ok := h.engine.Store().Lookup("late-1")
	require.True(t, ok)
	assert.Equal(t, "quand même", m.Content)
}

func TestWatchdog_ClearedByStreamEndNeverFires(t *testing.T) {
	h := newHarness(t, Config{WatchdogTimeout: 20 * time.Millisecond})
	require.NoError(t, h.engine.SendMessage(context.Background(), "Hello"))
	h.engine.HandleEvent(transport.StreamStart{AgentID: "anima", ID: "s1"})
	h.engine.HandleEvent(transport.StreamEnd{AgentID: "anima", ID: "s1", Content: "ok"})
	before := h.toastCount()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, before, h.toastCount())
}
