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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-platform/internal/chat"
	"chat-platform/internal/transport"
	"chat-platform/pkg/bus"
	"chat-platform/pkg/errors"
	"chat-platform/pkg/log"
	"chat-platform/pkg/state"
)

// fakeTransport 记录出站帧的测试替身
type fakeTransport struct {
	mu       sync.Mutex
	frames   []transport.Frame
	sendErr  error
	readyErr error
}

func (f *fakeTransport) Send(frame transport.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeTransport) AwaitReady(ctx context.Context, timeout time.Duration) error {
	return f.readyErr
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) framesOfType(frameType string) []transport.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []transport.Frame
	for _, fr := range f.frames {
		if fr.Type == frameType {
			out = append(out, fr)
		}
	}
	return out
}

type testHarness struct {
	engine *Engine
	tp     *fakeTransport
	bus    *bus.Bus
	state  *state.Store

	mu     sync.Mutex
	toasts []Toast
}

func newHarness(t *testing.T, cfg Config) *testHarness {
	t.Helper()
	logger, err := log.NewLogger(&log.Config{Level: "error"})
	require.NoError(t, err)

	h := &testHarness{
		tp:    &fakeTransport{},
		bus:   bus.New(logger.Logger),
		state: state.New(),
	}
	h.bus.On(EventToast, func(p any) {
		if toast, ok := p.(Toast); ok {
			h.mu.Lock()
			h.toasts = append(h.toasts, toast)
			h.mu.Unlock()
		}
	})
	h.engine = New(cfg, logger, h.bus, h.tp, h.state)
	t.Cleanup(h.engine.Close)
	return h
}

func (h *testHarness) toastCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.toasts)
}

func (h *testHarness) lastToast() (Toast, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.toasts) == 0 {
		return Toast{}, false
	}
	return h.toasts[len(h.toasts)-1], true
}

func TestSendMessage_Scenario(t *testing.T) {
	h := newHarness(t, Config{})
	h.state.Set("chat.activeAgent", "anima")

	require.NoError(t, h.engine.SendMessage(context.Background(), "  Hello  "))

	msgs := h.engine.Store().Messages("anima")
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.True(t, h.engine.Loading())

	pending := h.engine.watchdog.Pending()
	require.NotNil(t, pending)
	assert.Equal(t, "anima", pending.AgentID)
	assert.Equal(t, msgs[0].ID, pending.ID)

	frames := h.tp.framesOfType(transport.FrameChatMessage)
	require.Len(t, frames, 1)
	payload := frames[0].Payload.(transport.ChatMessagePayload)
	assert.Equal(t, "Hello", payload.Text)
	assert.Equal(t, "anima", payload.AgentID)
	assert.Equal(t, msgs[0].ID, payload.ClientMessageID)
}

func TestSendMessage_EmptyIsSilentNoOp(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.engine.SendMessage(context.Background(), "   \n\t "))
	assert.Empty(t, h.tp.framesOfType(transport.FrameChatMessage))
	assert.False(t, h.engine.Loading())
}

func TestSendMessage_DefaultAgentFallback(t *testing.T) {
	h := newHarness(t, Config{DefaultAgent: "neo"})
	require.NoError(t, h.engine.SendMessage(context.Background(), "salut"))
	assert.Equal(t, 1, h.engine.Store().Len("neo"))
}

func TestSendMessage_Reentrancy(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.sending.Store(true)
	err := h.engine.SendMessage(context.Background(), "Hello")
	assert.ErrorIs(t, err, errors.ErrSendInFlight)

	// 锁释放后发送恢复正常
	h.engine.sending.Store(false)
	assert.NoError(t, h.engine.SendMessage(context.Background(), "Hello"))
}

func TestSendMessage_TransportFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.tp.sendErr = errors.ErrTransportClosed

	err := h.engine.SendMessage(context.Background(), "Hello")
	require.Error(t, err)
	assert.False(t, h.engine.Loading())
	assert.Nil(t, h.engine.watchdog.Pending())

	toast, ok := h.lastToast()
	require.True(t, ok)
	assert.Equal(t, "error", toast.Kind)
}

func TestSendMessage_NotReadyIsAdvisory(t *testing.T) {
	h := newHarness(t, Config{ReadyTimeout: time.Millisecond})
	h.tp.readyErr = errors.ErrTransportClosed

	require.NoError(t, h.engine.SendMessage(context.Background(), "Hello"))
	assert.Len(t, h.tp.framesOfType(transport.FrameChatMessage), 1)
}

func TestSendMessage_UseRAGFromState(t *testing.T) {
	h := newHarness(t, Config{})
	h.state.Set("rag.enabled", true)

	require.NoError(t, h.engine.SendMessage(context.Background(), "Hello"))
	frames := h.tp.framesOfType(transport.FrameChatMessage)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Payload.(transport.ChatMessagePayload).UseRAG)
}

func TestStream_BonjourScenario(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.setLoading(true)

	h.engine.HandleEvent(transport.StreamStart{AgentID: "anima", ID: "s1"})
	h.engine.HandleEvent(transport.StreamChunk{AgentID: "anima", ID: "s1", Chunk: "Bon"})
	h.engine.HandleEvent(transport.StreamChunk{AgentID: "anima", ID: "s1", Chunk: "jour"})
	h.engine.HandleEvent(transport.StreamEnd{AgentID: "anima", ID: "s1"})

	msgs := h.engine.Store().Messages("anima")
	require.Len(t, msgs, 1)
	assert.Equal(t, "Bonjour", msgs[0].Content)
	assert.False(t, msgs[0].Streaming)
	assert.Equal(t, chat.RoleAssistant, msgs[0].Role)
	assert.False(t, h.engine.Loading())
}

func TestStreamStart_ClearsWatchdog(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.engine.SendMessage(context.Background(), "Hello"))
	require.NotNil(t, h.engine.watchdog.Pending())

	h.engine.HandleEvent(transport.StreamStart{AgentID: "anima", ID: "s1"})
	assert.Nil(t, h.engine.watchdog.Pending())
}

func TestStreamChunk_OrphanDroppedSilently(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.HandleEvent(transport.StreamChunk{AgentID: "anima", ID: "ghost", Chunk: "x"})
	assert.Empty(t, h.engine.Store().Agents())
	assert.Zero(t, h.toastCount())
}

func TestStreamEnd_AuthoritativeContentWins(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.HandleEvent(transport.StreamStart{AgentID: "anima", ID: "s1"})
	h.engine.HandleEvent(transport.StreamChunk{AgentID: "anima", ID: "s1", Chunk: "partial"})
	h.engine.HandleEvent(transport.StreamEnd{AgentID: "anima", ID: "s1", Content: "final text"})

	m, _, ok := h.engine.Store().Lookup("s1")
	require.True(t, ok)
	assert.Equal(t, "final text", m.Content)
}

func TestStreamEnd_Idempotent(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.HandleEvent(transport.StreamStart{AgentID: "anima", ID: "s1"})
	h.engine.HandleEvent(transport.StreamChunk{AgentID: "anima", ID: "s1", Chunk: "Bonjour"})
	h.engine.HandleEvent(transport.StreamEnd{AgentID: "anima", ID: "s1"})

	before, _, _ := h.engine.Store().Lookup("s1")
	h.engine.HandleEvent(transport.StreamEnd{AgentID: "anima", ID: "s1"})
	after, _, _ := h.engine.Store().Lookup("s1")

	assert.Equal(t, before, after)
	assert.Equal(t, 1, h.engine.Store().Len("anima"))
}

func TestStreamEnd_SynthesizesOnMissingStart(t *testing.T) {
	// 页面重载后 start 丢失，end 直接以终态合成
	h := newHarness(t, Config{})
	h.engine.HandleEvent(transport.StreamEnd{AgentID: "anima", ID: "s9", Content: "late final"})

	m, owner, ok := h.engine.Store().Lookup("s9")
	require.True(t, ok)
	assert.Equal(t, "anima", owner)
	assert.Equal(t, "late final", m.Content)
	assert.False(t, m.Streaming)
	assert.Equal(t, chat.RoleAssistant, m.Role)
}

func TestOpinionRouting_SourceBucketWins(t *testing.T) {
	// anima 生成的评审流归入 neo 的 bucket，作者仍是 anima
	h := newHarness(t, Config{})
	meta := &chat.Meta{Opinion: &chat.OpinionMeta{
		SourceAgentID:   "neo",
		ReviewerAgentID: "anima",
		RequestNoteID:   "req-1",
	}}
	h.engine.HandleEvent(transport.StreamStart{AgentID: "anima", ID: "s1", Meta: meta})
	h.engine.HandleEvent(transport.StreamChunk{AgentID: "anima", ID: "s1", Chunk: "avis"})
	h.engine.HandleEvent(transport.StreamEnd{AgentID: "anima", ID: "s1", Meta: meta})

	msgs := h.engine.Store().Messages("neo")
	require.Len(t, msgs, 1)
	assert.Equal(t, "anima", msgs[0].AgentID)
	assert.Equal(t, "avis", msgs[0].Content)
	assert.Empty(t, h.engine.Store().Messages("anima"))
}

func TestRAGStatus_UpdatesState(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.HandleEvent(transport.RAGStatus{Available: true, Enabled: true})
	assert.True(t, h.state.GetBool("rag.enabled", false))

	h.engine.HandleEvent(transport.RAGStatus{Available: false, Enabled: true})
	assert.False(t, h.state.GetBool("rag.enabled", true))
}

func TestWSError_SurfacesMessageAndReleases(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.setLoading(true)
	h.engine.HandleEvent(transport.WSError{Code: "internal", Message: "backend down"})

	assert.False(t, h.engine.Loading())
	toast, ok := h.lastToast()
	require.True(t, ok)
	assert.Equal(t, "backend down", toast.Text)
}

func TestWSError_OpinionConflictFallback(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.HandleEvent(transport.WSError{Code: "opinion_already_exists"})

	toast, ok := h.lastToast()
	require.True(t, ok)
	assert.Equal(t, opinionConflictFallback, toast.Text)
}

func TestRehydrate_ResetsEverything(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.engine.RequestOpinion(context.Background(), OpinionRequest{
		TargetAgentID: "anima", SourceAgentID: "neo", MessageID: "m1",
	}))
	require.Equal(t, 1, h.engine.PendingOpinionCount())

	h.engine.Rehydrate(map[string][]chat.Message{
		"anima": {
			{ID: "b1", Role: chat.RoleAssistant, AgentID: "anima", Content: "hi"},
		},
	})

	assert.Zero(t, h.engine.PendingOpinionCount())
	assert.Equal(t, []string{"anima"}, h.engine.Store().Agents())

	// 回灌后的 assistant 消息重放 stream-end 应为重复确认 no-op
	h.engine.HandleEvent(transport.StreamEnd{AgentID: "anima", ID: "b1", Content: "overwritten"})
	m, _, _ := h.engine.Store().Lookup("b1")
	assert.Equal(t, "hi", m.Content)
}

func TestClear_EmptiesBuckets(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.engine.SendMessage(context.Background(), "Hello"))
	h.engine.Clear()
	assert.Empty(t, h.engine.Store().Agents())
	// 清空后旧 id 的 chunk 成为孤儿，静默丢弃
	h.engine.HandleEvent(transport.StreamChunk{ID: "ghost", Chunk: "x"})
	assert.Empty(t, h.engine.Store().Agents())
}
