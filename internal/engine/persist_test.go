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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-platform/internal/chat"
	"chat-platform/internal/transport"
)

func TestMessagePersisted_SwapsID(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.engine.SendMessage(context.Background(), "Hello"))
	clientID := h.engine.Store().Messages("anima")[0].ID

	h.engine.HandleEvent(transport.MessagePersisted{
		ClientMessageID: clientID,
		BackendID:       "backend-1",
		Role:            chat.RoleUser,
		AgentID:         "anima",
	})

	msgs := h.engine.Store().Messages("anima")
	require.Len(t, msgs, 1)
	assert.Equal(t, "backend-1", msgs[0].ID)
	assert.Equal(t, "Hello", msgs[0].Content)

	_, _, ok := h.engine.Store().Lookup(clientID)
	assert.False(t, ok)
}

func TestMessagePersisted_UnknownClientIDDroppedSilently(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.HandleEvent(transport.MessagePersisted{
		ClientMessageID: "local-ghost",
		BackendID:       "backend-1",
	})
	assert.Empty(t, h.engine.Store().Agents())
	assert.Zero(t, h.toastCount())
}

func TestMessagePersisted_Idempotent(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.engine.SendMessage(context.Background(), "Hello"))
	clientID := h.engine.Store().Messages("anima")[0].ID

	ev := transport.MessagePersisted{
		ClientMessageID: clientID,
		BackendID:       "backend-1",
		Role:            chat.RoleUser,
	}
	h.engine.HandleEvent(ev)
	h.engine.HandleEvent(ev) // 重复投递：client id 已不在索引，no-op

	msgs := h.engine.Store().Messages("anima")
	require.Len(t, msgs, 1)
	assert.Equal(t, "backend-1", msgs[0].ID)
}

func TestMessagePersisted_RewritesOpinionRequestID(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.engine.RequestOpinion(context.Background(), validOpinion()))
	marker := h.engine.Store().Messages("neo")[0]
	oldRequestID := marker.Meta.OpinionRequest.RequestID

	// 标记消息持久化：请求 id 随 id 换名一并改写
	h.engine.HandleEvent(transport.MessagePersisted{
		ClientMessageID: marker.ID,
		BackendID:       "backend-req",
		Role:            chat.RoleUser,
		AgentID:         "neo",
	})

	swapped := h.engine.Store().Messages("neo")[0]
	assert.Equal(t, "backend-req", swapped.ID)
	assert.Equal(t, "backend-req", swapped.Meta.OpinionRequest.RequestID)
	assert.Equal(t, "backend-req", h.engine.LastOpinion().RequestID)
	assert.Equal(t, 1, h.engine.PendingOpinionCount())

	// 后续流事件引用持久化后的请求 id，挂起仍能解除
	meta := &chat.Meta{Opinion: &chat.OpinionMeta{
		SourceAgentID: "neo", ReviewerAgentID: "anima", RequestNoteID: "backend-req",
	}}
	h.engine.HandleEvent(transport.StreamStart{AgentID: "anima", ID: "resp-1", Meta: meta})
	h.engine.HandleEvent(transport.StreamEnd{AgentID: "anima", ID: "resp-1", Content: "avis", Meta: meta})
	assert.Zero(t, h.engine.PendingOpinionCount())

	// 旧请求 id 已失效
	h.engine.resolveOpinion(oldRequestID)
	assert.Zero(t, h.engine.PendingOpinionCount())
}

func TestMessagePersisted_MigratesPersistedSet(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.HandleEvent(transport.StreamStart{AgentID: "anima", ID: "s1"})
	h.engine.HandleEvent(transport.StreamChunk{AgentID: "anima", ID: "s1", Chunk: "Bonjour"})
	h.engine.HandleEvent(transport.StreamEnd{AgentID: "anima", ID: "s1"})

	h.engine.HandleEvent(transport.MessagePersisted{
		ClientMessageID: "s1",
		BackendID:       "backend-s1",
		Role:            chat.RoleAssistant,
		AgentID:         "anima",
	})

	// 换名后的 id 上重放 stream-end 仍是重复确认
	h.engine.HandleEvent(transport.StreamEnd{AgentID: "anima", ID: "backend-s1", Content: "overwritten"})
	m, _, ok := h.engine.Store().Lookup("backend-s1")
	require.True(t, ok)
	assert.Equal(t, "Bonjour", m.Content)
}
