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

package history

import (
	"context"
	"encoding/json"
	"sync"

	"chat-platform/pkg/errors"
)

// MemoryStore 内存历史存储实现；快照经 JSON 往返存取，读写互不串改
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryStore 创建新的内存历史存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (s *MemoryStore) Save(ctx context.Context, sessionID string, snap Snapshot) error {
	if sessionID == "" {
		return errors.Wrap(errors.ErrInvalidArg, "session id 为空")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "序列化会话快照失败")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[sessionID] = data
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	s.mu.RLock()
	data, ok := s.items[sessionID]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, errors.Wrapf(errors.ErrNotFound, "会话 %s 无历史快照", sessionID)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "反序列化会话快照失败")
	}
	return snap, nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, sessionID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
