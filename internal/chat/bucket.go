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

package chat

import (
	"sort"
	"sync"
	"time"

	"chat-platform/pkg/errors"
)

// BucketStore 按 agent id 维护有序消息时间线（bucket），
// 并在同一把锁下维护 messageID → agentID 的路由索引。
// 不变量：索引中的每个 id 恰好出现在其指向的 bucket 中，且仅出现一次。
type BucketStore struct {
	mu      sync.RWMutex
	buckets map[string][]Message
	index   map[string]string
}

// NewBucketStore 创建空存储
func NewBucketStore() *BucketStore {
	return &BucketStore{
		buckets: make(map[string][]Message),
		index:   make(map[string]string),
	}
}

// Append 追加消息并建立索引；id 已被占用时返回 ErrDuplicateID
func (s *BucketStore) Append(agentID string, msg Message) error {
	if agentID == "" || msg.ID == "" {
		return errors.ErrInvalidArg
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.index[msg.ID]; taken {
		return errors.ErrDuplicateID
	}
	s.appendLocked(agentID, msg)
	return nil
}

// appendLocked 追加并保证 CreatedAt 在 bucket 内单调递增
func (s *BucketStore) appendLocked(agentID string, msg Message) {
	bucket := s.buckets[agentID]
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if n := len(bucket); n > 0 && !msg.CreatedAt.After(bucket[n-1].CreatedAt) {
		msg.CreatedAt = bucket[n-1].CreatedAt.Add(time.Nanosecond)
	}
	s.buckets[agentID] = append(bucket, msg)
	s.index[msg.ID] = agentID
}

// Replace 将 Patch 合并进 id 对应的消息；id 未被索引时按 upsert 语义
// 在 agentID 的 bucket 末尾新建消息（stream-end 可能先于 start 到达，如页面重载后）。
// 返回合并或新建后的消息。
func (s *BucketStore) Replace(agentID, id string, p Patch) (Message, error) {
	if id == "" {
		return Message{}, errors.ErrInvalidArg
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.index[id]; ok {
		bucket := s.buckets[owner]
		for i := range bucket {
			if bucket[i].ID == id {
				bucket[i] = bucket[i].apply(p)
				return bucket[i], nil
			}
		}
	}
	if agentID == "" {
		return Message{}, errors.ErrInvalidArg
	}
	msg := p.build(id, agentID)
	s.appendLocked(agentID, msg)
	return msg, nil
}

// AppendContent 就地追加流式 chunk；id 未被索引时返回 ErrNotFound
func (s *BucketStore) AppendContent(id, chunk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.index[id]
	if !ok {
		return errors.ErrNotFound
	}
	bucket := s.buckets[owner]
	for i := range bucket {
		if bucket[i].ID == id {
			bucket[i].Content += chunk
			return nil
		}
	}
	return errors.ErrNotFound
}

// MoveID 原子重命名：同位置换 id，索引先删后插，绝不出现两份拷贝。
// oldID 未被索引时返回 ErrNotFound；newID 已被占用时返回 ErrDuplicateID。
func (s *BucketStore) MoveID(oldID, newID string) error {
	if oldID == "" || newID == "" || oldID == newID {
		return errors.ErrInvalidArg
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.index[oldID]
	if !ok {
		return errors.ErrNotFound
	}
	if _, taken := s.index[newID]; taken {
		return errors.ErrDuplicateID
	}
	bucket := s.buckets[owner]
	for i := range bucket {
		if bucket[i].ID == oldID {
			msg := bucket[i]
			msg.ID = newID
			bucket[i] = msg
			delete(s.index, oldID)
			s.index[newID] = owner
			return nil
		}
	}
	return errors.ErrNotFound
}

// Owner 返回持有该消息的 bucket（agent id）
func (s *BucketStore) Owner(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.index[id]
	return owner, ok
}

// Lookup 按 id 查消息，返回消息副本与所属 agent id
func (s *BucketStore) Lookup(id string) (Message, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.index[id]
	if !ok {
		return Message{}, "", false
	}
	for _, m := range s.buckets[owner] {
		if m.ID == id {
			return m, owner, true
		}
	}
	return Message{}, "", false
}

// Messages 返回该 agent bucket 的消息副本
func (s *BucketStore) Messages(agentID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.buckets[agentID]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]Message, len(bucket))
	copy(out, bucket)
	return out
}

// Len 返回该 bucket 的消息数
func (s *BucketStore) Len(agentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets[agentID])
}

// Agents 返回当前持有消息的 agent id 列表（字典序）
func (s *BucketStore) Agents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.buckets))
	for id := range s.buckets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Snapshot 返回全部 bucket 的深拷贝（供持久化与诊断只读使用）
func (s *BucketStore) Snapshot() map[string][]Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]Message, len(s.buckets))
	for agentID, bucket := range s.buckets {
		cp := make([]Message, len(bucket))
		copy(cp, bucket)
		out[agentID] = cp
	}
	return out
}

// ResetAll 整体替换 bucket 与索引（会话清空 / 快照回灌）；索引由传入数据重建
func (s *BucketStore) ResetAll(buckets map[string][]Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string][]Message, len(buckets))
	s.index = make(map[string]string)
	for agentID, bucket := range buckets {
		cp := make([]Message, 0, len(bucket))
		for _, m := range bucket {
			if m.ID == "" {
				continue
			}
			if _, taken := s.index[m.ID]; taken {
				continue
			}
			cp = append(cp, m)
			s.index[m.ID] = agentID
		}
		s.buckets[agentID] = cp
	}
}
