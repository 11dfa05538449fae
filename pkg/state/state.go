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

// Package state 提供点分路径寻址的会话状态存储，
// 如 Set("chat.activeAgent", "anima") / Get("rag.enabled")。
package state

import (
	"strings"
	"sync"

	"github.com/spf13/cast"
)

// Store 点分路径 KV 存储；读写并发安全
type Store struct {
	mu   sync.RWMutex
	data map[string]any
}

// New 创建空的状态存储
func New() *Store {
	return &Store{data: make(map[string]any)}
}

// Get 按点分路径读取；路径不存在时 ok 为 false
func (s *Store) Get(path string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur := any(s.data)
	for _, seg := range strings.Split(path, ".") {
		m, isMap := cur.(map[string]any)
		if !isMap {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	if m, isMap := cur.(map[string]any); isMap {
		return copyMap(m), true
	}
	return cur, true
}

// Set 按点分路径写入，中间层级自动建为 map；
// 某段已有非 map 值时会被新的 map 覆盖
func (s *Store) Set(path string, value any) {
	if path == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	segs := strings.Split(path, ".")
	m := s.data
	for _, seg := range segs[:len(segs)-1] {
		next, ok := m[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[seg] = next
		}
		m = next
	}
	m[segs[len(segs)-1]] = value
}

// Delete 删除路径上的值；路径不存在时为 no-op
func (s *Store) Delete(path string) {
	if path == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	segs := strings.Split(path, ".")
	m := s.data
	for _, seg := range segs[:len(segs)-1] {
		next, ok := m[seg].(map[string]any)
		if !ok {
			return
		}
		m = next
	}
	delete(m, segs[len(segs)-1])
}

// GetString 读取字符串，缺失或类型不符时返回 def
func (s *Store) GetString(path string, def string) string {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	str, err := cast.ToStringE(v)
	if err != nil || str == "" {
		return def
	}
	return str
}

// GetBool 读取布尔，缺失或类型不符时返回 def
func (s *Store) GetBool(path string, def bool) bool {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = copyMap(sub)
			continue
		}
		out[k] = v
	}
	return out
}
