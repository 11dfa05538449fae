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

// Package history 会话历史的持久化：按 session 保存/加载 bucket 快照，
// 供引擎重启或页面重载后回灌。
package history

import (
	"context"
	"time"

	"chat-platform/internal/chat"
	"chat-platform/pkg/config"
	"chat-platform/pkg/errors"
)

// Snapshot 一次会话的完整 bucket 快照
type Snapshot struct {
	Buckets map[string][]chat.Message `json:"buckets"`
	SavedAt time.Time                 `json:"savedAt"`
}

// Store 会话历史存储接口
type Store interface {
	// Save 覆盖写入指定 session 的快照
	Save(ctx context.Context, sessionID string, snap Snapshot) error
	// Load 读取快照；不存在时返回 ErrNotFound
	Load(ctx context.Context, sessionID string) (Snapshot, error)
	// Delete 删除快照；不存在时 no-op
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

// New 按配置创建历史存储
func New(ctx context.Context, cfg config.HistoryConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg)
	case "postgres":
		return NewPgStore(ctx, cfg.DSN)
	default:
		return nil, errors.Wrapf(errors.ErrInvalidArg, "未知的历史存储类型: %s", cfg.Type)
	}
}
