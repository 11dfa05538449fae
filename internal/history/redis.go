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
	"time"

	"github.com/redis/go-redis/v9"

	"chat-platform/pkg/config"
	"chat-platform/pkg/errors"
)

// RedisStore Redis 历史存储实现；快照整体 JSON 存一个 key，按配置带 TTL
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore 创建基于 Redis 的历史存储
func NewRedisStore(ctx context.Context, cfg config.HistoryConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPass,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "连接 Redis 失败")
	}
	return &RedisStore{client: client, ttl: config.ParseDuration(cfg.TTL, 0)}, nil
}

func sessionKey(sessionID string) string {
	return "chat:history:" + sessionID
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, snap Snapshot) error {
	if sessionID == "" {
		return errors.Wrap(errors.ErrInvalidArg, "session id 为空")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "序列化会话快照失败")
	}
	return s.client.Set(ctx, sessionKey(sessionID), data, s.ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return Snapshot{}, errors.Wrapf(errors.ErrNotFound, "会话 %s 无历史快照", sessionID)
	}
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "读取会话快照失败")
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "反序列化会话快照失败")
	}
	return snap, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sessionKey(sessionID)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
