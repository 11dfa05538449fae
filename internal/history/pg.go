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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-platform/pkg/errors"
)

// PgStore Postgres 历史存储实现
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore 创建基于 PostgreSQL 的历史存储
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "解析 Postgres DSN 失败")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "创建 Postgres 连接池失败")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "连接 Postgres 失败")
	}
	s := &PgStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
		   session_id TEXT PRIMARY KEY,
		   snapshot   JSONB NOT NULL,
		   saved_at   TIMESTAMPTZ NOT NULL
		 )`)
	if err != nil {
		return errors.Wrap(err, "初始化 chat_sessions 表失败")
	}
	return nil
}

func (s *PgStore) Save(ctx context.Context, sessionID string, snap Snapshot) error {
	if sessionID == "" {
		return errors.Wrap(errors.ErrInvalidArg, "session id 为空")
	}
	data, err := json.Marshal(snap.Buckets)
	if err != nil {
		return errors.Wrap(err, "序列化会话快照失败")
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO chat_sessions (session_id, snapshot, saved_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE SET snapshot = $2, saved_at = $3`,
		sessionID, data, savedAt)
	if err != nil {
		return errors.Wrap(err, "写入会话快照失败")
	}
	return nil
}

func (s *PgStore) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	var data []byte
	var savedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot, saved_at FROM chat_sessions WHERE session_id = $1`,
		sessionID).Scan(&data, &savedAt)
	if err == pgx.ErrNoRows {
		return Snapshot{}, errors.Wrapf(errors.ErrNotFound, "会话 %s 无历史快照", sessionID)
	}
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "读取会话快照失败")
	}
	snap := Snapshot{SavedAt: savedAt}
	if err := json.Unmarshal(data, &snap.Buckets); err != nil {
		return Snapshot{}, errors.Wrap(err, "反序列化会话快照失败")
	}
	return snap, nil
}

func (s *PgStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM chat_sessions WHERE session_id = $1`, sessionID)
	return err
}

func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}
