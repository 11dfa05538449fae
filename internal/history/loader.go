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
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"chat-platform/internal/chat"
	"chat-platform/pkg/errors"
)

// Loader 从后端 HTTP API 拉取会话历史，用于引擎启动时的回灌。
// 本地 Store 是缓存，后端才是权威来源。
type Loader struct {
	client *resty.Client
}

// NewLoader 创建历史加载器
func NewLoader(baseURL string) *Loader {
	return &Loader{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(15 * time.Second).
			SetHeader("Content-Type", "application/json"),
	}
}

// Fetch 拉取指定 session 的 bucket 快照；404 映射为 ErrNotFound
func (l *Loader) Fetch(ctx context.Context, sessionID string) (map[string][]chat.Message, error) {
	if sessionID == "" {
		return nil, errors.Wrap(errors.ErrInvalidArg, "session id 为空")
	}
	var out Snapshot
	resp, err := l.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/sessions/" + sessionID + "/history")
	if err != nil {
		return nil, errors.Wrap(err, "拉取会话历史失败")
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return out.Buckets, nil
	case http.StatusNotFound:
		return nil, errors.Wrapf(errors.ErrNotFound, "会话 %s 不存在", sessionID)
	default:
		return nil, errors.Wrapf(errors.ErrInvalidArg,
			"拉取会话历史: 后端返回 %d", resp.StatusCode())
	}
}
