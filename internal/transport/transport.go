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

// Package transport 定义会话引擎与后端之间的传输抽象与线上事件类型，
// 并提供 WebSocket 客户端实现。
package transport

import (
	"context"
	"time"
)

// Transport 出站帧发送 + 就绪探测；入站事件由实现解码后发布到事件总线
type Transport interface {
	// Send 发送出站帧；连接未就绪时由实现排队（出站队列是正确性兜底）
	Send(frame Frame) error
	// AwaitReady 等待连接就绪，最多 timeout；超时返回错误。
	// 调用方可将失败视为建议性信号而非致命错误。
	AwaitReady(ctx context.Context, timeout time.Duration) error
	// Close 关闭传输层
	Close() error
}
