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

package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-platform/pkg/bus"
	"chat-platform/pkg/errors"
	"chat-platform/pkg/log"
	"chat-platform/pkg/metrics"
	"chat-platform/pkg/utils"
)

// WSConfig WebSocket 传输配置
type WSConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	ReconnectMin     time.Duration // 重连起始间隔
	ReconnectMax     time.Duration // 重连间隔上限（指数退避封顶）
	SendQueueSize    int
}

func (c WSConfig) withDefaults() WSConfig {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = 500 * time.Millisecond
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 10 * time.Second
	}
	c.SendQueueSize = utils.DefaultInt(c.SendQueueSize, 64)
	return c
}

// WSTransport WebSocket 客户端传输：入站封包解码为标记变体事件并发布到总线，
// 出站帧经队列由单一 writer 写出（断线期间排队，连接恢复后继续发送）
type WSTransport struct {
	cfg    WSConfig
	bus    *bus.Bus
	logger *log.Logger

	sendQ chan Frame
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	mu    sync.Mutex
	ready chan struct{} // closed 即就绪；断线时换新 chan
}

// NewWS 创建并启动 WebSocket 传输（后台连接循环）
func NewWS(cfg WSConfig, b *bus.Bus, logger *log.Logger) *WSTransport {
	t := &WSTransport{
		cfg:    cfg.withDefaults(),
		bus:    b,
		logger: logger,
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
	}
	t.sendQ = make(chan Frame, t.cfg.SendQueueSize)
	t.wg.Add(1)
	go t.run()
	return t
}

// Send 实现 Transport；队列满或已关闭时返回错误
func (t *WSTransport) Send(frame Frame) error {
	select {
	case <-t.done:
		return errors.ErrTransportClosed
	default:
	}
	select {
	case t.sendQ <- frame:
		return nil
	default:
		return errors.Wrap(errors.ErrTransportClosed, "出站队列已满")
	}
}

// AwaitReady 实现 Transport
func (t *WSTransport) AwaitReady(ctx context.Context, timeout time.Duration) error {
	t.mu.Lock()
	ready := t.ready
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.Wrapf(errors.ErrTransportClosed, "等待就绪超过 %s", timeout)
	case <-t.done:
		return errors.ErrTransportClosed
	}
}

// Close 实现 Transport
func (t *WSTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	t.wg.Wait()
	return nil
}

func (t *WSTransport) markReady() {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.ready:
	default:
		close(t.ready)
	}
}

func (t *WSTransport) markNotReady() {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.ready:
		t.ready = make(chan struct{})
	default:
	}
}

// run 连接循环：拨号、读入站、断线退避重连
func (t *WSTransport) run() {
	defer t.wg.Done()
	backoff := t.cfg.ReconnectMin
	first := true

	for {
		select {
		case <-t.done:
			return
		default:
		}

		dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
		conn, _, err := dialer.Dial(t.cfg.URL, nil)
		if err != nil {
			t.logger.Warn("WebSocket 拨号失败", "url", t.cfg.URL, "error", err)
			select {
			case <-t.done:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > t.cfg.ReconnectMax {
				backoff = t.cfg.ReconnectMax
			}
			continue
		}

		if !first {
			metrics.TransportReconnectTotal.Inc()
		}
		first = false
		backoff = t.cfg.ReconnectMin
		t.logger.Info("WebSocket 已连接", "url", t.cfg.URL)
		t.markReady()

		t.serveConn(conn)

		t.markNotReady()
		_ = conn.Close()
		select {
		case <-t.done:
			return
		default:
			t.logger.Warn("WebSocket 连接断开，准备重连")
		}
	}
}

// serveConn 在单个连接上跑 writer + reader，任一侧退出即结束
func (t *WSTransport) serveConn(conn *websocket.Conn) {
	connDone := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for {
			select {
			case frame := <-t.sendQ:
				if err := conn.WriteJSON(frame); err != nil {
					t.logger.Warn("写出站帧失败", "type", frame.Type, "error", err)
					// 连接已坏，帧交由上层错误路径处理；不回灌队列避免重复发送
					return
				}
			case <-connDone:
				return
			case <-t.done:
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Warn("读入站封包失败", "error", err)
			}
			break
		}
		ev, err := decodeEvent(data)
		if err != nil {
			t.logger.Warn("丢弃无法解码的封包", "error", err)
			continue
		}
		t.bus.Emit(ev.EventName(), ev)
	}
	close(connDone)
	<-writerDone
}
