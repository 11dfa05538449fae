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

package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-platform/internal/diag"
	"chat-platform/internal/engine"
	"chat-platform/internal/history"
	"chat-platform/internal/transport"
	"chat-platform/pkg/bus"
	"chat-platform/pkg/config"
	"chat-platform/pkg/log"
	"chat-platform/pkg/state"
	"chat-platform/pkg/tracing"
)

func main() {
	cfg, err := config.LoadEngineConfig()
	if err != nil {
		stdlog.Fatalf("加载配置失败: %v", err)
	}

	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		stdlog.Fatalf("初始化日志失败: %v", err)
	}

	if cfg.Monitoring.Tracing.Enable {
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    cfg.Monitoring.Tracing.ServiceName,
			ExportEndpoint: cfg.Monitoring.Tracing.ExportEndpoint,
			Insecure:       cfg.Monitoring.Tracing.Insecure,
		})
		if err != nil {
			logger.Warn("初始化链路追踪失败", "error", err)
		} else {
			defer func() { _ = tp.Shutdown(context.Background()) }()
		}
	}

	b := bus.New(logger.Logger)
	st := state.New()

	tp := transport.NewWS(transport.WSConfig{
		URL:              cfg.Transport.URL,
		HandshakeTimeout: config.ParseDuration(cfg.Transport.HandshakeTimeout, 5*time.Second),
		ReconnectMin:     config.ParseDuration(cfg.Transport.ReconnectMin, 500*time.Millisecond),
		ReconnectMax:     config.ParseDuration(cfg.Transport.ReconnectMax, 10*time.Second),
		SendQueueSize:    cfg.Transport.SendQueueSize,
	}, b, logger)

	eng := engine.New(engine.Config{
		DefaultAgent:    cfg.Chat.DefaultAgent,
		ReadyTimeout:    config.ParseDuration(cfg.Chat.ReadyTimeout, 900*time.Millisecond),
		WatchdogTimeout: config.ParseDuration(cfg.Chat.WatchdogTimeout, 25*time.Second),
		OpinionRPS:      cfg.Chat.OpinionRPS,
		OpinionBurst:    cfg.Chat.OpinionBurst,
	}, logger, b, tp, st)

	ctx := context.Background()
	hist, err := history.New(ctx, cfg.History)
	if err != nil {
		stdlog.Fatalf("初始化历史存储失败: %v", err)
	}

	// 后端可达时以其为权威来源回灌会话
	if cfg.History.BackendURL != "" {
		sessionID := os.Getenv("CHAT_SESSION_ID")
		if sessionID == "" {
			sessionID = "default"
		}
		loader := history.NewLoader(cfg.History.BackendURL)
		if buckets, err := loader.Fetch(ctx, sessionID); err != nil {
			logger.Warn("后端会话回灌失败，保持空会话", "session_id", sessionID, "error", err)
		} else {
			eng.Rehydrate(buckets)
			logger.Info("会话已回灌", "session_id", sessionID, "agents", eng.Store().Agents())
		}
	}

	var srv *diag.Server
	if cfg.Diag.Enable {
		srv = diag.NewServer(cfg, logger, diag.NewHandler(eng, st, hist))
		go func() {
			if err := srv.Run(); err != nil {
				logger.Error("诊断 API 服务异常退出", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("收到退出信号，开始关闭")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("诊断 API 关闭失败", "error", err)
		}
	}
	eng.Close()
	if err := tp.Close(); err != nil {
		logger.Warn("传输层关闭失败", "error", err)
	}
	if err := hist.Close(); err != nil {
		logger.Warn("历史存储关闭失败", "error", err)
	}
	logger.Info("引擎已关闭")
}
