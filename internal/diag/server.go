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

package diag

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"chat-platform/pkg/config"
	"chat-platform/pkg/log"
	"chat-platform/pkg/utils"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// Server 诊断 HTTP 服务
type Server struct {
	cfg          *config.Config
	logger       *log.Logger
	handler      *Handler
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// NewServer 创建诊断服务
func NewServer(cfg *config.Config, logger *log.Logger, handler *Handler) *Server {
	return &Server{cfg: cfg, logger: logger, handler: handler}
}

// Run 启动 HTTP 服务并阻塞直至关闭
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Diag.Host, s.cfg.Diag.Port)
	s.logger.Info("诊断 API 服务启动", "addr", addr)

	// Hertz slog 扩展，与主日志配置对齐
	levelVar := &slog.LevelVar{}
	switch s.cfg.Log.Level {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(os.Stdout),
		hertzslog.WithLevel(levelVar),
	))

	opts := []hertzconfig.Option{server.WithHostPorts(addr)}

	// 可选：启用链路追踪（OpenTelemetry）
	tracing := s.cfg.Monitoring.Tracing
	if tracing.Enable {
		serviceName := utils.CoalesceString(tracing.ServiceName, "chat-engine")
		endpoint := utils.CoalesceString(tracing.ExportEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
		if endpoint != "" {
			popts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(endpoint),
			}
			if tracing.Insecure {
				popts = append(popts, provider.WithInsecure())
			}
			s.otelProvider = provider.NewOpenTelemetryProvider(popts...)
			tracerOpt, cfg := hertztracing.NewServerTracer()
			s.hertz = server.Default(append(opts, tracerOpt)...)
			s.hertz.Use(hertztracing.ServerMiddleware(cfg))
			s.logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", endpoint)
		}
	}
	if s.hertz == nil {
		s.hertz = server.Default(opts...)
	}

	s.registerRoutes(s.hertz)
	return s.hertz.Run()
}

// registerRoutes 注册诊断路由
func (s *Server) registerRoutes(h *server.Hertz) {
	h.GET("/healthz", s.handler.Healthz)
	if s.cfg.Monitoring.Prometheus.Enable {
		h.GET("/metrics", s.handler.Metrics)
	}

	api := h.Group("/api")
	{
		api.GET("/buckets", s.handler.ListBuckets)
		api.GET("/buckets/:agent", s.handler.GetBucket)
		api.GET("/opinions/last", s.handler.LastOpinion)
		api.POST("/chat/send", s.handler.SendMessage)
		api.POST("/chat/opinion", s.handler.RequestOpinion)
		api.POST("/session/clear", s.handler.ClearSession)
		api.POST("/sessions/:id/save", s.handler.SaveSession)
		api.POST("/sessions/:id/restore", s.handler.RestoreSession)
	}
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	if s.otelProvider != nil {
		_ = s.otelProvider.Shutdown(ctx)
	}
	if s.hertz != nil {
		return s.hertz.Shutdown(ctx)
	}
	return nil
}
