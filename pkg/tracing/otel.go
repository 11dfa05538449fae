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

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartSendSpan 开始一次用户消息发送 span
func StartSendSpan(ctx context.Context, agentID string, clientMessageID string) (context.Context, trace.Span) {
	tracer := otel.Tracer("chat-platform")
	ctx, span := tracer.Start(ctx, "chat.send",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("message.client_id", clientMessageID),
		),
	)
	return ctx, span
}

// StartOpinionSpan 开始一次跨 agent 评审请求 span
func StartOpinionSpan(ctx context.Context, sourceAgentID string, targetAgentID string, requestID string) (context.Context, trace.Span) {
	tracer := otel.Tracer("chat-platform")
	ctx, span := tracer.Start(ctx, "chat.opinion",
		trace.WithAttributes(
			attribute.String("agent.source", sourceAgentID),
			attribute.String("agent.target", targetAgentID),
			attribute.String("opinion.request_id", requestID),
		),
	)
	return ctx, span
}
