package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 diag API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		SendTotal, SendFailTotal,
		StreamChunkTotal, StreamOrphanChunkTotal, StreamDuration,
		OpinionRequestTotal, OpinionDuplicateTotal,
		WatchdogTimeoutTotal, TransportReconnectTotal,
	)
}

// SendTotal 发送的用户消息总数（按 agent）
var SendTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chat_send_total",
		Help: "发送的用户消息总数（按 agent）",
	},
	[]string{"agent_id"},
)

// SendFailTotal 传输层发送失败总数
var SendFailTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "chat_send_fail_total",
		Help: "传输层发送失败总数",
	},
)

// StreamChunkTotal 已累积的流式 chunk 总数
var StreamChunkTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "chat_stream_chunk_total",
		Help: "已累积的流式 chunk 总数",
	},
)

// StreamOrphanChunkTotal 被丢弃的孤儿 chunk 总数（id 未在索引中）
var StreamOrphanChunkTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "chat_stream_orphan_chunk_total",
		Help: "被丢弃的孤儿 chunk 总数（id 未在索引中）",
	},
)

// StreamDuration stream-start 到 stream-end 的耗时（秒）
var StreamDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "chat_stream_duration_seconds",
		Help:    "stream-start 到 stream-end 的耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"agent_id"},
)

// OpinionRequestTotal 已发出的跨 agent 评审请求总数（按 source agent）
var OpinionRequestTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chat_opinion_request_total",
		Help: "已发出的跨 agent 评审请求总数（按 source agent）",
	},
	[]string{"agent_id"},
)

// OpinionDuplicateTotal 被本地去重拦截的评审请求总数
var OpinionDuplicateTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "chat_opinion_duplicate_total",
		Help: "被本地去重拦截的评审请求总数",
	},
)

// WatchdogTimeoutTotal Watchdog 超时触发总数
var WatchdogTimeoutTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "chat_watchdog_timeout_total",
		Help: "Watchdog 超时触发总数",
	},
)

// TransportReconnectTotal 传输层重连总数
var TransportReconnectTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "chat_transport_reconnect_total",
		Help: "传输层重连总数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
