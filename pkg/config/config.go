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

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	Chat       ChatConfig       `mapstructure:"chat"`
	Transport  TransportConfig  `mapstructure:"transport"`
	History    HistoryConfig    `mapstructure:"history"`
	Diag       DiagConfig       `mapstructure:"diag"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ChatConfig 会话引擎配置
type ChatConfig struct {
	DefaultAgent    string  `mapstructure:"default_agent"`    // 无激活 agent 时的回退 agent id
	ReadyTimeout    string  `mapstructure:"ready_timeout"`    // 发送前等待传输层就绪的上限，如 "900ms"
	WatchdogTimeout string  `mapstructure:"watchdog_timeout"` // 发送后无响应判定超时，如 "25s"
	OpinionRPS      float64 `mapstructure:"opinion_rps"`      // 评审请求限速（每秒），<=0 使用默认 1
	OpinionBurst    int     `mapstructure:"opinion_burst"`    // 评审请求突发额度，<=0 使用默认 3
}

// TransportConfig 传输层配置（WebSocket 后端）
type TransportConfig struct {
	URL              string `mapstructure:"url"`               // 如 "ws://localhost:9000/ws"
	HandshakeTimeout string `mapstructure:"handshake_timeout"` // 如 "5s"
	ReconnectMin     string `mapstructure:"reconnect_min"`     // 重连起始间隔，如 "500ms"
	ReconnectMax     string `mapstructure:"reconnect_max"`     // 重连间隔上限，如 "10s"
	SendQueueSize    int    `mapstructure:"send_queue_size"`   // 出站队列长度，<=0 使用默认 64
}

// HistoryConfig 会话快照存储配置
type HistoryConfig struct {
	Type       string `mapstructure:"type"`        // memory | redis | postgres
	DSN        string `mapstructure:"dsn"`         // Postgres 连接串，type=postgres 时必填
	RedisAddr  string `mapstructure:"redis_addr"`  // type=redis 时必填
	RedisDB    int    `mapstructure:"redis_db"`    //
	RedisPass  string `mapstructure:"redis_pass"`  //
	TTL        string `mapstructure:"ttl"`         // redis 快照 TTL，如 "72h"，空则不过期
	BackendURL string `mapstructure:"backend_url"` // 后端 REST 基地址，用于重载后回灌会话
}

// DiagConfig 诊断 HTTP API 配置
type DiagConfig struct {
	Enable bool   `mapstructure:"enable"`
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// LoadEngineConfig 加载引擎配置（configs/engine.yaml）
func LoadEngineConfig() (*Config, error) {
	return LoadConfig("configs/engine.yaml")
}

// replaceEnvVars 替换配置中 ${VAR} 形式的环境变量（连接串、密码类字段）
func replaceEnvVars(config *Config) {
	config.History.DSN = expandEnv(config.History.DSN)
	config.History.RedisPass = expandEnv(config.History.RedisPass)
	config.Transport.URL = expandEnv(config.Transport.URL)
	config.History.BackendURL = expandEnv(config.History.BackendURL)
}

func expandEnv(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		envVar := strings.TrimPrefix(strings.TrimSuffix(v, "}"), "${")
		if val := os.Getenv(envVar); val != "" {
			return val
		}
	}
	return v
}

// ParseDuration 解析时长字符串，无效或空时返回 defaultVal
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
