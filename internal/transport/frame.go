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

// 出站帧类型
const (
	FrameChatMessage = "chat.message"
	FrameChatOpinion = "chat.opinion"
)

// Frame 出站帧封包
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ChatMessagePayload chat.message 帧负载
type ChatMessagePayload struct {
	Text            string `json:"text"`
	AgentID         string `json:"agentId"`
	UseRAG          bool   `json:"useRag"`
	ClientMessageID string `json:"clientMessageId"`
}

// ChatOpinionPayload chat.opinion 帧负载
type ChatOpinionPayload struct {
	TargetAgentID string `json:"targetAgentId"`
	SourceAgentID string `json:"sourceAgentId"`
	MessageID     string `json:"messageId"`
	RequestID     string `json:"requestId"`
}
