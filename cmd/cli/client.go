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
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("CHAT_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8081"
}

func newClient() *resty.Client {
	return resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
}

func getBuckets() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/buckets")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/buckets: %s", resp.String())
	}
	return out, nil
}

func getBucket(agentID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/buckets/" + agentID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/buckets/%s: %s", agentID, resp.String())
	}
	return out, nil
}

func postSend(agentID, text string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetBody(map[string]string{"text": text, "agentId": agentID}).
		SetResult(&out).
		Post("/api/chat/send")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusAccepted {
		return nil, fmt.Errorf("POST /api/chat/send: %s", resp.String())
	}
	return out, nil
}

func postOpinion(sourceAgentID, targetAgentID, messageID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetBody(map[string]string{
			"sourceAgentId": sourceAgentID,
			"targetAgentId": targetAgentID,
			"messageId":     messageID,
		}).
		SetResult(&out).
		Post("/api/chat/opinion")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusAccepted {
		return nil, fmt.Errorf("POST /api/chat/opinion: %s", resp.String())
	}
	return out, nil
}

func getLastOpinion() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/opinions/last")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/opinions/last: %s", resp.String())
	}
	return out, nil
}

func postSession(sessionID, action string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Post("/api/sessions/" + sessionID + "/" + action)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("POST /api/sessions/%s/%s: %s", sessionID, action, resp.String())
	}
	return out, nil
}

func postClear() error {
	resp, err := newClient().R().Post("/api/session/clear")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("POST /api/session/clear: %s", resp.String())
	}
	return nil
}

func getHealth() error {
	resp, err := newClient().R().Get("/healthz")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("GET /healthz: %s", resp.String())
	}
	return nil
}
