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
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Println("chat-platform cli 0.1.0")
	case "health":
		if err := getHealth(); err != nil {
			fatal(err)
		}
		fmt.Println("ok")
	case "buckets":
		if len(args) > 0 {
			out, err := getBucket(args[0])
			if err != nil {
				fatal(err)
			}
			printJSON(out)
		} else {
			out, err := getBuckets()
			if err != nil {
				fatal(err)
			}
			printJSON(out)
		}
	case "send":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: chatctl send <agent_id> <text...>\n")
			os.Exit(1)
		}
		out, err := postSend(args[0], strings.Join(args[1:], " "))
		if err != nil {
			fatal(err)
		}
		printJSON(out)
	case "opinion":
		switch {
		case len(args) == 1 && args[0] == "last":
			out, err := getLastOpinion()
			if err != nil {
				fatal(err)
			}
			printJSON(out)
		case len(args) >= 3:
			out, err := postOpinion(args[0], args[1], args[2])
			if err != nil {
				fatal(err)
			}
			printJSON(out)
		default:
			fmt.Fprintf(os.Stderr, "Usage: chatctl opinion <source_agent> <target_agent> <message_id> | chatctl opinion last\n")
			os.Exit(1)
		}
	case "session":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: chatctl session clear | chatctl session <save|restore> <session_id>\n")
			os.Exit(1)
		}
		switch args[0] {
		case "clear":
			if err := postClear(); err != nil {
				fatal(err)
			}
			fmt.Println("cleared")
		case "save", "restore":
			if len(args) < 2 {
				fmt.Fprintf(os.Stderr, "Usage: chatctl session %s <session_id>\n", args[0])
				os.Exit(1)
			}
			out, err := postSession(args[1], args[0])
			if err != nil {
				fatal(err)
			}
			printJSON(out)
		default:
			fmt.Fprintf(os.Stderr, "Usage: chatctl session clear | chatctl session <save|restore> <session_id>\n")
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`chatctl - 会话引擎诊断 CLI

Usage:
  chatctl version
  chatctl health
  chatctl buckets [agent_id]
  chatctl send <agent_id> <text...>
  chatctl opinion <source_agent> <target_agent> <message_id>
  chatctl opinion last
  chatctl session clear
  chatctl session save <session_id>
  chatctl session restore <session_id>

Environment:
  CHAT_API_URL  诊断 API 基地址（默认 http://localhost:8081）`)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(data))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
