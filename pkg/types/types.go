/*
Copyright The SheikhBox Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package types holds the shared wire-level values exchanged between the
// orchestrator, the LLM gateway and the sandbox capability surface.
package types

// Role identifies the sender of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in an LLM conversation. Messages are
// reconstructed per chat call; they are never persisted.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToolCall is the structured instruction parsed from the model's
// first-round output: a tool name plus an argument mapping.
type ToolCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is the uniform envelope returned by every capability
// operation. Callers must branch on Success; when Success is false, Data
// is absent or advisory only.
type ToolResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Failure builds an unsuccessful ToolResult carrying only a message.
func Failure(message string) ToolResult {
	return ToolResult{Success: false, Message: message}
}
