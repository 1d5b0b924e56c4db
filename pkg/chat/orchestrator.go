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

// Package chat drives the two-round conversation loop: the model picks a
// tool, the tool runs in the session's sandbox, the model turns the
// result into an answer. Each invocation yields a strictly ordered event
// stream.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"github.com/sheikhbox/sheikhbox/pkg/llm"
	"github.com/sheikhbox/sheikhbox/pkg/sandbox"
	"github.com/sheikhbox/sheikhbox/pkg/types"
)

// SessionResolver is what the orchestrator needs from the session
// manager: handle lookup plus the per-session exclusive-use lock.
type SessionResolver interface {
	Resolve(ctx context.Context, id string) (sandbox.Sandbox, error)
	LockSession(id string)
	UnlockSession(id string)
}

// Orchestrator owns no state of its own; all session state lives behind
// the resolver, all conversation state is reconstructed per call.
type Orchestrator struct {
	sessions SessionResolver
	llm      llm.Client
}

// New creates an Orchestrator.
func New(sessions SessionResolver, client llm.Client) *Orchestrator {
	return &Orchestrator{sessions: sessions, llm: client}
}

// Chat resolves the session and starts the event producer. A resolution
// failure is returned directly and no stream begins. Otherwise the
// returned channel delivers events in strict causal order and is closed
// after the terminal done event.
func (o *Orchestrator) Chat(ctx context.Context, sessionID, message string) (<-chan Event, error) {
	sb, err := o.sessions.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 8)
	go o.run(ctx, sb, sessionID, message, events)
	return events, nil
}

// run is the single producer for one invocation. The session lock is
// held for the whole invocation and released on every exit path; the
// done event is emitted last on every path, unless the consumer context
// is already gone.
func (o *Orchestrator) run(ctx context.Context, sb sandbox.Sandbox, sessionID, message string, events chan<- Event) {
	defer close(events)

	o.sessions.LockSession(sessionID)
	defer o.sessions.UnlockSession(sessionID)

	// Once the consumer context is gone, nothing more is emitted, even
	// when buffer space would still accept the send.
	emit := func(ev Event) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(Event{Type: EventMessage, Data: "Thinking..."}) {
		return
	}

	round1, err := o.llm.Ask(ctx, []types.Message{
		{Role: types.RoleSystem, Content: systemPrompt()},
		{Role: types.RoleUser, Content: message},
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		klog.Errorf("Round-1 model call failed for session %s: %v", sessionID, err)
		if emit(Event{Type: EventError, Data: errorPayload(err)}) {
			emit(Event{Type: EventDone})
		}
		return
	}

	call, ok := parseToolCall(round1.Content)
	if !ok {
		// Designed fallback: the model answered in free form.
		if emit(Event{Type: EventMessage, Data: round1.Content}) {
			emit(Event{Type: EventDone})
		}
		return
	}

	callJSON := mustJSON(call)
	if !emit(Event{Type: EventTool, Data: callJSON}) {
		return
	}

	result := dispatch(ctx, sb, call)
	resultJSON := mustJSON(result)
	if !emit(Event{Type: EventToolResult, Data: resultJSON}) {
		return
	}

	round2, err := o.llm.Ask(ctx, []types.Message{
		{Role: types.RoleUser, Content: message},
		{Role: types.RoleAssistant, Content: callJSON},
		{Role: types.RoleUser, Content: "Tool result: " + resultJSON},
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		klog.Errorf("Round-2 model call failed for session %s: %v", sessionID, err)
		if emit(Event{Type: EventError, Data: errorPayload(err)}) {
			emit(Event{Type: EventDone})
		}
		return
	}

	if emit(Event{Type: EventMessage, Data: round2.Content}) {
		emit(Event{Type: EventDone})
	}
}

func systemPrompt() string {
	return fmt.Sprintf(
		"You are a helpful assistant with access to these tools: %s. "+
			"Decide which tool to use and respond with a JSON object of the form "+
			`{"tool": "<name>", "args": {...}}. `+
			"If no tool is needed, answer the user directly.",
		strings.Join(ToolNames, ", "),
	)
}

// parseToolCall attempts to read the model output as a structured tool
// call. Models frequently wrap JSON in a fenced code block, so fences
// are stripped first. Any malformed structure or missing tool name means
// "not a tool call".
func parseToolCall(content string) (types.ToolCall, bool) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var call types.ToolCall
	if err := json.Unmarshal([]byte(trimmed), &call); err != nil {
		return types.ToolCall{}, false
	}
	if call.Tool == "" {
		return types.ToolCall{}, false
	}
	return call, true
}

func errorPayload(err error) string {
	if errors.Is(err, llm.ErrUnavailable) {
		return "The language model backend is unavailable."
	}
	return "Internal error."
}

// mustJSON serializes values whose types are known to marshal cleanly.
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		klog.Errorf("Failed to marshal %T: %v", v, err)
		return "{}"
	}
	return string(b)
}
