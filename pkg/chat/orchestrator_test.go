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

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikhbox/sheikhbox/pkg/llm"
	"github.com/sheikhbox/sheikhbox/pkg/sandbox"
	"github.com/sheikhbox/sheikhbox/pkg/types"
)

// ---- fakes ----

type fakeResolver struct {
	sb         *fakeSandbox
	resolveErr error
	locked     int
	unlocked   int
}

func (f *fakeResolver) Resolve(ctx context.Context, id string) (sandbox.Sandbox, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.sb, nil
}

func (f *fakeResolver) LockSession(id string)   { f.locked++ }
func (f *fakeResolver) UnlockSession(id string) { f.unlocked++ }

// fakeLLM replays canned responses in order. An entry with err set
// fails that round.
type fakeLLM struct {
	responses []string
	errs      []error
	calls     [][]types.Message
}

func (f *fakeLLM) Ask(ctx context.Context, messages []types.Message) (types.Message, error) {
	i := len(f.calls)
	f.calls = append(f.calls, messages)
	if i < len(f.errs) && f.errs[i] != nil {
		return types.Message{}, f.errs[i]
	}
	if i >= len(f.responses) {
		return types.Message{}, fmt.Errorf("unexpected call %d", i)
	}
	return types.Message{Role: types.RoleAssistant, Content: f.responses[i]}, nil
}

func collectEvents(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	return got
}

func eventTypes(events []Event) []EventType {
	var kinds []EventType
	for _, ev := range events {
		kinds = append(kinds, ev.Type)
	}
	return kinds
}

// ---- tests ----

func TestChat_ToolCallFlow(t *testing.T) {
	resolver := &fakeResolver{sb: &fakeSandbox{id: "sb-1"}}
	model := &fakeLLM{responses: []string{
		`{"tool": "navigate", "args": {"url": "https://example.com"}}`,
		"The page loaded fine.",
	}}

	o := New(resolver, model)
	events, err := o.Chat(context.Background(), "sb-1", "open example.com")
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Equal(t, []EventType{
		EventMessage, EventTool, EventToolResult, EventMessage, EventDone,
	}, eventTypes(got))

	assert.Equal(t, "Thinking...", got[0].Data)

	var call types.ToolCall
	require.NoError(t, json.Unmarshal([]byte(got[1].Data), &call))
	assert.Equal(t, "navigate", call.Tool)
	assert.Equal(t, "https://example.com", call.Args["url"])

	var result types.ToolResult
	require.NoError(t, json.Unmarshal([]byte(got[2].Data), &result))
	assert.True(t, result.Success)

	assert.Equal(t, "The page loaded fine.", got[3].Data)

	// Round 2 carries the original question, the call, and the result.
	require.Len(t, model.calls, 2)
	round2 := model.calls[1]
	require.Len(t, round2, 3)
	assert.Equal(t, types.RoleUser, round2[0].Role)
	assert.Equal(t, "open example.com", round2[0].Content)
	assert.Equal(t, types.RoleAssistant, round2[1].Role)
	assert.Contains(t, round2[2].Content, "Tool result: ")

	assert.Equal(t, 1, resolver.locked)
	assert.Equal(t, 1, resolver.unlocked)
}

func TestChat_FencedToolCall(t *testing.T) {
	resolver := &fakeResolver{sb: &fakeSandbox{id: "sb-1"}}
	model := &fakeLLM{responses: []string{
		"```json\n{\"tool\": \"view_page\"}\n```",
		"Summarized.",
	}}

	o := New(resolver, model)
	events, err := o.Chat(context.Background(), "sb-1", "what is on the page?")
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Equal(t, []EventType{
		EventMessage, EventTool, EventToolResult, EventMessage, EventDone,
	}, eventTypes(got))
	assert.True(t, resolver.sb.br.viewed)
}

func TestChat_UnknownToolStillCompletes(t *testing.T) {
	resolver := &fakeResolver{sb: &fakeSandbox{id: "sb-1"}}
	model := &fakeLLM{responses: []string{
		`{"tool": "teleport", "args": {}}`,
		"That did not work.",
	}}

	o := New(resolver, model)
	events, err := o.Chat(context.Background(), "sb-1", "teleport somewhere")
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Equal(t, []EventType{
		EventMessage, EventTool, EventToolResult, EventMessage, EventDone,
	}, eventTypes(got))

	var result types.ToolResult
	require.NoError(t, json.Unmarshal([]byte(got[2].Data), &result))
	assert.False(t, result.Success)
	assert.Equal(t, "Unknown tool", result.Message)
}

func TestChat_FreeFormAnswer(t *testing.T) {
	resolver := &fakeResolver{sb: &fakeSandbox{id: "sb-1"}}
	model := &fakeLLM{responses: []string{
		"I can answer that directly: 4.",
	}}

	o := New(resolver, model)
	events, err := o.Chat(context.Background(), "sb-1", "what is 2+2?")
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Equal(t, []EventType{EventMessage, EventMessage, EventDone}, eventTypes(got))
	assert.Equal(t, "I can answer that directly: 4.", got[1].Data)
	require.Len(t, model.calls, 1)
}

func TestChat_SessionNotFound(t *testing.T) {
	resolver := &fakeResolver{resolveErr: fmt.Errorf("no such session")}
	model := &fakeLLM{}

	o := New(resolver, model)
	events, err := o.Chat(context.Background(), "missing", "hello")
	require.Error(t, err)
	assert.Nil(t, events)
	assert.Empty(t, model.calls)
	assert.Zero(t, resolver.locked)
}

func TestChat_ModelUnavailableRound1(t *testing.T) {
	resolver := &fakeResolver{sb: &fakeSandbox{id: "sb-1"}}
	model := &fakeLLM{errs: []error{fmt.Errorf("%w: quota exceeded", llm.ErrUnavailable)}}

	o := New(resolver, model)
	events, err := o.Chat(context.Background(), "sb-1", "hello")
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Equal(t, []EventType{EventMessage, EventError, EventDone}, eventTypes(got))
	assert.Equal(t, "The language model backend is unavailable.", got[1].Data)
	assert.Equal(t, 1, resolver.unlocked)
}

func TestChat_ModelUnavailableRound2(t *testing.T) {
	resolver := &fakeResolver{sb: &fakeSandbox{id: "sb-1"}}
	model := &fakeLLM{
		responses: []string{`{"tool": "view_page"}`},
		errs:      []error{nil, fmt.Errorf("%w: timeout", llm.ErrUnavailable)},
	}

	o := New(resolver, model)
	events, err := o.Chat(context.Background(), "sb-1", "hello")
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Equal(t, []EventType{
		EventMessage, EventTool, EventToolResult, EventError, EventDone,
	}, eventTypes(got))
	assert.Equal(t, EventDone, got[len(got)-1].Type)
}

// blockingLLM parks inside Ask until the invocation context is canceled,
// simulating a model call in flight when the client goes away.
type blockingLLM struct {
	calls   int
	entered chan struct{}
}

func (f *blockingLLM) Ask(ctx context.Context, messages []types.Message) (types.Message, error) {
	f.calls++
	f.entered <- struct{}{}
	<-ctx.Done()
	return types.Message{}, ctx.Err()
}

func TestChat_CanceledMidInvocation(t *testing.T) {
	resolver := &fakeResolver{sb: &fakeSandbox{id: "sb-1"}}
	model := &blockingLLM{entered: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	o := New(resolver, model)
	events, err := o.Chat(ctx, "sb-1", "hello")
	require.NoError(t, err)

	first := <-events
	assert.Equal(t, EventMessage, first.Type)
	assert.Equal(t, "Thinking...", first.Data)

	<-model.entered
	cancel()

	// The channel must close without error or done events, the lock
	// must come back, and the model must not be called again.
	got := collectEvents(t, events)
	assert.Empty(t, got)
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, 1, resolver.unlocked)
}

func TestParseToolCall(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantTool string
		wantOK   bool
	}{
		{
			name:     "plain JSON",
			content:  `{"tool": "navigate", "args": {"url": "https://example.com"}}`,
			wantTool: "navigate",
			wantOK:   true,
		},
		{
			name:     "fenced JSON",
			content:  "```json\n{\"tool\": \"view_page\"}\n```",
			wantTool: "view_page",
			wantOK:   true,
		},
		{
			name:     "fenced without language tag",
			content:  "```\n{\"tool\": \"file_read\", \"args\": {\"file\": \"/tmp/a\"}}\n```",
			wantTool: "file_read",
			wantOK:   true,
		},
		{
			name:    "prose",
			content: "I think the answer is 4.",
			wantOK:  false,
		},
		{
			name:    "JSON without tool field",
			content: `{"args": {"url": "https://example.com"}}`,
			wantOK:  false,
		},
		{
			name:    "empty",
			content: "",
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, ok := parseToolCall(tt.content)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantTool, call.Tool)
			}
		})
	}
}
