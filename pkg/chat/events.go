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

// EventType identifies a chat stream event.
type EventType string

const (
	// EventMessage carries assistant-visible text, including the
	// informational "Thinking..." affordance and the final answer.
	EventMessage EventType = "message"

	// EventTool carries the serialized tool call chosen by the model.
	EventTool EventType = "tool"

	// EventToolResult carries the serialized uniform result envelope.
	EventToolResult EventType = "tool_result"

	// EventError carries an explicit failure, e.g. when the model
	// backend is unavailable. It never masquerades as a message.
	EventError EventType = "error"

	// EventDone terminates every stream. It is always the last event.
	EventDone EventType = "done"
)

// Event is one element of the ordered chat stream. Data is the payload
// already serialized for the wire: plain text for message/error events,
// JSON for tool and tool_result events, empty for done.
type Event struct {
	Type EventType
	Data string
}
