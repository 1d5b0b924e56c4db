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
	"fmt"

	"github.com/sheikhbox/sheikhbox/pkg/sandbox"
	"github.com/sheikhbox/sheikhbox/pkg/types"
)

// ToolNames is the fixed enumerated tool set offered to the model.
var ToolNames = []string{
	"navigate",
	"view_page",
	"exec_command",
	"file_write",
	"file_read",
}

// dispatch maps a parsed tool call to exactly one capability invocation
// on the sandbox. It never returns an error: unknown tools and contract
// violations flow back to the model as unsuccessful envelopes so the
// second round can react to them.
func dispatch(ctx context.Context, sb sandbox.Sandbox, call types.ToolCall) types.ToolResult {
	switch call.Tool {
	case "navigate":
		url, ok := stringArg(call, "url")
		if !ok {
			return missingArg("url")
		}
		br, err := sb.Browser(ctx)
		if err != nil {
			return types.Failure(fmt.Sprintf("Failed to get browser: %v", err))
		}
		return br.Navigate(ctx, url)

	case "view_page":
		br, err := sb.Browser(ctx)
		if err != nil {
			return types.Failure(fmt.Sprintf("Failed to get browser: %v", err))
		}
		return br.ViewPage(ctx)

	case "exec_command":
		sessionID, ok := stringArg(call, "session_id")
		if !ok {
			return missingArg("session_id")
		}
		execDir, ok := stringArg(call, "exec_dir")
		if !ok {
			return missingArg("exec_dir")
		}
		command, ok := stringArg(call, "command")
		if !ok {
			return missingArg("command")
		}
		return sb.ExecCommand(ctx, sessionID, execDir, command)

	case "file_write":
		file, ok := stringArg(call, "file")
		if !ok {
			return missingArg("file")
		}
		content, ok := stringArg(call, "content")
		if !ok {
			return missingArg("content")
		}
		return sb.FileWrite(ctx, file, content)

	case "file_read":
		file, ok := stringArg(call, "file")
		if !ok {
			return missingArg("file")
		}
		return sb.FileRead(ctx, file)

	default:
		return types.Failure("Unknown tool")
	}
}

func stringArg(call types.ToolCall, key string) (string, bool) {
	v, ok := call.Args[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func missingArg(key string) types.ToolResult {
	return types.Failure(fmt.Sprintf("Missing required argument %q", key))
}
