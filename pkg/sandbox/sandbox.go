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

// Package sandbox defines the capability surface of an isolated
// execution environment and the provisioning contract for obtaining one.
// Concrete backends live in subpackages.
package sandbox

import (
	"context"

	"github.com/sheikhbox/sheikhbox/pkg/browser"
	"github.com/sheikhbox/sheikhbox/pkg/types"
)

// Sandbox is an isolated environment exposing a shell, a filesystem and
// a browser. A Sandbox is exclusively owned by the session manager once
// registered; other components borrow it per call.
type Sandbox interface {
	// ID is the stable identifier of this sandbox. It doubles as the
	// session identifier.
	ID() string

	// Browser returns the browser capability of this sandbox.
	Browser(ctx context.Context) (browser.Browser, error)

	// ExecCommand runs a shell command in the sandbox.
	ExecCommand(ctx context.Context, sessionID, execDir, command string) types.ToolResult

	// FileWrite writes content to a file inside the sandbox.
	FileWrite(ctx context.Context, file, content string) types.ToolResult

	// FileRead reads a file from inside the sandbox.
	FileRead(ctx context.Context, file string) types.ToolResult

	// Destroy tears the sandbox down and releases its resources.
	Destroy(ctx context.Context) error

	// VNCURL is the websocket URL of the sandbox's remote desktop.
	VNCURL() string
}

// Provisioner creates sandboxes and reattaches to existing ones by ID.
// Retry policy for transient provisioning failures belongs here, not in
// the session manager.
type Provisioner interface {
	Create(ctx context.Context) (Sandbox, error)
	Get(ctx context.Context, id string) (Sandbox, error)
}
