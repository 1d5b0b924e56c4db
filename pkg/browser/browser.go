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

// Package browser defines the browser capability surface a sandbox must
// expose. The orchestrator and the tool dispatcher depend only on this
// interface, never on a concrete automation backend.
package browser

import (
	"context"

	"github.com/sheikhbox/sheikhbox/pkg/types"
)

// Browser is the abstract operation set over the sandbox's browser.
// Operations that a tool may invoke return the uniform ToolResult
// envelope instead of an error so that failures flow back to the model
// unchanged.
type Browser interface {
	// Navigate loads the given URL in the current page.
	Navigate(ctx context.Context, url string) types.ToolResult

	// Click clicks the element identified by an index.
	Click(ctx context.Context, index int) types.ToolResult

	// Input types text into the element identified by an index,
	// optionally pressing enter afterwards.
	Input(ctx context.Context, text string, index int, pressEnter bool) types.ToolResult

	// ViewPage extracts the readable content of the current page.
	ViewPage(ctx context.Context) types.ToolResult

	// Screenshot captures the current page as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Cleanup releases the automation resources held for this browser.
	Cleanup(ctx context.Context) error
}
