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

// Package llm defines the gateway contract against an external model
// provider. Concrete backends live in subpackages.
package llm

import (
	"context"
	"errors"

	"github.com/sheikhbox/sheikhbox/pkg/types"
)

// ErrUnavailable indicates that the model backend could not be reached
// or returned a transport-level failure. Backends must return it (wrapped)
// instead of folding the error text into a successful response.
var ErrUnavailable = errors.New("llm: backend unavailable")

// Client issues exactly one round-trip per Ask call: the ordered message
// list is shaped to the backend's expected form and the single response
// message is returned.
type Client interface {
	Ask(ctx context.Context, messages []types.Message) (types.Message, error)
}
