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

// Package gemini implements the llm.Client contract against the Google
// Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"k8s.io/klog/v2"

	"github.com/sheikhbox/sheikhbox/pkg/llm"
	"github.com/sheikhbox/sheikhbox/pkg/types"
)

const DefaultModel = "gemini-1.5-flash"

// Client is an llm.Client backed by the Gemini generative API.
type Client struct {
	genai *genai.Client
	model string
}

var _ llm.Client = (*Client)(nil)

// New creates a Gemini client. model may be empty, in which case
// DefaultModel is used.
func New(ctx context.Context, apiKey string, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is empty")
	}
	if model == "" {
		model = DefaultModel
	}

	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{genai: c, model: model}, nil
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	return c.genai.Close()
}

// Ask shapes the message list into a Gemini chat request and issues a
// single synchronous round-trip. A leading system message becomes the
// system instruction; the remaining messages form the chat history with
// the last one sent as the request.
func (c *Client) Ask(ctx context.Context, messages []types.Message) (types.Message, error) {
	if len(messages) == 0 {
		return types.Message{}, fmt.Errorf("gemini: empty message list")
	}

	gm := c.genai.GenerativeModel(c.model)

	rest := messages
	if rest[0].Role == types.RoleSystem {
		gm.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(rest[0].Content)},
		}
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return types.Message{}, fmt.Errorf("gemini: no non-system messages")
	}

	cs := gm.StartChat()
	for _, m := range rest[:len(rest)-1] {
		cs.History = append(cs.History, &genai.Content{
			Role:  geminiRole(m.Role),
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	last := rest[len(rest)-1]
	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		klog.Errorf("Gemini request failed: %v", err)
		return types.Message{}, fmt.Errorf("%w: %v", llm.ErrUnavailable, err)
	}

	content := collectText(resp)
	if content == "" {
		return types.Message{}, fmt.Errorf("%w: empty response", llm.ErrUnavailable)
	}

	return types.Message{Role: types.RoleAssistant, Content: content}, nil
}

func geminiRole(r types.Role) string {
	if r == types.RoleAssistant {
		return "model"
	}
	return "user"
}

func collectText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
	}
	return b.String()
}
