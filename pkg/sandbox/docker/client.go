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

package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sheikhbox/sheikhbox/pkg/boxd"
)

// boxdClient talks to the boxd daemon inside one sandbox container.
// Every request is signed; responses reuse the daemon's wire types.
type boxdClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
}

func (c *boxdClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.signer != nil {
		if err := c.signer.SignRequest(req, body); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	return c.httpClient.Do(req)
}

// Execute runs a shell command through boxd.
func (c *boxdClient) Execute(ctx context.Context, workingDir, command string) (*boxd.ExecuteResponse, error) {
	body, err := json.Marshal(boxd.ExecuteRequest{
		Command:    command,
		WorkingDir: workingDir,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal execute request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/execute", body)
	if err != nil {
		return nil, fmt.Errorf("call boxd execute: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("boxd execute returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out boxd.ExecuteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode execute response: %w", err)
	}
	return &out, nil
}

// WriteFile writes content to a file through boxd.
func (c *boxdClient) WriteFile(ctx context.Context, path, content string) (*boxd.FileInfo, error) {
	body, err := json.Marshal(boxd.WriteFileRequest{
		Path:    path,
		Content: content,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal write request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/files", body)
	if err != nil {
		return nil, fmt.Errorf("call boxd write file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("boxd write file returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out boxd.FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode file info: %w", err)
	}
	return &out, nil
}

// ReadFile fetches a file's bytes through boxd.
func (c *boxdClient) ReadFile(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/files/"+strings.TrimPrefix(path, "/"), nil)
	if err != nil {
		return nil, fmt.Errorf("call boxd read file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("file %s not found", path)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("boxd read file returned %d: %s", resp.StatusCode, string(respBody))
	}

	return io.ReadAll(resp.Body)
}

// Health probes the daemon's liveness endpoint.
func (c *boxdClient) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("boxd health returned %d", resp.StatusCode)
	}
	return nil
}
