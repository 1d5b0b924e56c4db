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

// Package playwright implements the browser capability by attaching to
// the chromium instance running inside the sandbox over CDP.
package playwright

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	pw "github.com/playwright-community/playwright-go"
	"k8s.io/klog/v2"

	"github.com/sheikhbox/sheikhbox/pkg/browser"
	"github.com/sheikhbox/sheikhbox/pkg/types"
)

const (
	navigateTimeoutMillis = 60_000
	maxInitRetries        = 5
	maxContentLength      = 20_000
)

var installOnce sync.Once

// Browser attaches lazily to the sandbox chromium over CDP. A page is
// established on first use and reused across calls.
type Browser struct {
	cdpURL string

	mu      sync.Mutex
	runtime *pw.Playwright
	browser pw.Browser
	page    pw.Page
}

var _ browser.Browser = (*Browser)(nil)

// New returns a Browser bound to the given CDP endpoint. No connection
// is made until the first operation.
func New(cdpURL string) *Browser {
	return &Browser{cdpURL: cdpURL}
}

// initialize connects over CDP and adopts the first existing page, or
// opens a fresh one. Retries with capped exponential backoff because the
// in-sandbox chromium may still be starting up.
func (b *Browser) initialize(ctx context.Context) error {
	var installErr error
	installOnce.Do(func() {
		installErr = pw.Install(&pw.RunOptions{
			Verbose: false,
			Stdout:  io.Discard,
			Stderr:  io.Discard,
		})
	})
	if installErr != nil {
		return fmt.Errorf("playwright install: %w", installErr)
	}

	delay := time.Second
	var lastErr error
	for attempt := 0; attempt < maxInitRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = b.connect(); lastErr == nil {
			return nil
		}
		b.teardown()
		klog.Warningf("Browser initialization failed (attempt %d/%d), retrying in %s: %v",
			attempt+1, maxInitRetries, delay, lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > 10*time.Second {
			delay = 10 * time.Second
		}
	}
	return fmt.Errorf("browser initialization failed after %d retries: %w", maxInitRetries, lastErr)
}

func (b *Browser) connect() error {
	runtime, err := pw.Run(&pw.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	})
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}
	b.runtime = runtime

	br, err := runtime.Chromium.ConnectOverCDP(b.cdpURL)
	if err != nil {
		return fmt.Errorf("connect over CDP %s: %w", b.cdpURL, err)
	}
	b.browser = br

	contexts := br.Contexts()
	if len(contexts) > 0 && len(contexts[0].Pages()) > 0 {
		b.page = contexts[0].Pages()[0]
		return nil
	}

	var bctx pw.BrowserContext
	if len(contexts) > 0 {
		bctx = contexts[0]
	} else {
		bctx, err = br.NewContext()
		if err != nil {
			return fmt.Errorf("new browser context: %w", err)
		}
	}
	page, err := bctx.NewPage()
	if err != nil {
		return fmt.Errorf("new page: %w", err)
	}
	b.page = page
	return nil
}

// ensurePage makes sure an attached page is available. Callers must hold
// b.mu.
func (b *Browser) ensurePage(ctx context.Context) error {
	if b.browser != nil && b.page != nil && !b.page.IsClosed() {
		return nil
	}
	return b.initialize(ctx)
}

// Navigate loads the given URL in the shared page.
func (b *Browser) Navigate(ctx context.Context, url string) types.ToolResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensurePage(ctx); err != nil {
		return types.Failure(fmt.Sprintf("Failed to navigate to %s: %v", url, err))
	}

	if _, err := b.page.Goto(url, pw.PageGotoOptions{
		Timeout: pw.Float(navigateTimeoutMillis),
	}); err != nil {
		return types.Failure(fmt.Sprintf("Failed to navigate to %s: %v", url, err))
	}

	return types.ToolResult{
		Success: true,
		Data:    map[string]any{"message": fmt.Sprintf("Navigated to %s", url)},
	}
}

// ViewPage extracts the readable content of the current page as
// markdown-flavoured text, truncated to a bounded length.
func (b *Browser) ViewPage(ctx context.Context) types.ToolResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensurePage(ctx); err != nil {
		return types.Failure(fmt.Sprintf("Failed to view page: %v", err))
	}

	html, err := b.page.Content()
	if err != nil {
		return types.Failure(fmt.Sprintf("Failed to view page: %v", err))
	}

	content, err := extractMarkdown(html)
	if err != nil {
		return types.Failure(fmt.Sprintf("Failed to view page: %v", err))
	}
	if len(content) > maxContentLength {
		content = content[:maxContentLength]
	}

	return types.ToolResult{
		Success: true,
		Data:    map[string]any{"content": content},
	}
}

// Click by element index is not wired to a selector mapping yet.
func (b *Browser) Click(ctx context.Context, index int) types.ToolResult {
	return types.Failure("Click by index is not fully implemented.")
}

// Input by element index is not wired to a selector mapping yet.
func (b *Browser) Input(ctx context.Context, text string, index int, pressEnter bool) types.ToolResult {
	return types.Failure("Input by index is not fully implemented.")
}

// Screenshot captures the current page as PNG bytes.
func (b *Browser) Screenshot(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensurePage(ctx); err != nil {
		return nil, err
	}
	return b.page.Screenshot(pw.PageScreenshotOptions{
		Type: pw.ScreenshotTypePng,
	})
}

// Cleanup releases all automation resources held for this browser.
func (b *Browser) Cleanup(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardown()
	return nil
}

func (b *Browser) teardown() {
	if b.page != nil && !b.page.IsClosed() {
		if err := b.page.Close(); err != nil {
			klog.V(4).Infof("Error closing page: %v", err)
		}
	}
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			klog.V(4).Infof("Error closing browser: %v", err)
		}
	}
	if b.runtime != nil {
		if err := b.runtime.Stop(); err != nil {
			klog.V(4).Infof("Error stopping playwright: %v", err)
		}
	}
	b.page = nil
	b.browser = nil
	b.runtime = nil
}
