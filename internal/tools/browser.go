package tools

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserConfig controls headless-Chrome automation.
type BrowserConfig struct {
	Headless           bool
	NavigateTimeout    time.Duration
	ScreenshotMaxWidth int
}

// DefaultBrowserConfig matches a sane default posture for agent-driven
// browsing: headless, bounded navigation timeout, downsampled screenshots
// so they don't blow the context window's token budget.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{Headless: true, NavigateTimeout: 30 * time.Second, ScreenshotMaxWidth: 1024}
}

// BrowserTool drives a single shared headless-browser instance for
// navigate/click/type/screenshot/extract-text operations, lazily launched
// on first use and reused across calls within a session.
type BrowserTool struct {
	cfg BrowserConfig

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
}

// NewBrowserTool creates a BrowserTool; the underlying Chrome process isn't
// spawned until the first Execute call.
func NewBrowserTool(cfg BrowserConfig) *BrowserTool {
	return &BrowserTool{cfg: cfg}
}

func (t *BrowserTool) Name() string        { return "browser" }
func (t *BrowserTool) Description() string { return "Navigate and interact with a headless browser: navigate, click, type, screenshot, extract_text." }

func (t *BrowserTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{"navigate", "click", "type", "screenshot", "extract_text"},
			},
			"url":      map[string]interface{}{"type": "string"},
			"selector": map[string]interface{}{"type": "string"},
			"text":     map[string]interface{}{"type": "string"},
		},
		"required": []string{"action"},
	}
}

func (t *BrowserTool) ensureBrowser() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.browser != nil {
		return nil
	}

	l := launcher.New().Headless(t.cfg.Headless)
	url, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	t.browser = rod.New().ControlURL(url)
	if err := t.browser.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	t.page = t.browser.MustPage()
	return nil
}

func (t *BrowserTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if err := t.ensureBrowser(); err != nil {
		return ErrorResult(err.Error())
	}

	action, _ := args["action"].(string)
	page := t.page.Context(ctx)

	switch action {
	case "navigate":
		rawURL, _ := args["url"].(string)
		if rawURL == "" {
			return ErrorResult("navigate requires a url argument")
		}
		timeoutPage := page.Timeout(t.cfg.NavigateTimeout)
		if err := timeoutPage.Navigate(rawURL); err != nil {
			return ErrorResult(fmt.Sprintf("navigate: %v", err))
		}
		if err := timeoutPage.WaitLoad(); err != nil {
			return ErrorResult(fmt.Sprintf("wait load: %v", err))
		}
		return NewResult(fmt.Sprintf("navigated to %s", rawURL))

	case "click":
		selector, _ := args["selector"].(string)
		if selector == "" {
			return ErrorResult("click requires a selector argument")
		}
		el, err := page.Element(selector)
		if err != nil {
			return ErrorResult(fmt.Sprintf("find element %q: %v", selector, err))
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return ErrorResult(fmt.Sprintf("click %q: %v", selector, err))
		}
		return NewResult(fmt.Sprintf("clicked %s", selector))

	case "type":
		selector, _ := args["selector"].(string)
		text, _ := args["text"].(string)
		if selector == "" {
			return ErrorResult("type requires a selector argument")
		}
		el, err := page.Element(selector)
		if err != nil {
			return ErrorResult(fmt.Sprintf("find element %q: %v", selector, err))
		}
		if err := el.Input(text); err != nil {
			return ErrorResult(fmt.Sprintf("type into %q: %v", selector, err))
		}
		return NewResult(fmt.Sprintf("typed into %s", selector))

	case "screenshot":
		data, err := page.Screenshot(true, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
		if err != nil {
			return ErrorResult(fmt.Sprintf("screenshot: %v", err))
		}
		downsized, err := downsamplePNG(data, t.cfg.ScreenshotMaxWidth)
		if err != nil {
			return ErrorResult(fmt.Sprintf("downsample screenshot: %v", err))
		}
		return NewResult(fmt.Sprintf("screenshot captured (%d bytes, downsampled)", len(downsized)))

	case "extract_text":
		text, err := page.MustElement("body").Text()
		if err != nil {
			return ErrorResult(fmt.Sprintf("extract text: %v", err))
		}
		return NewResult(text)

	default:
		return ErrorResult(fmt.Sprintf("unknown browser action: %q", action))
	}
}

// downsamplePNG shrinks a screenshot to maxWidth. The screenshot action
// reports only the downsampled size; the image itself is not attached to the
// tool result.
func downsamplePNG(data []byte, maxWidth int) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if img.Bounds().Dx() <= maxWidth {
		return data, nil
	}
	resized := imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Close shuts down the underlying browser process, if one was launched.
func (t *BrowserTool) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.browser == nil {
		return nil
	}
	return t.browser.Close()
}
