package dictionary

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultSettleDelay is how long the browser waits after navigation before
// the markup is captured
const DefaultSettleDelay = 3 * time.Second

// ChromeRenderer drives a headless Chrome and returns the rendered markup.
// A single tab is reused for all lookups, so it must not be shared between
// goroutines.
type ChromeRenderer struct {
	timeout       time.Duration
	settle        time.Duration
	started       bool
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

// NewChromeRenderer prepares a headless browser. Chrome is started lazily on
// the first Render call.
func NewChromeRenderer(timeout, settle time.Duration) *ChromeRenderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	return &ChromeRenderer{
		timeout:       timeout,
		settle:        settle,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}
}

func (r *ChromeRenderer) Render(ctx context.Context, url string) (string, error) {
	// The first Run allocates the browser and must not carry a timeout,
	// otherwise the whole browser dies with it
	if !r.started {
		if err := chromedp.Run(r.browserCtx); err != nil {
			return "", fmt.Errorf("failed to start chrome: %w", err)
		}
		r.started = true
	}

	runCtx, cancel := context.WithTimeout(r.browserCtx, r.timeout+r.settle)
	defer cancel()

	// Cancel the navigation when the caller gives up
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(r.settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp.Run > %w", err)
	}
	return html, nil
}

func (r *ChromeRenderer) Close() error {
	r.cancelBrowser()
	r.cancelAlloc()
	return nil
}
