// Package render turns a URL into a RenderedPage via a headless browser.
// JavaScript-heavy provider sites frequently serve an empty shell to plain
// HTTP clients, so rendering is the default rather than a fallback here.
package render

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/communityforge/scout/internal/model"
)

// Options tweaks a single render call.
type Options struct {
	// WaitForSelector, when set, blocks until the selector is visible before
	// capturing the page.
	WaitForSelector string
}

// Renderer fetches and renders a single URL.
type Renderer interface {
	Render(ctx context.Context, url string, opts Options) (*model.RenderedPage, error)
}

// Browser renders pages in headless Chrome. Each call gets its own browser
// context; no state is shared between renders.
type Browser struct {
	timeout      time.Duration
	maxTextBytes int
}

// NewBrowser creates a Browser. timeout bounds one full render; maxTextBytes
// caps the extracted text (the page reports truncation when hit).
func NewBrowser(timeout time.Duration, maxTextBytes int) *Browser {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxTextBytes <= 0 {
		maxTextBytes = 256 * 1024
	}
	return &Browser{timeout: timeout, maxTextBytes: maxTextBytes}
}

// Render navigates to url, waits for the document to settle, and parses the
// rendered HTML into a RenderedPage.
func (b *Browser) Render(ctx context.Context, rawURL string, opts Options) (*model.RenderedPage, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	// The first document response on the target is the main-frame navigation
	// after redirects.
	var status atomic.Int64
	chromedp.ListenTarget(browserCtx, func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		status.CompareAndSwap(0, resp.Response.Status)
	})

	actions := []chromedp.Action{
		network.Enable(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
	}
	if opts.WaitForSelector != "" {
		actions = append(actions, chromedp.WaitVisible(opts.WaitForSelector))
	}

	var finalURL, pageHTML string
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &pageHTML),
	)

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return nil, eris.Wrapf(err, "render: navigate %s", rawURL)
	}

	httpStatus := int(status.Load())
	if httpStatus == 0 {
		// Navigation succeeded but no document response was observed
		// (e.g. served from cache).
		httpStatus = 200
	}

	page, err := ParsePage(rawURL, finalURL, httpStatus, pageHTML, b.maxTextBytes)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("render: page rendered",
		zap.String("url", rawURL),
		zap.String("final_url", page.FinalURL),
		zap.Int("status", page.HTTPStatus),
		zap.Int("text_bytes", len(page.Text)),
		zap.Bool("truncated", page.Truncated),
	)
	return page, nil
}
