// Package browser provides the headless browser capability used by
// reconciliation passes, plus a plain HTTP fetcher for the season
// calendar crawl. A session holds a real OS-level Chrome process, so
// acquisition is scoped: WithPage guarantees release on every exit path.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// SessionOptions configures headless browser sessions.
type SessionOptions struct {
	Timeout            time.Duration
	UserAgent          string
	DisableHeadless    bool
	ConcurrentSessions int
}

// SessionPool bounds the number of concurrent Chrome sessions.
type SessionPool struct {
	opts      SessionOptions
	semaphore chan struct{}
	logger    *slog.Logger
}

// NewSessionPool constructs a pool with bounded concurrency.
func NewSessionPool(opts SessionOptions, logger *slog.Logger) *SessionPool {
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	if opts.ConcurrentSessions <= 0 {
		opts.ConcurrentSessions = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionPool{
		opts:      opts,
		semaphore: make(chan struct{}, opts.ConcurrentSessions),
		logger:    logger,
	}
}

// WithPage opens the URL in a fresh session, waits for the selector to
// be ready, parses the resulting DOM, and invokes fn. The session and
// its Chrome process are released when WithPage returns, regardless of
// how fn or the page load fail.
func (p *SessionPool) WithPage(parentCtx context.Context, url, waitSelector string, fn func(doc *goquery.Document) error) error {
	select {
	case p.semaphore <- struct{}{}:
		defer func() { <-p.semaphore }()
	case <-parentCtx.Done():
		return parentCtx.Err()
	}

	ctx, cancel := context.WithTimeout(parentCtx, p.opts.Timeout)
	defer cancel()

	headless := !p.opts.DisableHeadless
	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	}
	if ua := strings.TrimSpace(p.opts.UserAgent); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	defer allocCancel()

	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	start := time.Now()
	actions := []chromedp.Action{chromedp.Navigate(url)}
	if sel := strings.TrimSpace(waitSelector); sel != "" {
		actions = append(actions,
			chromedp.WaitReady(sel, chromedp.ByQuery),
			chromedp.Sleep(250*time.Millisecond),
		)
	} else {
		actions = append(actions, chromedp.Sleep(1500*time.Millisecond))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(chromeCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse rendered dom: %w", err)
	}

	p.logger.Debug("page rendered",
		"url", url,
		"latency_ms", time.Since(start).Milliseconds(),
		"html_bytes", len(html),
	)
	return fn(doc)
}
