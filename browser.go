package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// SelectorKind tells the browser how to interpret a Selector value.
type SelectorKind int

const (
	ByID SelectorKind = iota
	ByXPath
)

// Selector addresses one element on a page.
type Selector struct {
	Kind  SelectorKind
	Value string
}

func (s Selector) String() string {
	if s.Kind == ByID {
		return "#" + s.Value
	}
	return s.Value
}

// Browser is the subset of browser automation the login script needs.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, sel Selector) error
	Click(ctx context.Context, sel Selector) error
	Type(ctx context.Context, sel Selector, text string) error
	Location(ctx context.Context) (string, error)
	// Requests returns the outbound requests captured so far, oldest first.
	Requests() []CapturedRequest
	Close() error
}

// BrowserLauncher starts a browser for one bootstrap.
type BrowserLauncher func(ctx context.Context) (Browser, error)

// ChromeBrowser drives a local Chrome through the DevTools protocol.
type ChromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	cancelAlloc context.CancelFunc

	mu sync.Mutex

	// entries is the request log in first-seen order. A redirect keeps the
	// DevTools request id, so every hop gets its own entry and current points
	// at the latest hop of each id.
	entries []*CapturedRequest
	current map[network.RequestID]*CapturedRequest
	hops    map[network.RequestID]int
}

func newChromeBrowser() *ChromeBrowser {
	return &ChromeBrowser{
		current: make(map[network.RequestID]*CapturedRequest),
		hops:    make(map[network.RequestID]int),
	}
}

// NewChromeLauncher returns a BrowserLauncher starting Chrome with cfg.
func NewChromeLauncher(cfg BrowserConfig, log Logger) BrowserLauncher {
	return func(ctx context.Context) (Browser, error) {
		return NewChromeBrowser(ctx, cfg, log)
	}
}

// NewChromeBrowser starts Chrome and enables network capture.
func NewChromeBrowser(parent context.Context, cfg BrowserConfig, log Logger) (*ChromeBrowser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Debugf))

	b := newChromeBrowser()
	b.ctx, b.cancel, b.cancelAlloc = ctx, cancel, cancelAlloc
	chromedp.ListenTarget(ctx, b.onEvent)

	// The first Run starts the browser; it must not carry a step timeout or the
	// browser would die with it.
	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return b, nil
}

func (b *ChromeBrowser) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		r := b.entry(e.RequestID)
		// ExtraInfo may arrive first and leave an entry without a URL.
		if e.RedirectResponse != nil && r.URL != "" {
			r = b.nextHop(e.RequestID)
		}
		r.URL = e.Request.URL
		r.Method = e.Request.Method
		mergeHeaders(r.Headers, e.Request.Headers)
	case *network.EventRequestWillBeSentExtraInfo:
		b.mu.Lock()
		defer b.mu.Unlock()
		mergeHeaders(b.entry(e.RequestID).Headers, e.Headers)
	}
}

// entry returns the latest hop of id, creating the first one if needed.
func (b *ChromeBrowser) entry(id network.RequestID) *CapturedRequest {
	if r, ok := b.current[id]; ok {
		return r
	}
	return b.nextHop(id)
}

func (b *ChromeBrowser) nextHop(id network.RequestID) *CapturedRequest {
	hop := b.hops[id]
	b.hops[id] = hop + 1
	entryID := string(id)
	if hop > 0 {
		entryID = fmt.Sprintf("%s#%d", id, hop)
	}
	r := &CapturedRequest{ID: entryID, Headers: map[string]string{}, Time: time.Now()}
	b.current[id] = r
	b.entries = append(b.entries, r)
	return r
}

func mergeHeaders(dst map[string]string, src network.Headers) {
	for k, v := range src {
		if s, ok := v.(string); ok {
			dst[k] = s
		} else {
			dst[k] = fmt.Sprint(v)
		}
	}
}

// Requests returns a snapshot of the captured request log.
func (b *ChromeBrowser) Requests() []CapturedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]CapturedRequest, 0, len(b.entries))
	for _, e := range b.entries {
		r := *e
		r.Headers = make(map[string]string, len(e.Headers))
		for k, v := range e.Headers {
			r.Headers[k] = v
		}
		out = append(out, r)
	}
	return out
}

// run executes actions on the browser tab, bounded by ctx.
func (b *ChromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func queryOpts(sel Selector) []chromedp.QueryOption {
	if sel.Kind == ByID {
		return []chromedp.QueryOption{chromedp.ByID}
	}
	return []chromedp.QueryOption{chromedp.BySearch}
}

func (b *ChromeBrowser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, chromedp.Navigate(url))
}

func (b *ChromeBrowser) WaitVisible(ctx context.Context, sel Selector) error {
	return b.run(ctx, chromedp.WaitVisible(sel.Value, queryOpts(sel)...))
}

func (b *ChromeBrowser) Click(ctx context.Context, sel Selector) error {
	return b.run(ctx, chromedp.Click(sel.Value, queryOpts(sel)...))
}

func (b *ChromeBrowser) Type(ctx context.Context, sel Selector, text string) error {
	return b.run(ctx, chromedp.SendKeys(sel.Value, text, queryOpts(sel)...))
}

func (b *ChromeBrowser) Location(ctx context.Context) (string, error) {
	var loc string
	if err := b.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Close shuts the tab and the browser process down.
func (b *ChromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.cancelAlloc()
	return err
}
