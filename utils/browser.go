package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"commute-annotator/internal/types"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// CardAttribute tags host-page card elements with a stable identifier so that
// cards can be matched across HTML snapshots.
const CardAttribute = "data-commute-card"

const observerScript = `(function(){
	if (window.__commuteObserver) { return; }
	window.__commuteMutations = window.__commuteMutations || 0;
	window.__commuteObserver = new MutationObserver(function(records){ window.__commuteMutations += records.length; });
	var start = function(){ window.__commuteObserver.observe(document.documentElement, {childList: true, subtree: true, characterData: true}); };
	if (document.documentElement) { start(); } else { document.addEventListener('DOMContentLoaded', start); }
})();`

// BrowserClient provides headless browser functionality
type BrowserClient struct {
	config *types.Config
	logger types.Logger
}

// NewBrowserClient creates a new browser client
func NewBrowserClient(config *types.Config, logger types.Logger) *BrowserClient {
	// Suppress chromedp debug logging
	log.SetOutput(io.Discard)

	return &BrowserClient{
		config: config,
		logger: logger,
	}
}

func (b *BrowserClient) allocatorOptions() []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.config.UseHeadlessBrowser),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(b.config.UserAgent),
	)
}

// Open starts a browser, navigates one tab to url and returns a live page
// handle. The page stays usable until Close is called or ctx is done.
func (b *BrowserClient) Open(ctx context.Context, url string) (*BrowserPage, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	p := &BrowserPage{
		ctx:         tabCtx,
		timeout:     b.config.Timeout,
		logger:      b.logger,
		navigations: make(chan string, 8),
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventNavigatedWithinDocument:
			p.notify(e.URL)
		case *page.EventFrameNavigated:
			if e.Frame.ParentID == "" {
				p.notify(e.Frame.URL)
			}
		}
	})

	err := chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(observerScript).Do(ctx)
			return err
		}),
		chromedp.Navigate(url),
		chromedp.Evaluate(observerScript, nil),
	)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	b.logger.Debugf("Opened browser page at %s", url)
	return p, nil
}

// GetPageContent retrieves the HTML content of a page using headless browser
func (b *BrowserClient) GetPageContent(ctx context.Context, url string) (string, error) {
	p, err := b.Open(ctx, url)
	if err != nil {
		return "", err
	}
	defer p.Close()

	if err := p.run(ctx, chromedp.Sleep(b.config.SettleDelay)); err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}

	html, err := p.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}

	b.logger.Debugf("Successfully retrieved page content from %s (%d bytes)", url, len(html))
	return html, nil
}

// BrowserPage is a live browser tab
type BrowserPage struct {
	ctx         context.Context
	cancel      context.CancelFunc
	timeout     time.Duration
	logger      types.Logger
	navigations chan string
}

func (p *BrowserPage) notify(url string) {
	select {
	case p.navigations <- url:
	default:
	}
}

// run executes actions in the tab, bounded by the caller's context and the
// configured timeout.
func (p *BrowserPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigations delivers URLs of main-frame and same-document navigations
func (p *BrowserPage) Navigations() <-chan string {
	return p.navigations
}

// Location returns the current URL
func (p *BrowserPage) Location(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

// Snapshot returns the current document HTML
func (p *BrowserPage) Snapshot(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to snapshot page: %w", err)
	}
	return html, nil
}

// MutationCount returns the number of DOM mutations observed since the
// document loaded. The observer is reinstalled if the document was replaced.
func (p *BrowserPage) MutationCount(ctx context.Context) (uint64, error) {
	var count float64
	script := observerScript + "\nwindow.__commuteMutations || 0;"
	if err := p.run(ctx, chromedp.Evaluate(script, &count)); err != nil {
		return 0, fmt.Errorf("failed to read mutation count: %w", err)
	}
	return uint64(count), nil
}

// MarkCards tags every element matching the first selector that has matches
// with a card identifier and returns how many cards were found.
func (p *BrowserPage) MarkCards(ctx context.Context, selectors []string) (int, error) {
	args, err := json.Marshal(selectors)
	if err != nil {
		return 0, err
	}
	script := fmt.Sprintf(`(function(sels){
		var next = window.__commuteNextCard || 0, count = 0;
		for (var i = 0; i < sels.length; i++) {
			var els = document.querySelectorAll(sels[i]);
			if (!els.length) { continue; }
			els.forEach(function(el){
				if (!el.hasAttribute(%[2]q)) { el.setAttribute(%[2]q, 'c' + (next++)); }
				count++;
			});
			break;
		}
		window.__commuteNextCard = next;
		return count;
	})(%[1]s)`, args, CardAttribute)

	var count float64
	if err := p.run(ctx, chromedp.Evaluate(script, &count)); err != nil {
		return 0, fmt.Errorf("failed to mark cards: %w", err)
	}
	return int(count), nil
}

// VisibleCards returns the subset of ids whose card intersects the viewport
// grown by margin pixels on every side.
func (p *BrowserPage) VisibleCards(ctx context.Context, ids []string, margin int) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	script := fmt.Sprintf(`(function(ids, margin){
		var h = window.innerHeight || document.documentElement.clientHeight;
		var w = window.innerWidth || document.documentElement.clientWidth;
		var out = [];
		ids.forEach(function(id){
			var el = document.querySelector('[%[3]s="' + id + '"]');
			if (!el) { return; }
			var r = el.getBoundingClientRect();
			if (r.bottom >= -margin && r.top <= h + margin && r.right >= -margin && r.left <= w + margin) { out.push(id); }
		});
		return out;
	})(%[1]s, %[2]d)`, args, margin, CardAttribute)

	var visible []string
	if err := p.run(ctx, chromedp.Evaluate(script, &visible)); err != nil {
		return nil, fmt.Errorf("failed to query visible cards: %w", err)
	}
	return visible, nil
}

// Apply inserts an annotation, replacing any element with the same id
func (p *BrowserPage) Apply(ctx context.Context, a types.Annotation) error {
	args, err := json.Marshal(a)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(`(function(a){
		var old = document.getElementById(a.id);
		if (old) { old.remove(); }
		var anchor = a.selector ? document.querySelector(a.selector) : null;
		if (!anchor) { anchor = document.body; a.position = 'beforeend'; }
		anchor.insertAdjacentHTML(a.position, a.html);
		return true;
	})(%s)`, args)

	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("failed to apply annotation %s: %w", a.ID, err)
	}
	return nil
}

// Remove deletes the annotation with the given id, if present
func (p *BrowserPage) Remove(ctx context.Context, id string) error {
	args, err := json.Marshal(id)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(`(function(id){ var el = document.getElementById(id); if (el) { el.remove(); } return true; })(%s)`, args)

	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("failed to remove annotation %s: %w", id, err)
	}
	return nil
}

// Close shuts down the tab and its browser
func (p *BrowserPage) Close() {
	if p.cancel != nil {
		p.cancel()
	}
}
