// Package annotator drives a live host page: it follows navigations, runs one
// session per page and annotates listings and search-result cards with
// commute times.
package annotator

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"commute-annotator/adapters"
	"commute-annotator/cache"
	"commute-annotator/internal/types"
	"commute-annotator/metrics"
	"commute-annotator/render"
	"commute-annotator/scheduler"
	"commute-annotator/settings"
	"commute-annotator/utils"
)

// Page is a live host page. *utils.BrowserPage implements it.
type Page interface {
	Navigations() <-chan string
	Location(ctx context.Context) (string, error)
	Snapshot(ctx context.Context) (string, error)
	MutationCount(ctx context.Context) (uint64, error)
	MarkCards(ctx context.Context, selectors []string) (int, error)
	VisibleCards(ctx context.Context, ids []string, margin int) ([]string, error)
	Apply(ctx context.Context, a types.Annotation) error
	Remove(ctx context.Context, id string) error
}

// Site knows the host site's URLs and markup
type Site interface {
	Classify(u *url.URL) adapters.PageKind
	ContentMarkers() []string
	CardSelectors() []string
	ListingAddress(doc *goquery.Selection, pageURL *url.URL) (string, bool)
	CardAddress(card *goquery.Selection) (string, bool)
	Renderer() *render.Renderer
}

// Settings provides the user's settings and change notifications
type Settings interface {
	Get() settings.Settings
	Subscribe(fn settings.ChangeFunc)
}

// Resolver returns a final commute result for an address
type Resolver interface {
	Resolve(ctx context.Context, apartmentAddress string) types.CommuteResult
}

// session is the work attached to one page URL. Results that arrive for a
// session that is no longer current are dropped.
type session struct {
	id        string
	ctx       context.Context
	parent    context.Context // outlives the session; network calls run under it
	kind      adapters.PageKind
	url       *url.URL
	cancel    context.CancelFunc
	cards     []string
	processed map[string]bool
	mutations uint64
	rescan    *time.Timer
}

// Controller runs sessions against a page
type Controller struct {
	page     Page
	site     Site
	settings Settings
	resolver Resolver
	cache    *cache.Cache
	config   *types.Config
	logger   types.Logger
	tracer   *utils.Tracer
	renderer *render.Renderer

	mu        sync.Mutex
	location  string
	current   *session
	scheduler *scheduler.Scheduler
	wg        sync.WaitGroup
}

// NewController creates a controller
func NewController(page Page, site Site, store Settings, resolver Resolver, c *cache.Cache, config *types.Config, logger types.Logger, tracer *utils.Tracer) *Controller {
	return &Controller{
		page:     page,
		site:     site,
		settings: store,
		resolver: resolver,
		cache:    c,
		config:   config,
		logger:   logger,
		tracer:   tracer,
		renderer: site.Renderer(),
	}
}

// Run follows the page until ctx is done
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	c.scheduler = scheduler.New(ctx, c.config.MaxConcurrentRequests, c.cache, c.resolver.Resolve, c.deliver)
	c.mu.Unlock()

	c.tracer.SetEnabled(c.settings.Get().DebugMode)
	c.settings.Subscribe(c.onSettingsChange)

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	c.checkLocation(ctx)
	for {
		select {
		case <-ctx.Done():
			c.teardown()
			c.wg.Wait()
			return nil
		case <-c.page.Navigations():
			c.checkLocation(ctx)
		case <-ticker.C:
			c.checkLocation(ctx)
			c.checkMutations(ctx)
		}
	}
}

// checkLocation starts a new session when the page URL has changed
func (c *Controller) checkLocation(ctx context.Context) {
	loc, err := c.page.Location(ctx)
	if err != nil {
		c.logger.Debugf("Failed to read page location: %v", err)
		return
	}

	c.mu.Lock()
	if loc == c.location {
		c.mu.Unlock()
		return
	}
	c.location = loc
	c.mu.Unlock()

	c.teardown()

	u, err := url.Parse(loc)
	if err != nil {
		c.logger.Warnf("Ignoring unparsable location %q: %v", loc, err)
		return
	}
	kind := c.site.Classify(u)
	if kind == adapters.PageInert {
		c.logger.Debugf("Page %s is not annotated", loc)
		return
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		id:        uuid.NewString(),
		ctx:       sctx,
		parent:    ctx,
		kind:      kind,
		url:       u,
		cancel:    cancel,
		processed: make(map[string]bool),
	}

	c.mu.Lock()
	c.current = s
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{"session": s.id, "kind": kind.String(), "url": loc}).Info("Starting page session")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		switch kind {
		case adapters.PageListing:
			c.runListing(sctx, s)
		case adapters.PageSearch:
			c.runSearch(sctx, s)
		}
	}()
}

// teardown ends the current session: pending work is dropped, the listing
// widget is removed and the processed set is cleared.
func (c *Controller) teardown() {
	c.mu.Lock()
	s := c.current
	c.current = nil
	if s != nil {
		s.cancel()
		if s.rescan != nil {
			s.rescan.Stop()
		}
		s.cards = nil
		s.processed = make(map[string]bool)
	}
	if c.scheduler != nil {
		c.scheduler.Reset()
	}
	c.mu.Unlock()

	if s == nil {
		return
	}
	c.tracer.Trace("teardown", logrus.Fields{"session": s.id})
	if s.kind == adapters.PageListing {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
		defer cancel()
		if err := c.page.Remove(ctx, render.WidgetID); err != nil {
			c.logger.Debugf("Failed to remove widget: %v", err)
		}
	}
}

// Active reports whether id names the current session
func (c *Controller) Active(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.id == id
}

func (c *Controller) onSettingsChange(old, new settings.Settings) {
	c.tracer.SetEnabled(new.DebugMode)
	if settings.WorkChanged(old, new) {
		c.cache.Clear()
		c.logger.Info("Work destination changed; cleared cached commutes")
	}
	// Coordinates stored for the same address keep the session running.
	if old.WorkAddress == new.WorkAddress && old.Configured() == new.Configured() {
		return
	}
	// Forget the location so the next poll starts a fresh session.
	c.mu.Lock()
	c.location = ""
	c.mu.Unlock()
}

func (c *Controller) snapshot(ctx context.Context) (*goquery.Document, error) {
	html, err := c.page.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (c *Controller) apply(ctx context.Context, kind string, a types.Annotation, res types.CommuteResult) {
	if err := c.page.Apply(ctx, a); err != nil {
		c.logger.Warnf("Failed to render %s: %v", kind, err)
		return
	}
	metrics.AnnotationsTotal.WithLabelValues(kind, res.Status.String()).Inc()
}

// sleep waits for d or until ctx is done and reports whether ctx is still live
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
