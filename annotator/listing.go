package annotator

import (
	"context"

	"github.com/sirupsen/logrus"

	"commute-annotator/internal/types"
	"commute-annotator/render"
	"commute-annotator/scheduler"
)

// runListing annotates a single-listing page with the commute widget
func (c *Controller) runListing(ctx context.Context, s *session) {
	if !sleep(ctx, c.config.SettleDelay) {
		return
	}
	c.waitForContent(ctx)
	c.waitStable(ctx)
	if !c.Active(s.id) {
		return
	}

	cfg := c.settings.Get()
	if !cfg.Configured() {
		c.renderWidget(ctx, s, types.Failure(types.KindConfig, ""), "", "")
		return
	}

	doc, err := c.snapshot(ctx)
	if err != nil {
		c.logger.Warnf("Failed to read listing page: %v", err)
		return
	}
	addr, ok := c.site.ListingAddress(doc.Selection, s.url)
	if !ok {
		c.logger.Infof("No address found on %s", s.url)
		c.renderWidget(ctx, s, types.Failure(types.KindExtraction, ""), "", "")
		return
	}

	c.renderWidget(ctx, s, types.Pending(), addr, cfg.WorkAddress)

	res, cached := c.cache.Get(addr)
	if !cached {
		// Teardown does not abort the lookup; the result is dropped below.
		res = c.resolver.Resolve(s.parent, addr)
		if scheduler.Cacheable(res) {
			c.cache.Set(addr, res)
		}
	}
	c.tracer.Trace("listing-result", logrus.Fields{
		"session": s.id,
		"address": addr,
		"cached":  cached,
		"status":  res.Status.String(),
	})

	if !c.Active(s.id) {
		c.logger.Debugf("Discarding commute for %s: page changed", addr)
		return
	}
	c.renderWidget(ctx, s, res, addr, cfg.WorkAddress)
}

func (c *Controller) renderWidget(ctx context.Context, s *session, res types.CommuteResult, origin, destination string) {
	if !c.Active(s.id) {
		return
	}
	doc, err := c.snapshot(ctx)
	if err != nil {
		c.logger.Warnf("Failed to read listing page: %v", err)
		return
	}

	a := c.renderer.Widget(doc.Selection, res, origin, destination)
	c.apply(ctx, "widget", a, res)

	// The session may have ended while the widget was being inserted.
	if !c.Active(s.id) {
		if err := c.page.Remove(context.WithoutCancel(ctx), render.WidgetID); err != nil {
			c.logger.Debugf("Failed to remove stale widget: %v", err)
		}
	}
}
