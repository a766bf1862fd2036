package annotator

import (
	"context"
	"time"
)

// waitForContent polls snapshots until one of the site's content markers is
// present or the content timeout passes. It reports whether content appeared.
func (c *Controller) waitForContent(ctx context.Context) bool {
	deadline := time.Now().Add(c.config.ContentTimeout)
	for {
		if doc, err := c.snapshot(ctx); err == nil {
			for _, marker := range c.site.ContentMarkers() {
				if doc.Find(marker).Length() > 0 {
					return true
				}
			}
		}
		if time.Now().After(deadline) {
			c.logger.Debugf("Listing content did not appear within %s", c.config.ContentTimeout)
			return false
		}
		if !sleep(ctx, c.config.PollInterval) {
			return false
		}
	}
}

// waitStable returns once the DOM has gone a full stability window without
// mutations, or after the stability cap.
func (c *Controller) waitStable(ctx context.Context) {
	start := time.Now()
	lastChange := start
	last, err := c.page.MutationCount(ctx)
	if err != nil {
		return
	}

	for sleep(ctx, c.config.PollInterval) {
		now := time.Now()
		count, err := c.page.MutationCount(ctx)
		if err != nil {
			return
		}
		if count != last {
			last = count
			lastChange = now
		}
		if now.Sub(lastChange) >= c.config.StabilityWindow || now.Sub(start) >= c.config.StabilityCap {
			return
		}
	}
}
