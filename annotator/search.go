package annotator

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"commute-annotator/adapters"
	"commute-annotator/internal/types"
	"commute-annotator/render"
	"commute-annotator/scheduler"
	"commute-annotator/utils"
)

// runSearch annotates result cards as they come within reach of the viewport
func (c *Controller) runSearch(ctx context.Context, s *session) {
	if !c.settings.Get().Configured() {
		c.logger.Info("Work address is not configured; search results are not annotated")
		return
	}
	if !sleep(ctx, c.config.SettleDelay) {
		return
	}
	c.waitStable(ctx)
	c.scan(ctx, s)

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()
	for {
		c.gate(ctx, s)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// scan tags the cards currently on the page and records their identifiers
func (c *Controller) scan(ctx context.Context, s *session) {
	n, err := c.page.MarkCards(ctx, c.site.CardSelectors())
	if err != nil {
		c.logger.Debugf("Failed to mark cards: %v", err)
		return
	}
	doc, err := c.snapshot(ctx)
	if err != nil {
		c.logger.Debugf("Failed to read search page: %v", err)
		return
	}

	var ids []string
	doc.Find("[" + utils.CardAttribute + "]").Each(func(i int, card *goquery.Selection) {
		if id, ok := card.Attr(utils.CardAttribute); ok {
			ids = append(ids, id)
		}
	})

	c.mu.Lock()
	if c.current == s {
		s.cards = ids
	}
	c.mu.Unlock()

	c.tracer.Trace("scan", logrus.Fields{"session": s.id, "marked": n, "cards": len(ids)})
}

// gate processes every unprocessed card that is within the lookahead margin
// of the viewport. Each card is processed at most once per session.
func (c *Controller) gate(ctx context.Context, s *session) {
	c.mu.Lock()
	var candidates []string
	for _, id := range s.cards {
		if !s.processed[id] {
			candidates = append(candidates, id)
		}
	}
	c.mu.Unlock()
	if len(candidates) == 0 {
		return
	}

	visible, err := c.page.VisibleCards(ctx, candidates, c.config.LookaheadPixels)
	if err != nil {
		c.logger.Debugf("Failed to query visible cards: %v", err)
		return
	}

	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}
	var fresh []string
	for _, id := range visible {
		if !s.processed[id] {
			s.processed[id] = true
			fresh = append(fresh, id)
		}
	}
	c.mu.Unlock()
	if len(fresh) == 0 {
		return
	}

	doc, err := c.snapshot(ctx)
	if err != nil {
		c.logger.Debugf("Failed to read search page: %v", err)
		return
	}
	for _, id := range fresh {
		c.processCard(ctx, s, doc, id)
	}
}

func (c *Controller) processCard(ctx context.Context, s *session, doc *goquery.Document, cardID string) {
	card := doc.Find(render.CardSelector(utils.CardAttribute, cardID)).First()
	if card.Length() == 0 {
		return
	}
	addr, ok := c.site.CardAddress(card)
	if !ok {
		c.logger.Debugf("No address found on card %s", cardID)
		c.renderBadge(ctx, s.id, card, cardID, types.Failure(types.KindExtraction, ""))
		return
	}

	if res, ok := c.cache.Get(addr); ok {
		c.renderBadge(ctx, s.id, card, cardID, res)
		return
	}
	c.renderBadge(ctx, s.id, card, cardID, types.Pending())
	c.scheduler.Submit(scheduler.Item{Session: s.id, CardID: cardID, Address: addr})
}

// deliver renders a scheduler result if its session is still current
func (c *Controller) deliver(item scheduler.Item, res types.CommuteResult) {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil || s.id != item.Session {
		c.tracer.Trace("discard", logrus.Fields{"session": item.Session, "card": item.CardID, "address": item.Address})
		return
	}

	doc, err := c.snapshot(s.ctx)
	if err != nil {
		c.logger.Debugf("Failed to read search page: %v", err)
		return
	}
	card := doc.Find(render.CardSelector(utils.CardAttribute, item.CardID)).First()
	if card.Length() == 0 {
		return
	}
	c.renderBadge(s.ctx, item.Session, card, item.CardID, res)
}

func (c *Controller) renderBadge(ctx context.Context, sessionID string, card *goquery.Selection, cardID string, res types.CommuteResult) {
	if !c.Active(sessionID) {
		return
	}
	a := c.renderer.Badge(card, render.CardSelector(utils.CardAttribute, cardID), cardID, res)
	c.apply(ctx, "badge", a, res)
}

// checkMutations schedules a debounced rescan when the search page changes
func (c *Controller) checkMutations(ctx context.Context) {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil || s.kind != adapters.PageSearch {
		return
	}

	count, err := c.page.MutationCount(ctx)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != s || count == s.mutations {
		return
	}
	s.mutations = count
	if s.rescan != nil {
		s.rescan.Stop()
	}
	s.rescan = time.AfterFunc(c.config.Debounce, func() {
		if c.Active(s.id) {
			c.scan(s.ctx, s)
		}
	})
}
