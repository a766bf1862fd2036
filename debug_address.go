package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"commute-annotator/adapters"
	"commute-annotator/internal/types"
	"commute-annotator/render"
	"commute-annotator/utils"
)

func main() {
	pageURL := flag.String("url", "https://streeteasy.com/for-rent/nyc", "Page to inspect")
	flag.Parse()

	config := types.DefaultConfig()
	config.UseHeadlessBrowser = true // Use headless browser to test JavaScript-rendered content

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	tracer := utils.NewTracer(logger, true)

	u, err := url.Parse(*pageURL)
	if err != nil {
		log.Fatalf("Invalid url: %v", err)
	}

	site := adapters.NewStreetEasyAdapter(config, logger, tracer)
	kind := site.Classify(u)
	fmt.Printf("=== %s: %s (%s) ===\n", site.GetSiteName(), *pageURL, kind)

	browserClient := utils.NewBrowserClient(config, logger)
	ctx := context.Background()

	var html string
	if kind == adapters.PageSearch {
		html, err = markedSearchPage(ctx, browserClient, site, *pageURL)
	} else {
		html, err = browserClient.GetPageContent(ctx, *pageURL)
	}
	if err != nil {
		log.Fatalf("Failed to get page content: %v", err)
	}
	doc, err := site.ParseHTML(html)
	if err != nil {
		log.Fatalf("Failed to parse HTML: %v", err)
	}

	switch kind {
	case adapters.PageListing:
		testListing(site, doc, u)
	case adapters.PageSearch:
		testCards(site, doc)
	default:
		fmt.Println("Page is not annotated")
	}
}

// markedSearchPage returns the search page with its result cards tagged
func markedSearchPage(ctx context.Context, browserClient *utils.BrowserClient, site *adapters.StreetEasyAdapter, pageURL string) (string, error) {
	page, err := browserClient.Open(ctx, pageURL)
	if err != nil {
		return "", err
	}
	defer page.Close()

	if _, err := page.MarkCards(ctx, site.CardSelectors()); err != nil {
		log.Printf("Failed to mark cards: %v", err)
	}
	return page.Snapshot(ctx)
}

func testListing(site *adapters.StreetEasyAdapter, doc *goquery.Document, u *url.URL) {
	addr, ok := site.ListingAddress(doc.Selection, u)
	if !ok {
		fmt.Println("No address found")
		return
	}
	fmt.Printf("Address: %s\n", addr)

	a := site.Renderer().Widget(doc.Selection, types.Pending(), addr, "")
	fmt.Printf("Widget anchor: %s (%s)\n", a.Selector, a.Position)
}

func testCards(site *adapters.StreetEasyAdapter, doc *goquery.Document) {
	cards := doc.Find("[" + utils.CardAttribute + "]")
	fmt.Printf("Cards found: %d\n", cards.Length())

	cards.Each(func(i int, card *goquery.Selection) {
		id, _ := card.Attr(utils.CardAttribute)
		addr, ok := site.CardAddress(card)
		if !ok {
			fmt.Printf("  %s: no address\n", id)
			return
		}
		badge := site.Renderer().Badge(card, render.CardSelector(utils.CardAttribute, id), id, types.Pending())
		fmt.Printf("  %s: %s -> %s\n", id, addr, badge.Selector)
	})
}
