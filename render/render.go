// Package render turns commute results into markup for the host page: a
// widget on listing pages and a compact badge on each search-results card.
package render

import (
	"bytes"
	"html/template"
	"time"

	"commute-annotator/commute"
	"commute-annotator/internal/types"
	"github.com/PuerkitoBio/goquery"
)

// WidgetID is the element id of the listing-page widget
const WidgetID = "commute-annotator-widget"

const badgePrefix = "commute-annotator-badge-"

// BadgeID returns the element id of a card's badge
func BadgeID(cardID string) string {
	return badgePrefix + cardID
}

var widgetTemplate = template.Must(template.New("widget").Parse(`<div id="{{.ID}}" class="commute-annotator commute-annotator--{{.State}}" style="position:fixed;right:20px;bottom:20px;z-index:2147483647;max-width:320px;padding:12px 16px;border-radius:8px;background:#fff;box-shadow:0 2px 12px rgba(0,0,0,.2);font:14px/1.4 sans-serif;color:#222">
{{- if eq .State "loading"}}<span class="commute-annotator__icon">⏳</span> <span class="commute-annotator__text">Calculating commute…</span>
{{- else if eq .State "error"}}<span class="commute-annotator__icon">⚠️</span> <span class="commute-annotator__text">{{.Message}}</span>
{{- else}}<div class="commute-annotator__duration"><span class="commute-annotator__icon">🚇</span> <strong>{{.Duration}}</strong> to work</div><div class="commute-annotator__route" style="color:#666;font-size:12px">{{.Route}}</div><a class="commute-annotator__directions" href="{{.DirectionsURL}}" target="_blank" rel="noopener noreferrer">View directions</a>
{{- end}}</div>`))

var badgeTemplate = template.Must(template.New("badge").Parse(`
{{- define "content"}}
{{- if eq .State "loading"}}⏳ …
{{- else if eq .State "error"}}⚠️ {{.Message}}
{{- else}}🚇 {{.Duration}}
{{- end}}
{{- end -}}
{{- if eq .Tag "li" -}}
<li id="{{.ID}}" class="commute-annotator-badge commute-annotator-badge--{{.State}}" style="display:inline-block;margin-left:8px;font-size:12px;color:#333">{{template "content" .}}</li>
{{- else -}}
<div id="{{.ID}}" class="commute-annotator-badge commute-annotator-badge--{{.State}}" style="display:inline-block;margin-top:4px;font-size:12px;color:#333">{{template "content" .}}</div>
{{- end}}`))

type view struct {
	ID            string
	Tag           string
	State         string
	Message       string
	Duration      string
	Route         string
	DirectionsURL string
}

// Renderer builds annotations. Anchor and feature-list selectors are tried in
// order; they are supplied by the site adapter.
type Renderer struct {
	anchorSelectors      []string
	containerSelectors   []string
	featureListSelectors []string
	now                  func() time.Time
}

// NewRenderer creates a renderer
func NewRenderer(anchorSelectors, containerSelectors, featureListSelectors []string) *Renderer {
	return &Renderer{
		anchorSelectors:      anchorSelectors,
		containerSelectors:   containerSelectors,
		featureListSelectors: featureListSelectors,
		now:                  time.Now,
	}
}

// Widget renders the listing-page widget for res. origin and destination are
// the addresses used for the route summary and directions link when the
// resolver did not return formatted ones.
func (r *Renderer) Widget(doc *goquery.Selection, res types.CommuteResult, origin, destination string) types.Annotation {
	v := view{ID: WidgetID, Tag: "div", State: stateOf(res), Message: Message(res)}
	if res.OK() {
		if res.ApartmentFormatted != "" {
			origin = res.ApartmentFormatted
		}
		if res.WorkFormatted != "" {
			destination = res.WorkFormatted
		}
		v.Duration = DisplayDuration(res)
		v.Route = RouteSummary(origin, destination)
		v.DirectionsURL = DirectionsURL(origin, destination, commute.NextMondayMorning(r.now()))
	}

	selector, position := r.widgetPlacement(doc)
	return types.Annotation{
		ID:       WidgetID,
		Selector: selector,
		Position: position,
		HTML:     execute(widgetTemplate, v),
	}
}

// Badge renders a card badge for res inside card's feature list, or at the end
// of the card when no list is found.
func (r *Renderer) Badge(card *goquery.Selection, cardSelector, cardID string, res types.CommuteResult) types.Annotation {
	v := view{ID: BadgeID(cardID), Tag: "div", State: stateOf(res), Message: shortMessage(res)}
	if res.OK() {
		v.Duration = DisplayDuration(res)
	}

	selector := cardSelector
	for _, s := range r.featureListSelectors {
		list := card.Find(s).First()
		if list.Length() > 0 {
			selector = CSSPath(list, card, cardSelector)
			if goquery.NodeName(list) == "ul" || goquery.NodeName(list) == "ol" {
				v.Tag = "li"
			}
			break
		}
	}

	return types.Annotation{
		ID:       v.ID,
		Selector: selector,
		Position: "beforeend",
		HTML:     execute(badgeTemplate, v),
	}
}

// widgetPlacement picks the anchor for the widget. The widget is never placed
// inside a link; an anchor inside one is replaced by the link itself.
func (r *Renderer) widgetPlacement(doc *goquery.Selection) (string, string) {
	for _, s := range r.anchorSelectors {
		anchor := doc.Find(s).First()
		if anchor.Length() == 0 {
			continue
		}
		if link := anchor.Closest("a"); link.Length() > 0 {
			anchor = link
		}
		return CSSPath(anchor, nil, ""), "afterend"
	}
	for _, s := range r.containerSelectors {
		container := doc.Find(s).First()
		if container.Length() > 0 && container.Closest("a").Length() == 0 {
			return CSSPath(container, nil, ""), "afterbegin"
		}
	}
	return "body", "beforeend"
}

// DisplayDuration returns the resolver's duration text, falling back to the
// whole minutes formatted locally when no text was returned
func DisplayDuration(res types.CommuteResult) string {
	if res.DurationText != "" || res.Minutes == nil {
		return res.DurationText
	}
	return FormatDuration(*res.Minutes)
}

// Message is the user-facing text for a failed result
func Message(res types.CommuteResult) string {
	if res.Status != types.StatusFailure {
		return ""
	}
	switch res.Kind {
	case types.KindConfig:
		return "Set your work address and API key in settings"
	case types.KindExtraction:
		return "Could not detect address"
	}
	if res.Message == "" {
		return commute.GenericFailure
	}
	return res.Message
}

func shortMessage(res types.CommuteResult) string {
	switch {
	case res.Status != types.StatusFailure:
		return ""
	case res.Kind == types.KindExtraction:
		return "No address"
	case res.Kind == types.KindPermanent:
		return "No route"
	}
	return "Error"
}

func stateOf(res types.CommuteResult) string {
	switch res.Status {
	case types.StatusSuccess:
		return "success"
	case types.StatusFailure:
		return "error"
	}
	return "loading"
}

func execute(t *template.Template, v view) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		return ""
	}
	return buf.String()
}
