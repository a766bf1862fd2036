package render

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const directionsBase = "https://maps.google.com/maps"

// FormatDuration renders whole minutes as "45 min", "1 hr" or "1 hr 35 min"
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	hours, rest := minutes/60, minutes%60
	if rest == 0 {
		return fmt.Sprintf("%d hr", hours)
	}
	return fmt.Sprintf("%d hr %d min", hours, rest)
}

// DirectionsURL builds a transit directions link departing at departure
func DirectionsURL(origin, destination string, departure time.Time) string {
	q := url.Values{}
	q.Set("saddr", origin)
	q.Set("daddr", destination)
	q.Set("dirflg", "r")
	q.Set("ttype", "dep")
	q.Set("date", departure.Format("01/02/06"))
	q.Set("time", strings.ToLower(departure.Format("3:04pm")))
	return directionsBase + "?" + q.Encode()
}

// Abbreviate keeps the street part of an address and truncates it to max runes
func Abbreviate(addr string, max int) string {
	if i := strings.Index(addr, ","); i > 0 {
		addr = addr[:i]
	}
	addr = strings.TrimSpace(addr)
	runes := []rune(addr)
	if max > 1 && len(runes) > max {
		return strings.TrimSpace(string(runes[:max-1])) + "…"
	}
	return addr
}

// RouteSummary renders "origin → destination" with both ends abbreviated
func RouteSummary(origin, destination string) string {
	return Abbreviate(origin, 30) + " → " + Abbreviate(destination, 30)
}
