// Package maps talks to the Google Geocoding and Directions web services.
package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"commute-annotator/internal/types"
	"commute-annotator/utils"
)

const (
	DefaultGeocodeURL    = "https://maps.googleapis.com/maps/api/geocode/json"
	DefaultDirectionsURL = "https://maps.googleapis.com/maps/api/directions/json"
)

var (
	// ErrZeroResults means the service understood the request but found nothing
	ErrZeroResults = errors.New("zero results")
	// ErrRequestDenied means the API key was rejected
	ErrRequestDenied = errors.New("request denied")
)

// Location is a geocoded address
type Location struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Formatted string  `json:"formatted"`
}

// LatLng renders the location as a directions origin or destination
func (l Location) LatLng() string {
	return strconv.FormatFloat(l.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(l.Lng, 'f', 6, 64)
}

// Route is the first transit route between two locations
type Route struct {
	DurationText    string
	DurationSeconds int
	StartAddress    string
	EndAddress      string
}

// Minutes returns the route duration rounded to whole minutes
func (r Route) Minutes() int {
	return (r.DurationSeconds + 30) / 60
}

// Error is a non-OK status from the maps service. Its message is safe to show
// to the user.
type Error struct {
	Status  string
	Message string
	kind    error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.kind
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		Legs []struct {
			Duration struct {
				Value int    `json:"value"`
				Text  string `json:"text"`
			} `json:"duration"`
			StartAddress string `json:"start_address"`
			EndAddress   string `json:"end_address"`
		} `json:"legs"`
	} `json:"routes"`
}

// Client calls the maps web services. The API key is supplied per call so
// that settings changes take effect immediately.
type Client struct {
	http          *utils.HTTPClient
	logger        types.Logger
	tracer        *utils.Tracer
	geocodeURL    string
	directionsURL string
}

// NewClient creates a maps client. Empty URLs select the public endpoints.
func NewClient(httpClient *utils.HTTPClient, logger types.Logger, tracer *utils.Tracer, geocodeURL, directionsURL string) *Client {
	if geocodeURL == "" {
		geocodeURL = DefaultGeocodeURL
	}
	if directionsURL == "" {
		directionsURL = DefaultDirectionsURL
	}
	return &Client{
		http:          httpClient,
		logger:        logger,
		tracer:        tracer,
		geocodeURL:    geocodeURL,
		directionsURL: directionsURL,
	}
}

// Geocode resolves a free-form address
func (c *Client) Geocode(ctx context.Context, apiKey, address string) (Location, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", apiKey)

	var resp geocodeResponse
	if err := c.get(ctx, c.geocodeURL, q, &resp); err != nil {
		return Location{}, err
	}
	c.tracer.Trace("geocode", logrus.Fields{"address": address, "status": resp.Status, "results": len(resp.Results)})

	switch {
	case resp.Status == "OK" && len(resp.Results) > 0:
	case resp.Status == "OK" || resp.Status == "ZERO_RESULTS":
		return Location{}, &Error{Status: resp.Status, Message: fmt.Sprintf("Could not geocode address: %s", address), kind: ErrZeroResults}
	default:
		return Location{}, statusError(resp.Status, resp.ErrorMessage)
	}

	r := resp.Results[0]
	return Location{
		Lat:       r.Geometry.Location.Lat,
		Lng:       r.Geometry.Location.Lng,
		Formatted: r.FormattedAddress,
	}, nil
}

// TransitRoute returns the transit route from origin to destination departing at departure
func (c *Client) TransitRoute(ctx context.Context, apiKey string, origin, destination Location, departure time.Time) (Route, error) {
	q := url.Values{}
	q.Set("origin", origin.LatLng())
	q.Set("destination", destination.LatLng())
	q.Set("mode", "transit")
	q.Set("departure_time", strconv.FormatInt(departure.Unix(), 10))
	q.Set("key", apiKey)

	var resp directionsResponse
	if err := c.get(ctx, c.directionsURL, q, &resp); err != nil {
		return Route{}, err
	}
	c.tracer.Trace("directions", logrus.Fields{"origin": origin.Formatted, "destination": destination.Formatted, "status": resp.Status})

	switch {
	case resp.Status == "OK" && len(resp.Routes) > 0 && len(resp.Routes[0].Legs) > 0:
	case resp.Status == "OK" || resp.Status == "ZERO_RESULTS":
		return Route{}, &Error{Status: resp.Status, Message: "No transit route found", kind: ErrZeroResults}
	default:
		return Route{}, statusError(resp.Status, resp.ErrorMessage)
	}

	leg := resp.Routes[0].Legs[0]
	return Route{
		DurationText:    leg.Duration.Text,
		DurationSeconds: leg.Duration.Value,
		StartAddress:    leg.StartAddress,
		EndAddress:      leg.EndAddress,
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out interface{}) error {
	body, err := c.http.Get(ctx, endpoint+"?"+q.Encode())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode maps response: %w", err)
	}
	return nil
}

func statusError(status, message string) error {
	switch status {
	case "REQUEST_DENIED":
		return &Error{Status: status, Message: "API key was rejected by the maps service", kind: ErrRequestDenied}
	case "INVALID_REQUEST", "NOT_FOUND":
		return &Error{Status: status, Message: "Address not found", kind: ErrZeroResults}
	}
	msg := "Maps service error: " + status
	if message != "" {
		msg += " (" + utils.RedactText(message) + ")"
	}
	return &Error{Status: status, Message: msg}
}
