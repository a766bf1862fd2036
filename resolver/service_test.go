package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commute-annotator/maps"
	"commute-annotator/settings"
)

type fakeSettings struct {
	mu     sync.Mutex
	s      settings.Settings
	stored []settings.Coordinates
}

func (f *fakeSettings) Get() settings.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s
}

func (f *fakeSettings) SetWorkCoordinates(c settings.Coordinates) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, c)
	f.s.WorkCoordinates = &c
	return nil
}

type fakeMaps struct {
	mu         sync.Mutex
	locations  map[string]maps.Location
	geocodes   []string
	routeErr   error
	departures []time.Time
}

func (f *fakeMaps) Geocode(ctx context.Context, apiKey, address string) (maps.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.geocodes = append(f.geocodes, address)
	loc, ok := f.locations[address]
	if !ok {
		return maps.Location{}, &maps.Error{Status: "ZERO_RESULTS", Message: "Could not geocode address: " + address}
	}
	return loc, nil
}

func (f *fakeMaps) TransitRoute(ctx context.Context, apiKey string, origin, destination maps.Location, departure time.Time) (maps.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.departures = append(f.departures, departure)
	if f.routeErr != nil {
		return maps.Route{}, f.routeErr
	}
	if origin.Formatted == "APT" {
		return maps.Route{DurationText: "32 mins", DurationSeconds: 1920}, nil
	}
	return maps.Route{DurationText: "35 mins", DurationSeconds: 2100}, nil
}

func newTestService(src *fakeSettings, api *fakeMaps) *Service {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	s := NewService(src, api, maps.NewMemoryGeocodeCache(time.Hour), logger, nil)
	s.now = func() time.Time { return time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC) }
	return s
}

func configured() *fakeSettings {
	return &fakeSettings{s: settings.Settings{WorkAddress: "1 Broadway, New York, NY", APICredential: "k"}}
}

func testMaps() *fakeMaps {
	return &fakeMaps{locations: map[string]maps.Location{
		"123 Main St, New York, NY": {Lat: 40.1, Lng: -73.9, Formatted: "APT"},
		"1 Broadway, New York, NY":  {Lat: 40.7, Lng: -74.0, Formatted: "WORK"},
	}}
}

func TestResolve_Success(t *testing.T) {
	src := configured()
	api := testMaps()
	s := newTestService(src, api)

	resp, err := s.Resolve(context.Background(), "123 Main St, New York, NY")

	require.NoError(t, err)
	require.NotNil(t, resp.Morning)
	assert.Empty(t, resp.Error)
	assert.Equal(t, "32 mins", resp.Morning.Text)
	assert.Equal(t, 32, *resp.Morning.Minutes)
	require.NotNil(t, resp.Evening)
	assert.Equal(t, 35, *resp.Evening.Minutes)
	assert.Equal(t, "APT", resp.ApartmentFormatted)
	assert.Equal(t, "WORK", resp.WorkFormatted)
	assert.Nil(t, resp.Debug)

	require.Len(t, api.departures, 2)
	for _, d := range api.departures {
		assert.Equal(t, time.Monday, d.Weekday())
		assert.Equal(t, 11, d.Day())
	}

	require.Len(t, src.stored, 1)
	assert.Equal(t, "WORK", src.stored[0].Address)
	assert.Equal(t, "1 Broadway, New York, NY", src.stored[0].Source)
}

func TestResolve_UsesStoredWorkCoordinatesAndGeocodeCache(t *testing.T) {
	src := configured()
	src.s.WorkCoordinates = &settings.Coordinates{Lat: 40.7, Lon: -74.0, Address: "WORK", Source: "1 Broadway, New York, NY"}
	api := testMaps()
	s := newTestService(src, api)

	_, err := s.Resolve(context.Background(), "123 Main St, New York, NY")
	require.NoError(t, err)
	_, err = s.Resolve(context.Background(), "123 Main St, New York, NY")
	require.NoError(t, err)

	assert.Equal(t, []string{"123 Main St, New York, NY"}, api.geocodes)
	assert.Empty(t, src.stored)
}

func TestResolve_GeocodesWorkAgainAfterAddressChange(t *testing.T) {
	src := configured()
	src.s.WorkCoordinates = &settings.Coordinates{Lat: 40.75, Lon: -73.98, Address: "OLD OFFICE", Source: "350 5th Ave, New York, NY"}
	api := testMaps()
	s := newTestService(src, api)

	resp, err := s.Resolve(context.Background(), "123 Main St, New York, NY")

	require.NoError(t, err)
	assert.Equal(t, "WORK", resp.WorkFormatted)
	assert.Contains(t, api.geocodes, "1 Broadway, New York, NY")
	require.Len(t, src.stored, 1)
	assert.Equal(t, "1 Broadway, New York, NY", src.stored[0].Source)
	assert.Equal(t, "WORK", src.stored[0].Address)
}

func TestResolve_NotConfigured(t *testing.T) {
	s := newTestService(&fakeSettings{}, testMaps())

	resp, err := s.Resolve(context.Background(), "123 Main St, New York, NY")

	require.NoError(t, err)
	assert.Equal(t, NotConfiguredMessage, resp.Error)
}

func TestResolve_GeocodeFailureIsReported(t *testing.T) {
	s := newTestService(configured(), testMaps())

	resp, err := s.Resolve(context.Background(), "999 Nowhere St")

	require.NoError(t, err)
	assert.Contains(t, resp.Error, "Could not geocode address")
	assert.Nil(t, resp.Morning)
}

func TestResolve_NetworkErrorIsReturned(t *testing.T) {
	api := testMaps()
	api.routeErr = errors.New("connection reset")
	s := newTestService(configured(), api)

	resp, err := s.Resolve(context.Background(), "123 Main St, New York, NY")

	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestResolve_DebugMode(t *testing.T) {
	src := configured()
	src.s.DebugMode = true
	s := newTestService(src, testMaps())

	resp, err := s.Resolve(context.Background(), "123 Main St, New York, NY")

	require.NoError(t, err)
	require.NotNil(t, resp.Debug)
	assert.Equal(t, "2024-03-11T08:00:00Z", resp.Debug["departure"])
}
