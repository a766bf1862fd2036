// Package resolver turns an apartment address into transit commute times to
// the configured work address.
package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"commute-annotator/commute"
	"commute-annotator/internal/types"
	"commute-annotator/maps"
	"commute-annotator/settings"
	"commute-annotator/utils"
)

// NotConfiguredMessage is returned when no work address or key is set
const NotConfiguredMessage = "Set your work address and API key in settings"

// eveningHour is the departure hour of the return leg
const eveningHour = 18

// MapsAPI is the subset of the maps client the service uses
type MapsAPI interface {
	Geocode(ctx context.Context, apiKey, address string) (maps.Location, error)
	TransitRoute(ctx context.Context, apiKey string, origin, destination maps.Location, departure time.Time) (maps.Route, error)
}

// SettingsSource provides the current settings and stores the geocoded work address
type SettingsSource interface {
	Get() settings.Settings
	SetWorkCoordinates(c settings.Coordinates) error
}

// Service resolves commutes. It implements commute.Resolver.
type Service struct {
	settings SettingsSource
	maps     MapsAPI
	geocache maps.GeocodeCache
	logger   types.Logger
	tracer   *utils.Tracer
	now      func() time.Time
}

// NewService creates a resolver service
func NewService(src SettingsSource, api MapsAPI, geocache maps.GeocodeCache, logger types.Logger, tracer *utils.Tracer) *Service {
	return &Service{
		settings: src,
		maps:     api,
		geocache: geocache,
		logger:   logger,
		tracer:   tracer,
		now:      time.Now,
	}
}

// Resolve geocodes both ends and looks up the morning and evening transit legs.
// Errors the user can act on are returned in the response; the error return is
// reserved for failures worth retrying.
func (s *Service) Resolve(ctx context.Context, apartmentAddress string) (*types.ResolveResponse, error) {
	cfg := s.settings.Get()
	if !cfg.Configured() {
		return &types.ResolveResponse{Error: NotConfiguredMessage}, nil
	}
	key := cfg.APICredential

	var work, apartment maps.Location
	var workGeocoded bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if c, ok := cfg.WorkLocation(); ok {
			work = maps.Location{Lat: c.Lat, Lng: c.Lon, Formatted: c.Address}
			return nil
		}
		loc, err := s.geocode(gctx, key, cfg.WorkAddress)
		work, workGeocoded = loc, err == nil
		return err
	})
	g.Go(func() error {
		loc, err := s.geocode(gctx, key, apartmentAddress)
		apartment = loc
		return err
	})
	if err := g.Wait(); err != nil {
		return userError(err)
	}

	if workGeocoded {
		coords := settings.Coordinates{Lat: work.Lat, Lon: work.Lng, Address: work.Formatted, Source: cfg.WorkAddress}
		if err := s.settings.SetWorkCoordinates(coords); err != nil {
			s.logger.Warnf("Failed to store work coordinates: %v", err)
		}
	}

	morningAt := commute.NextMondayMorning(s.now())
	eveningAt := time.Date(morningAt.Year(), morningAt.Month(), morningAt.Day(), eveningHour, 0, 0, 0, morningAt.Location())

	var morning, evening maps.Route
	var eveningErr error
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		morning, err = s.maps.TransitRoute(gctx, key, apartment, work, morningAt)
		return err
	})
	g.Go(func() error {
		evening, eveningErr = s.maps.TransitRoute(gctx, key, work, apartment, eveningAt)
		return nil
	})
	if err := g.Wait(); err != nil {
		return userError(err)
	}

	resp := &types.ResolveResponse{
		Morning:            leg(morning),
		ApartmentFormatted: apartment.Formatted,
		WorkFormatted:      work.Formatted,
	}
	if eveningErr == nil {
		resp.Evening = leg(evening)
	} else {
		s.logger.Debugf("Evening leg unavailable for %s: %v", apartmentAddress, eveningErr)
	}
	if cfg.DebugMode {
		resp.Debug = map[string]interface{}{
			"departure":      morningAt.Format(time.RFC3339),
			"apartment":      apartment.LatLng(),
			"work":           work.LatLng(),
			"workGeocoded":   workGeocoded,
			"morningSeconds": morning.DurationSeconds,
		}
	}

	s.tracer.Trace("resolve", logrus.Fields{
		"address":   apartmentAddress,
		"formatted": apartment.Formatted,
		"morning":   morning.DurationText,
	})
	return resp, nil
}

func (s *Service) geocode(ctx context.Context, key, address string) (maps.Location, error) {
	if s.geocache != nil {
		loc, ok, err := s.geocache.Get(ctx, address)
		if err != nil {
			s.logger.Warnf("Geocode cache lookup failed: %v", err)
		} else if ok {
			return loc, nil
		}
	}

	loc, err := s.maps.Geocode(ctx, key, address)
	if err != nil {
		return maps.Location{}, err
	}

	if s.geocache != nil {
		if err := s.geocache.Set(ctx, address, loc); err != nil {
			s.logger.Warnf("Geocode cache store failed: %v", err)
		}
	}
	return loc, nil
}

func leg(r maps.Route) *types.Leg {
	minutes := r.Minutes()
	return &types.Leg{Text: r.DurationText, Minutes: &minutes}
}

// userError moves maps service errors into the response and passes other
// errors through.
func userError(err error) (*types.ResolveResponse, error) {
	var mapsErr *maps.Error
	if errors.As(err, &mapsErr) {
		return &types.ResolveResponse{Error: mapsErr.Error()}, nil
	}
	return nil, err
}
