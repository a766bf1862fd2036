// Package settings stores the user's work address, resolver credential and
// debug flag in a JSON file and notifies subscribers when they change.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"commute-annotator/internal/types"
)

// ErrNotConfigured is returned when the work address or credential is missing
var ErrNotConfigured = errors.New("work address and API key are not configured")

// Coordinates caches the geocoded work address. Source is the work address
// the coordinates were geocoded from; Address is the geocoder's formatting.
type Coordinates struct {
	Lat     float64 `mapstructure:"lat" json:"lat"`
	Lon     float64 `mapstructure:"lon" json:"lon"`
	Address string  `mapstructure:"address" json:"address"`
	Source  string  `mapstructure:"source" json:"source"`
}

// Settings is the persisted user configuration
type Settings struct {
	WorkAddress     string       `mapstructure:"workAddress" json:"workAddress" validate:"required,min=5,max=200"`
	APICredential   string       `mapstructure:"apiCredential" json:"apiCredential" validate:"required"`
	DebugMode       bool         `mapstructure:"debugMode" json:"debugMode"`
	WorkCoordinates *Coordinates `mapstructure:"workCoordinates" json:"workCoordinates,omitempty"`
}

// Configured reports whether a commute can be requested at all
func (s Settings) Configured() bool {
	return s.WorkAddress != "" && s.APICredential != ""
}

// WorkLocation returns the stored coordinates when they belong to the current
// work address
func (s Settings) WorkLocation() (Coordinates, bool) {
	c := s.WorkCoordinates
	if c == nil || c.Address == "" || c.Source != s.WorkAddress {
		return Coordinates{}, false
	}
	return *c, true
}

// WorkChanged reports whether the work destination differs between a and b
func WorkChanged(a, b Settings) bool {
	if a.WorkAddress != b.WorkAddress {
		return true
	}
	if (a.WorkCoordinates == nil) != (b.WorkCoordinates == nil) {
		return true
	}
	return a.WorkCoordinates != nil && *a.WorkCoordinates != *b.WorkCoordinates
}

func equal(a, b Settings) bool {
	return a.APICredential == b.APICredential && a.DebugMode == b.DebugMode && !WorkChanged(a, b)
}

// ChangeFunc is called with the previous and current settings
type ChangeFunc func(old, new Settings)

// Store is a settings file backed by viper. Reads are served from memory.
type Store struct {
	mu          sync.RWMutex
	v           *viper.Viper
	path        string
	current     Settings
	subscribers []ChangeFunc
	validate    *validator.Validate
	logger      types.Logger
}

// Open loads the settings file at path. A missing file yields empty settings.
// COMMUTE_API_CREDENTIAL and COMMUTE_WORK_ADDRESS override the file.
func Open(path string, logger types.Logger) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.BindEnv("apiCredential", "COMMUTE_API_CREDENTIAL"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("workAddress", "COMMUTE_WORK_ADDRESS"); err != nil {
		return nil, err
	}

	s := &Store{
		v:        v,
		path:     path,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}

	current, err := s.read()
	if err != nil {
		return nil, err
	}
	s.current = current
	return s, nil
}

func (s *Store) read() (Settings, error) {
	var out Settings
	if err := s.v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return out, fmt.Errorf("failed to read settings %s: %w", s.path, err)
	}
	if err := s.v.Unmarshal(&out); err != nil {
		return out, fmt.Errorf("failed to decode settings %s: %w", s.path, err)
	}
	return out, nil
}

// Get returns the current settings
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Validate checks that settings are complete enough to request a commute
func (s *Store) Validate(settings Settings) error {
	if !settings.Configured() {
		return ErrNotConfigured
	}
	return s.validate.Struct(settings)
}

// Subscribe registers fn to be called after every change
func (s *Store) Subscribe(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Save writes settings to disk and notifies subscribers
func (s *Store) Save(settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}

	return s.Reload()
}

// Reload re-reads the settings file and notifies subscribers if anything changed
func (s *Store) Reload() error {
	s.mu.Lock()
	next, err := s.read()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	prev := s.current
	s.current = next
	subscribers := append([]ChangeFunc(nil), s.subscribers...)
	s.mu.Unlock()

	if equal(prev, next) {
		return nil
	}
	for _, fn := range subscribers {
		fn(prev, next)
	}
	return nil
}

// Watch reloads the settings whenever the file changes on disk
func (s *Store) Watch() {
	s.v.OnConfigChange(func(e fsnotify.Event) {
		s.logger.Debugf("Settings file changed: %s (%s)", e.Name, e.Op)
		if err := s.Reload(); err != nil {
			s.logger.Warnf("Failed to reload settings: %v", err)
		}
	})
	s.v.WatchConfig()
}

// SetWorkCoordinates persists the geocoded work address
func (s *Store) SetWorkCoordinates(c Coordinates) error {
	next := s.Get()
	if next.WorkCoordinates != nil && *next.WorkCoordinates == c {
		return nil
	}
	next.WorkCoordinates = &c
	return s.Save(next)
}
