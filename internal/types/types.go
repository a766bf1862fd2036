package types

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Status is the state of a commute resolution
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	}
	return "unknown"
}

// ErrorKind classifies a failed commute resolution
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindConfig means the work address or API credential is missing
	KindConfig
	// KindExtraction means no usable address was found on the page or card
	KindExtraction
	// KindPermanent means the resolver rejected the address and retrying is pointless
	KindPermanent
	// KindTransient means every attempt failed for reasons that might clear up
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindExtraction:
		return "extraction"
	case KindPermanent:
		return "permanent"
	case KindTransient:
		return "transient"
	}
	return "none"
}

// CommuteResult is the outcome of resolving one apartment address against the work address
type CommuteResult struct {
	Status       Status    `json:"status"`
	DurationText string    `json:"duration_text,omitempty"`
	Minutes      *int      `json:"minutes,omitempty"`
	Kind         ErrorKind `json:"kind,omitempty"`
	Message      string    `json:"message,omitempty"`
	// Cause keeps the last underlying error for diagnostics
	Cause string `json:"cause,omitempty"`

	ApartmentFormatted string `json:"apartment_formatted,omitempty"`
	WorkFormatted      string `json:"work_formatted,omitempty"`
}

// Pending returns a result in the loading state
func Pending() CommuteResult {
	return CommuteResult{Status: StatusPending}
}

// Failure returns a failed result of the given kind
func Failure(kind ErrorKind, message string) CommuteResult {
	return CommuteResult{Status: StatusFailure, Kind: kind, Message: message}
}

// OK reports whether the result carries a duration
func (r CommuteResult) OK() bool {
	return r.Status == StatusSuccess
}

// Leg is one direction of a commute as returned by the resolver
type Leg struct {
	Text    string `json:"text"`
	Minutes *int   `json:"minutes"`
}

// ResolveRequest is sent to the resolver, one per apartment address
type ResolveRequest struct {
	ApartmentAddress string `json:"apartmentAddress"`
}

// ResolveResponse is the resolver's answer. Either Error is set or Morning is populated.
type ResolveResponse struct {
	Morning            *Leg                   `json:"morning,omitempty"`
	Evening            *Leg                   `json:"evening,omitempty"`
	ApartmentFormatted string                 `json:"apartmentFormatted,omitempty"`
	WorkFormatted      string                 `json:"workFormatted,omitempty"`
	Debug              map[string]interface{} `json:"debug,omitempty"`
	Error              string                 `json:"error,omitempty"`
}

// Config holds the configuration for the annotator and resolver
type Config struct {
	RequestDelay time.Duration
	HTTPRetries  int
	Timeout      time.Duration

	MaxConcurrentRequests int
	ResolveRetries        int
	RetryBackoff          time.Duration

	CacheCapacity int
	CacheTTL      time.Duration

	LookaheadPixels int
	Debounce        time.Duration
	SettleDelay     time.Duration
	ContentTimeout  time.Duration
	StabilityWindow time.Duration
	StabilityCap    time.Duration
	PollInterval    time.Duration

	UseHeadlessBrowser bool
	UserAgent          string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		RequestDelay: 100 * time.Millisecond,
		HTTPRetries:  1,
		Timeout:      30 * time.Second,

		MaxConcurrentRequests: 3,
		ResolveRetries:        2,
		RetryBackoff:          500 * time.Millisecond,

		CacheCapacity: 100,
		CacheTTL:      30 * time.Minute,

		LookaheadPixels: 100,
		Debounce:        200 * time.Millisecond,
		SettleDelay:     500 * time.Millisecond,
		ContentTimeout:  5 * time.Second,
		StabilityWindow: 300 * time.Millisecond,
		StabilityCap:    2 * time.Second,
		PollInterval:    100 * time.Millisecond,

		UseHeadlessBrowser: true,
		UserAgent:          "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// Logger defines the logging interface
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	WithFields(fields logrus.Fields) *logrus.Entry
}

// Annotation is a fragment of markup to insert into the host page. Position is
// an insertAdjacentHTML position relative to the element matched by Selector.
type Annotation struct {
	ID       string `json:"id"`
	Selector string `json:"selector"`
	Position string `json:"position"`
	HTML     string `json:"html"`
}
