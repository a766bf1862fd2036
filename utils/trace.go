package utils

import (
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"

	"commute-annotator/internal/types"
	"github.com/sirupsen/logrus"
)

const redacted = "REDACTED"

var credentialParams = []string{"key", "apikey", "api_key", "token", "credential", "signature"}

var credentialInTextPattern = regexp.MustCompile(`(?i)\b(key|apikey|api_key|token)=[^&\s"]+`)

// Tracer emits structured diagnostic records for each pipeline step when
// diagnostic mode is on. It never changes control flow. A nil Tracer is a no-op.
type Tracer struct {
	logger  types.Logger
	enabled atomic.Bool
}

// NewTracer creates a tracer writing to logger
func NewTracer(logger types.Logger, enabled bool) *Tracer {
	t := &Tracer{logger: logger}
	t.enabled.Store(enabled)
	return t
}

// SetEnabled toggles diagnostic output
func (t *Tracer) SetEnabled(enabled bool) {
	if t == nil {
		return
	}
	t.enabled.Store(enabled)
}

// Enabled reports whether diagnostic output is on
func (t *Tracer) Enabled() bool {
	return t != nil && t.enabled.Load()
}

// Trace logs one pipeline step
func (t *Tracer) Trace(step string, fields logrus.Fields) {
	if !t.Enabled() || t.logger == nil {
		return
	}
	entry := t.logger.WithFields(fields).WithField("step", step)
	entry.Info("trace")
}

// RedactURL hides credential query parameters in raw
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return RedactText(raw)
	}
	q := u.Query()
	changed := false
	for name := range q {
		for _, p := range credentialParams {
			if strings.EqualFold(name, p) {
				q.Set(name, redacted)
				changed = true
			}
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// RedactText hides key=value credentials embedded in free text such as error
// messages that quote a request URL.
func RedactText(text string) string {
	return credentialInTextPattern.ReplaceAllString(text, "${1}="+redacted)
}
